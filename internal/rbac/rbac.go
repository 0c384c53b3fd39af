package rbac

type Role string
type Action string

const (
	RoleAdmin       Role = "ADMIN"
	RoleLider       Role = "LIDER"
	RoleColaborador Role = "COLABORADOR"
	RoleCandidato   Role = "CANDIDATO"
)

const (
	// ActionRead covers catalog, coverage and dashboard reads.
	ActionRead Action = "read"
	// ActionSubmitEncuesta is the survey submission path.
	ActionSubmitEncuesta Action = "submit_encuesta"
	// ActionManageTerritory covers zone creation, goal updates and assignments.
	ActionManageTerritory Action = "manage_territory"
	// ActionManageUsers covers roster writes; leaders are further limited to
	// their own collaborators by the service layer.
	ActionManageUsers Action = "manage_users"
	// ActionSchedule covers agenda creation and edits by the owning leader.
	ActionSchedule Action = "schedule"
	// ActionRespondAgenda is the candidate's accept/reject/reschedule response.
	ActionRespondAgenda Action = "respond_agenda"
	// ActionAdmin is reserved for global aggregates and destructive operations.
	ActionAdmin Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleLider:
		return action == ActionRead || action == ActionManageTerritory ||
			action == ActionManageUsers || action == ActionSchedule
	case RoleColaborador:
		return action == ActionRead || action == ActionSubmitEncuesta
	case RoleCandidato:
		return action == ActionRead || action == ActionRespondAgenda
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleAdmin, RoleLider, RoleColaborador, RoleCandidato:
		return Role(role)
	default:
		return RoleColaborador
	}
}
