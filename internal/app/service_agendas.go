package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"pitpc/api/internal/rbac"
	"pitpc/api/internal/store"
	"pitpc/api/internal/util"
)

const (
	EstadoPendiente                = "pendiente"
	EstadoAceptada                 = "aceptada"
	EstadoRechazada                = "rechazada"
	EstadoReprogramacionSolicitada = "reprogramacion_solicitada"
)

type AgendaInput struct {
	CandidatoID string `json:"candidato"`
	Titulo      string `json:"titulo"`
	Descripcion string `json:"descripcion"`
	Fecha       string `json:"fecha"`
	HoraInicio  string `json:"hora_inicio"`
	HoraFin     string `json:"hora_fin"`
	Lugar       string `json:"lugar"`
}

func (s *Service) agendaVisible(session Session, agenda store.Agenda) bool {
	switch rbac.Normalize(session.Role) {
	case rbac.RoleAdmin:
		return true
	case rbac.RoleLider:
		return agenda.LiderID == session.UserID
	case rbac.RoleCandidato:
		return agenda.CandidatoID == session.UserID
	default:
		return false
	}
}

func (s *Service) ListAgendas(ctx context.Context, session Session, filter store.AgendaFilter) ([]store.Agenda, error) {
	switch rbac.Normalize(session.Role) {
	case rbac.RoleAdmin:
	case rbac.RoleLider:
		filter.LiderID = session.UserID
	case rbac.RoleCandidato:
		filter.CandidatoID = session.UserID
	default:
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	agendas, err := s.store.ListAgendas(ctx, filter)
	if err != nil {
		return nil, err
	}
	if agendas == nil {
		agendas = []store.Agenda{}
	}
	return agendas, nil
}

func validateAgendaInput(input AgendaInput) error {
	if strings.TrimSpace(input.Titulo) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "El título es obligatorio", nil)
	}
	if _, err := time.Parse("2006-01-02", input.Fecha); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "La fecha debe tener formato YYYY-MM-DD", nil)
	}
	if strings.TrimSpace(input.HoraInicio) == "" || strings.TrimSpace(input.HoraFin) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Hora de inicio y fin son obligatorias", nil)
	}
	if strings.TrimSpace(input.Lugar) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "El lugar es obligatorio", nil)
	}
	return nil
}

// CreateAgenda opens a visit request from a leader to a candidate. New
// agendas always start out pendiente.
func (s *Service) CreateAgenda(ctx context.Context, session Session, input AgendaInput) (store.Agenda, error) {
	if !s.Can(session.Role, rbac.ActionSchedule) {
		return store.Agenda{}, domainError(http.StatusForbidden, "FORBIDDEN", "Solo los líderes o administradores pueden crear agendas", nil)
	}
	if err := validateAgendaInput(input); err != nil {
		return store.Agenda{}, err
	}
	candidato, err := s.store.GetUsuarioByID(ctx, input.CandidatoID)
	if err != nil || candidato.Rol != string(rbac.RoleCandidato) {
		return store.Agenda{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Candidato no válido", nil)
	}

	agenda := store.Agenda{
		ID:          util.NewID("agd"),
		LiderID:     session.UserID,
		CandidatoID: candidato.ID,
		Titulo:      strings.TrimSpace(input.Titulo),
		Descripcion: strings.TrimSpace(input.Descripcion),
		Fecha:       input.Fecha,
		HoraInicio:  input.HoraInicio,
		HoraFin:     input.HoraFin,
		Lugar:       strings.TrimSpace(input.Lugar),
		Estado:      EstadoPendiente,
	}
	if err := s.store.CreateAgenda(ctx, agenda); err != nil {
		return store.Agenda{}, err
	}
	return s.store.GetAgenda(ctx, agenda.ID)
}

func (s *Service) GetAgenda(ctx context.Context, session Session, id string) (store.Agenda, error) {
	agenda, err := s.store.GetAgenda(ctx, id)
	if err != nil {
		return store.Agenda{}, err
	}
	if !s.agendaVisible(session, agenda) {
		return store.Agenda{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return agenda, nil
}

func (s *Service) canManageAgenda(session Session, agenda store.Agenda) bool {
	role := rbac.Normalize(session.Role)
	return role == rbac.RoleAdmin || (role == rbac.RoleLider && agenda.LiderID == session.UserID)
}

// UpdateAgenda edits the visit details. An accepted agenda is frozen.
func (s *Service) UpdateAgenda(ctx context.Context, session Session, id string, input AgendaInput) (store.Agenda, error) {
	agenda, err := s.store.GetAgenda(ctx, id)
	if err != nil {
		return store.Agenda{}, err
	}
	if !s.canManageAgenda(session, agenda) {
		return store.Agenda{}, domainError(http.StatusForbidden, "FORBIDDEN", "No puedes editar esta agenda", nil)
	}
	if agenda.Estado == EstadoAceptada {
		return store.Agenda{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "No se puede editar una agenda aceptada", nil)
	}
	if err := validateAgendaInput(input); err != nil {
		return store.Agenda{}, err
	}

	agenda.Titulo = strings.TrimSpace(input.Titulo)
	agenda.Descripcion = strings.TrimSpace(input.Descripcion)
	agenda.Fecha = input.Fecha
	agenda.HoraInicio = input.HoraInicio
	agenda.HoraFin = input.HoraFin
	agenda.Lugar = strings.TrimSpace(input.Lugar)

	if err := s.store.UpdateAgenda(ctx, agenda); err != nil {
		return store.Agenda{}, err
	}
	return s.store.GetAgenda(ctx, agenda.ID)
}

// CancelarAgenda is the leader-side withdrawal; it lands in rechazada.
func (s *Service) CancelarAgenda(ctx context.Context, session Session, id string) (store.Agenda, error) {
	agenda, err := s.store.GetAgenda(ctx, id)
	if err != nil {
		return store.Agenda{}, err
	}
	if !s.canManageAgenda(session, agenda) {
		return store.Agenda{}, domainError(http.StatusForbidden, "FORBIDDEN", "No puedes cancelar esta agenda", nil)
	}
	if err := s.store.UpdateAgendaEstado(ctx, agenda.ID, EstadoRechazada, ""); err != nil {
		return store.Agenda{}, err
	}
	return s.store.GetAgenda(ctx, agenda.ID)
}

// ResponderAgenda is the candidate's transition out of pendiente. Once an
// agenda is aceptada or rechazada it stays answered; a reprogramming request
// must carry its justification.
func (s *Service) ResponderAgenda(ctx context.Context, session Session, id, accion, motivo string) (store.Agenda, error) {
	agenda, err := s.store.GetAgenda(ctx, id)
	if err != nil {
		return store.Agenda{}, err
	}
	role := rbac.Normalize(session.Role)
	if role != rbac.RoleCandidato || agenda.CandidatoID != session.UserID {
		return store.Agenda{}, domainError(http.StatusForbidden, "FORBIDDEN", "No puedes responder esta agenda", nil)
	}
	if agenda.Estado == EstadoAceptada || agenda.Estado == EstadoRechazada {
		return store.Agenda{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Esta agenda ya fue respondida", nil)
	}

	var estado string
	switch accion {
	case "aceptar":
		estado = EstadoAceptada
		motivo = ""
	case "rechazar":
		estado = EstadoRechazada
		motivo = ""
	case "reprogramar":
		if strings.TrimSpace(motivo) == "" {
			return store.Agenda{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Debes indicar un motivo de reprogramación", nil)
		}
		estado = EstadoReprogramacionSolicitada
	default:
		return store.Agenda{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Acción no válida. Usa aceptar, rechazar o reprogramar", nil)
	}

	if err := s.store.UpdateAgendaEstado(ctx, agenda.ID, estado, motivo); err != nil {
		return store.Agenda{}, err
	}
	return s.store.GetAgenda(ctx, agenda.ID)
}

func (s *Service) DeleteAgenda(ctx context.Context, session Session, id string) error {
	agenda, err := s.store.GetAgenda(ctx, id)
	if err != nil {
		return err
	}
	if !s.canManageAgenda(session, agenda) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "No puedes eliminar esta agenda", nil)
	}
	return s.store.DeleteAgenda(ctx, agenda.ID)
}
