package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"pitpc/api/internal/auth"
	"pitpc/api/internal/authpw"
	"pitpc/api/internal/config"
	"pitpc/api/internal/rbac"
	"pitpc/api/internal/search"
	"pitpc/api/internal/store"
	"pitpc/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the persistence surface the service depends on. PostgresStore
// implements it; tests use a fake.
type dataStore interface {
	CreateUsuario(context.Context, store.Usuario) error
	GetUsuarioByID(context.Context, string) (store.Usuario, error)
	GetUsuarioByEmail(context.Context, string) (store.Usuario, error)
	ListUsuarios(context.Context, store.UsuarioFilter) ([]store.Usuario, error)
	UpdateUsuario(context.Context, store.Usuario) error
	UpdateUsuarioPassword(context.Context, string, string) error
	DeleteUsuario(context.Context, string) error
	CountUsuarios(context.Context) (int, error)

	ListMunicipiosDeLider(context.Context, string) ([]store.Municipio, error)
	SetMunicipiosDeLider(context.Context, string, []string) error

	ListDepartamentos(context.Context) ([]store.Departamento, error)
	CreateDepartamento(context.Context, store.Departamento) error
	ListMunicipios(context.Context) ([]store.Municipio, error)
	GetMunicipio(context.Context, string) (store.Municipio, error)
	CreateMunicipio(context.Context, store.Municipio) error
	ListZonas(context.Context, store.ZonaFilter) ([]store.Zona, error)
	GetZona(context.Context, string) (store.Zona, error)
	CreateZona(context.Context, store.Zona) error
	UpdateZonaMeta(context.Context, string, int) error

	ListAsignaciones(context.Context, store.AsignacionFilter) ([]store.Asignacion, error)
	GetAsignacion(context.Context, string) (store.Asignacion, error)
	CreateAsignacion(context.Context, store.Asignacion) error
	DeleteAsignacion(context.Context, string) error
	ToggleAsignacion(context.Context, string, string, string, *string) (bool, error)

	ListNecesidades(context.Context) ([]store.Necesidad, error)
	CreateNecesidad(context.Context, store.Necesidad) error
	InsertEncuesta(context.Context, store.Encuesta, string) error
	GetEncuesta(context.Context, string) (store.Encuesta, error)
	ListEncuestas(context.Context, store.EncuestaFilter) ([]store.Encuesta, error)
	UpdateEncuesta(context.Context, store.Encuesta) error
	CountEncuestas(context.Context) (int, error)
	CountEncuestasPorZona(context.Context) (map[string]int, error)
	CountEncuestasPorColaborador(context.Context) (map[string]int, error)
	TopNecesidades(context.Context, int) ([]store.NecesidadConteo, error)
	CountCasosActivos(context.Context) (int, error)
	EncuestasPorDia(context.Context) ([]store.EncuestasDia, error)

	ListAgendas(context.Context, store.AgendaFilter) ([]store.Agenda, error)
	GetAgenda(context.Context, string) (store.Agenda, error)
	CreateAgenda(context.Context, store.Agenda) error
	UpdateAgenda(context.Context, store.Agenda) error
	UpdateAgendaEstado(context.Context, string, string, string) error
	DeleteAgenda(context.Context, string) error

	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens. RedisStore when configured, otherwise
// the PostgresStore doubles as the fallback.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.Usuario, error)
	RevokeRefreshSession(context.Context, string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	search    *search.Service
	passwords *authpw.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, searchSvc *search.Service) *Service {
	if sessions == nil {
		sessions = dataStore
	}
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		search:    searchSvc,
		passwords: authpw.NewService(dataStore),
	}
}

var necesidadesSemilla = []string{"Salud", "Educación", "Vías", "Empleo", "Seguridad"}

// Bootstrap seeds the admin account and the needs catalog on an empty
// database, then warms the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountUsuarios(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		password := s.cfg.AdminPassword
		if password == "" {
			password = "admin1234"
			log.Println("bootstrap: PITPC_ADMIN_PASSWORD not set, using the dev default")
		}
		hash, err := authpw.HashPassword(password)
		if err != nil {
			return err
		}
		if err := s.store.CreateUsuario(ctx, store.Usuario{
			ID:           util.NewID("usr"),
			Nombre:       "Administrador",
			Email:        s.cfg.AdminEmail,
			PasswordHash: hash,
			Rol:          string(rbac.RoleAdmin),
			Activo:       true,
		}); err != nil {
			return err
		}
		log.Printf("bootstrap: admin account created for %s", s.cfg.AdminEmail)
	}

	necesidades, err := s.store.ListNecesidades(ctx)
	if err != nil {
		return err
	}
	if len(necesidades) == 0 {
		for _, nombre := range necesidadesSemilla {
			if err := s.store.CreateNecesidad(ctx, store.Necesidad{
				ID:     util.NewID("nec"),
				Nombre: nombre,
			}); err != nil {
				return err
			}
		}
	}

	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Login authenticates credentials and issues an access/refresh token pair.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	usuario, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, authpw.ErrUsuarioInactivo) {
			return Session{}, domainError(http.StatusForbidden, "FORBIDDEN", "Usuario inactivo", nil)
		}
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Correo o contraseña incorrectos", nil)
	}
	return s.issueSession(ctx, usuario)
}

// Refresh rotates a refresh token. The stored session only pins the user ID;
// the usuario is re-fetched so role or activation changes take effect here.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	usuario, err := s.store.GetUsuarioByID(ctx, owner.ID)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if !usuario.Activo {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, usuario)
}

func (s *Service) issueSession(ctx context.Context, usuario store.Usuario) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   usuario.ID,
		Name:  usuario.Nombre,
		Email: usuario.Email,
		Role:  usuario.Rol,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), usuario.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       usuario.ID,
		UserName:     usuario.Nombre,
		Email:        usuario.Email,
		Role:         usuario.Rol,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	usuario, err := s.store.GetUsuarioByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	if !usuario.Activo {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    usuario.ID,
		UserName:  usuario.Nombre,
		Email:     usuario.Email,
		Role:      usuario.Rol,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// ── Usuarios ──

type UsuarioInput struct {
	Nombre   string `json:"nombre"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Rol      string `json:"rol"`
	Telefono string `json:"telefono"`
	Activo   *bool  `json:"activo"`
}

func usuarioPayload(u store.Usuario) map[string]any {
	return map[string]any{
		"id":       u.ID,
		"nombre":   u.Nombre,
		"email":    u.Email,
		"rol":      u.Rol,
		"telefono": u.Telefono,
		"activo":   u.Activo,
	}
}

// ListUsuarios returns the roster visible to the caller. Leaders see the
// collaborators they created plus the candidate roster they schedule with.
func (s *Service) ListUsuarios(ctx context.Context, session Session, filter store.UsuarioFilter) ([]map[string]any, error) {
	role := rbac.Normalize(session.Role)
	switch role {
	case rbac.RoleAdmin:
	case rbac.RoleLider:
		if filter.Rol == string(rbac.RoleCandidato) {
			// candidate roster is shared
		} else {
			filter.Rol = string(rbac.RoleColaborador)
			filter.CreatedBy = session.UserID
		}
	default:
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	usuarios, err := s.store.ListUsuarios(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(usuarios))
	for _, u := range usuarios {
		items = append(items, usuarioPayload(u))
	}
	return items, nil
}

func (s *Service) CreateUsuario(ctx context.Context, session Session, input UsuarioInput) (map[string]any, error) {
	role := rbac.Normalize(session.Role)
	if !rbac.Can(role, rbac.ActionManageUsers) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	rol := string(rbac.Normalize(input.Rol))
	if role == rbac.RoleLider && rol != string(rbac.RoleColaborador) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Solo puedes crear colaboradores", nil)
	}

	nombre := strings.TrimSpace(input.Nombre)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if nombre == "" || email == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Nombre y correo son obligatorios", nil)
	}
	if _, err := s.store.GetUsuarioByEmail(ctx, email); err == nil {
		return nil, domainError(http.StatusConflict, "CONFLICT", "El correo ya está registrado", nil)
	}
	hash, err := authpw.HashPassword(input.Password)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	creador := session.UserID
	usuario := store.Usuario{
		ID:           util.NewID("usr"),
		Nombre:       nombre,
		Email:        email,
		PasswordHash: hash,
		Rol:          rol,
		Telefono:     strings.TrimSpace(input.Telefono),
		Activo:       true,
		CreatedBy:    &creador,
	}
	if err := s.store.CreateUsuario(ctx, usuario); err != nil {
		return nil, err
	}
	return usuarioPayload(usuario), nil
}

func (s *Service) UpdateUsuario(ctx context.Context, session Session, id string, input UsuarioInput) (map[string]any, error) {
	role := rbac.Normalize(session.Role)
	if !rbac.Can(role, rbac.ActionManageUsers) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	usuario, err := s.store.GetUsuarioByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == rbac.RoleLider {
		if usuario.Rol != string(rbac.RoleColaborador) || usuario.CreatedBy == nil || *usuario.CreatedBy != session.UserID {
			return nil, domainError(http.StatusForbidden, "FORBIDDEN", "No puedes editar este usuario", nil)
		}
	}

	if nombre := strings.TrimSpace(input.Nombre); nombre != "" {
		usuario.Nombre = nombre
	}
	if email := strings.TrimSpace(strings.ToLower(input.Email)); email != "" && email != usuario.Email {
		if _, err := s.store.GetUsuarioByEmail(ctx, email); err == nil {
			return nil, domainError(http.StatusConflict, "CONFLICT", "El correo ya está registrado", nil)
		}
		usuario.Email = email
	}
	if input.Rol != "" && role == rbac.RoleAdmin {
		usuario.Rol = string(rbac.Normalize(input.Rol))
	}
	if input.Telefono != "" {
		usuario.Telefono = strings.TrimSpace(input.Telefono)
	}
	if input.Activo != nil {
		usuario.Activo = *input.Activo
	}

	if err := s.store.UpdateUsuario(ctx, usuario); err != nil {
		return nil, err
	}
	if input.Password != "" {
		if err := s.passwords.ChangePassword(ctx, usuario.ID, input.Password); err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
	}
	return usuarioPayload(usuario), nil
}

func (s *Service) DeleteUsuario(ctx context.Context, session Session, id string) error {
	if rbac.Normalize(session.Role) != rbac.RoleAdmin {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if id == session.UserID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "No puedes eliminar tu propia cuenta", nil)
	}
	return s.store.DeleteUsuario(ctx, id)
}

// ── Municipios de líder ──

func (s *Service) ListMunicipiosDeLider(ctx context.Context, session Session, usuarioID string) ([]store.Municipio, error) {
	role := rbac.Normalize(session.Role)
	if role != rbac.RoleAdmin && session.UserID != usuarioID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	municipios, err := s.store.ListMunicipiosDeLider(ctx, usuarioID)
	if err != nil {
		return nil, err
	}
	if municipios == nil {
		municipios = []store.Municipio{}
	}
	return municipios, nil
}

// SetMunicipiosDeLider replaces a leader's municipio scope. Admin only, and
// the target must hold the LIDER role.
func (s *Service) SetMunicipiosDeLider(ctx context.Context, session Session, usuarioID string, municipioIDs []string) ([]store.Municipio, error) {
	if rbac.Normalize(session.Role) != rbac.RoleAdmin {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	usuario, err := s.store.GetUsuarioByID(ctx, usuarioID)
	if err != nil {
		return nil, err
	}
	if usuario.Rol != string(rbac.RoleLider) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Solo los líderes tienen municipios asignados", nil)
	}
	for _, municipioID := range municipioIDs {
		if _, err := s.store.GetMunicipio(ctx, municipioID); err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Municipio no válido", map[string]any{"municipio": municipioID})
		}
	}
	if err := s.store.SetMunicipiosDeLider(ctx, usuarioID, municipioIDs); err != nil {
		return nil, err
	}
	return s.store.ListMunicipiosDeLider(ctx, usuarioID)
}

// municipioScope returns the leader's municipio IDs. Admins get nil, meaning
// unscoped. Leaders always get a non-nil slice: an empty one means no
// territory has been granted yet, and scoped reads must come back empty
// rather than fall open to the whole ledger.
func (s *Service) municipioScope(ctx context.Context, session Session) ([]string, error) {
	if rbac.Normalize(session.Role) != rbac.RoleLider {
		return nil, nil
	}
	municipios, err := s.store.ListMunicipiosDeLider(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(municipios))
	for _, m := range municipios {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
