package app

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"pitpc/api/internal/rbac"
	"pitpc/api/internal/search"
	"pitpc/api/internal/store"
	"pitpc/api/internal/util"
)

var cedulaRe = regexp.MustCompile(`^\d{1,15}$`)

type EncuestaInput struct {
	ZonaID                       string   `json:"zona"`
	Cedula                       string   `json:"cedula"`
	PrimerNombre                 string   `json:"primer_nombre"`
	SegundoNombre                string   `json:"segundo_nombre"`
	PrimerApellido               string   `json:"primer_apellido"`
	SegundoApellido              string   `json:"segundo_apellido"`
	Telefono                     string   `json:"telefono"`
	Correo                       string   `json:"correo"`
	Sexo                         string   `json:"sexo"`
	TipoVivienda                 string   `json:"tipo_vivienda"`
	RangoEdad                    string   `json:"rango_edad"`
	Ocupacion                    string   `json:"ocupacion"`
	TieneNinos                   bool     `json:"tiene_ninos"`
	TieneAdultosMayores          bool     `json:"tiene_adultos_mayores"`
	TienePersonasConDiscapacidad bool     `json:"tiene_personas_con_discapacidad"`
	ComentarioProblema           string   `json:"comentario_problema"`
	Consentimiento               bool     `json:"consentimiento"`
	Lat                          *float64 `json:"lat"`
	Lon                          *float64 `json:"lon"`
	CasoCritico                  bool     `json:"caso_critico"`
	NivelAfinidad                int      `json:"nivel_afinidad"`
	DisposicionVoto              int      `json:"disposicion_voto"`
	// CapacidadInfluencia is a pointer because 0 ("ninguna") is a valid
	// catalog choice and must be told apart from an omitted field.
	CapacidadInfluencia *int `json:"capacidad_influencia"`
	// Necesidades carries need IDs in selection order; priority is the
	// 1-based position, recomputed on every resubmission.
	Necesidades []string `json:"necesidades"`
}

func (s *Service) ListNecesidades(ctx context.Context) ([]store.Necesidad, error) {
	necesidades, err := s.store.ListNecesidades(ctx)
	if err != nil {
		return nil, err
	}
	if necesidades == nil {
		necesidades = []store.Necesidad{}
	}
	return necesidades, nil
}

// validateEncuesta applies the submission rules in order and surfaces the
// first failing one. requireTelefono is relaxed on the admin edit path.
func (s *Service) validateEncuesta(ctx context.Context, input EncuestaInput, requireTelefono bool) error {
	if strings.TrimSpace(input.ZonaID) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Debes seleccionar una zona", nil)
	}
	if !cedulaRe.MatchString(input.Cedula) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "La cédula es obligatoria y solo admite números (máx. 15).", nil)
	}
	if requireTelefono && strings.TrimSpace(input.Telefono) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "El teléfono es obligatorio.", nil)
	}
	if !input.Consentimiento {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Debes contar con consentimiento informado", nil)
	}
	if input.NivelAfinidad < 1 || input.NivelAfinidad > 5 ||
		input.DisposicionVoto < 1 || input.DisposicionVoto > 3 ||
		input.CapacidadInfluencia == nil ||
		*input.CapacidadInfluencia < 0 || *input.CapacidadInfluencia > 3 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Selecciona afinidad, disposición de voto y capacidad de influencia.", nil)
	}
	if len(input.Necesidades) < 1 || len(input.Necesidades) > 3 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Selecciona al menos una necesidad (máximo 3).", nil)
	}
	seen := make(map[string]struct{}, len(input.Necesidades))
	for _, id := range input.Necesidades {
		if _, dup := seen[id]; dup {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "La prioridad debe ser única", nil)
		}
		seen[id] = struct{}{}
	}

	catalogo, err := s.store.ListNecesidades(ctx)
	if err != nil {
		return err
	}
	valid := make(map[string]struct{}, len(catalogo))
	for _, n := range catalogo {
		valid[n.ID] = struct{}{}
	}
	for _, id := range input.Necesidades {
		if _, ok := valid[id]; !ok {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Necesidad no válida", map[string]any{"necesidad": id})
		}
	}

	if _, err := s.store.GetZona(ctx, input.ZonaID); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Zona no válida", nil)
	}
	return nil
}

func votanteFlags(afinidad, voto int) (valido, potencial bool) {
	valido = (afinidad == 1 || afinidad == 2) && voto == 1
	potencial = afinidad == 3 && (voto == 1 || voto == 2)
	return valido, potencial
}

func encuestaFromInput(input EncuestaInput) store.Encuesta {
	valido, potencial := votanteFlags(input.NivelAfinidad, input.DisposicionVoto)
	necesidades := make([]store.EncuestaNecesidad, 0, len(input.Necesidades))
	for i, id := range input.Necesidades {
		necesidades = append(necesidades, store.EncuestaNecesidad{
			NecesidadID: id,
			Prioridad:   i + 1,
		})
	}
	return store.Encuesta{
		ZonaID:                       input.ZonaID,
		Cedula:                       input.Cedula,
		PrimerNombre:                 strings.TrimSpace(input.PrimerNombre),
		SegundoNombre:                strings.TrimSpace(input.SegundoNombre),
		PrimerApellido:               strings.TrimSpace(input.PrimerApellido),
		SegundoApellido:              strings.TrimSpace(input.SegundoApellido),
		Telefono:                     strings.TrimSpace(input.Telefono),
		Correo:                       strings.TrimSpace(input.Correo),
		Sexo:                         input.Sexo,
		TipoVivienda:                 input.TipoVivienda,
		RangoEdad:                    input.RangoEdad,
		Ocupacion:                    strings.TrimSpace(input.Ocupacion),
		TieneNinos:                   input.TieneNinos,
		TieneAdultosMayores:          input.TieneAdultosMayores,
		TienePersonasConDiscapacidad: input.TienePersonasConDiscapacidad,
		ComentarioProblema:           strings.TrimSpace(input.ComentarioProblema),
		Consentimiento:               input.Consentimiento,
		Lat:                          input.Lat,
		Lon:                          input.Lon,
		CasoCritico:                  input.CasoCritico,
		NivelAfinidad:                input.NivelAfinidad,
		DisposicionVoto:              input.DisposicionVoto,
		CapacidadInfluencia:          *input.CapacidadInfluencia,
		VotanteValido:                valido,
		VotantePotencial:             potencial,
		Necesidades:                  necesidades,
	}
}

func (s *Service) indexEncuesta(ctx context.Context, e store.Encuesta) {
	if s.search == nil {
		return
	}
	municipioID := ""
	if zona, err := s.store.GetZona(ctx, e.ZonaID); err == nil {
		municipioID = zona.MunicipioID
	}
	s.search.IndexEncuesta(search.EncuestaRecord{
		ID:          e.ID,
		Cedula:      e.Cedula,
		Nombre:      strings.TrimSpace(e.PrimerNombre + " " + e.PrimerApellido),
		Comentario:  e.ComentarioProblema,
		ZonaID:      e.ZonaID,
		MunicipioID: municipioID,
	})
}

// CreateEncuesta validates and persists a survey for the calling collaborator.
// A critical case opens a high-priority citizen case in the same transaction.
func (s *Service) CreateEncuesta(ctx context.Context, session Session, input EncuestaInput) (store.Encuesta, error) {
	if !s.Can(session.Role, rbac.ActionSubmitEncuesta) {
		return store.Encuesta{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	requireTelefono := rbac.Normalize(session.Role) == rbac.RoleColaborador
	if err := s.validateEncuesta(ctx, input, requireTelefono); err != nil {
		return store.Encuesta{}, err
	}

	encuesta := encuestaFromInput(input)
	encuesta.ID = util.NewID("enc")
	encuesta.ColaboradorID = session.UserID

	if err := s.store.InsertEncuesta(ctx, encuesta, util.NewID("cas")); err != nil {
		if errors.Is(err, store.ErrCedulaDuplicada) {
			return store.Encuesta{}, domainError(http.StatusConflict, "CONFLICT", "Ya existe una encuesta para esta cédula", nil)
		}
		return store.Encuesta{}, err
	}

	saved, err := s.store.GetEncuesta(ctx, encuesta.ID)
	if err != nil {
		return store.Encuesta{}, err
	}
	s.indexEncuesta(ctx, saved)
	return saved, nil
}

// encuestaScope narrows a ledger filter to what the caller may read.
func (s *Service) encuestaScope(ctx context.Context, session Session, filter store.EncuestaFilter) (store.EncuestaFilter, error) {
	switch rbac.Normalize(session.Role) {
	case rbac.RoleAdmin:
		return filter, nil
	case rbac.RoleColaborador:
		filter.ColaboradorID = session.UserID
		return filter, nil
	case rbac.RoleLider:
		scope, err := s.municipioScope(ctx, session)
		if err != nil {
			return filter, err
		}
		filter.MunicipioIDs = scope
		return filter, nil
	default:
		return filter, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
}

func (s *Service) ListEncuestas(ctx context.Context, session Session, filter store.EncuestaFilter) ([]store.Encuesta, error) {
	filter, err := s.encuestaScope(ctx, session, filter)
	if err != nil {
		return nil, err
	}
	if filter.MunicipioIDs != nil && len(filter.MunicipioIDs) == 0 {
		// A leader without territory reads nothing, not everything.
		return []store.Encuesta{}, nil
	}
	encuestas, err := s.store.ListEncuestas(ctx, filter)
	if err != nil {
		return nil, err
	}
	if encuestas == nil {
		encuestas = []store.Encuesta{}
	}
	return encuestas, nil
}

func (s *Service) GetEncuesta(ctx context.Context, session Session, id string) (store.Encuesta, error) {
	encuesta, err := s.store.GetEncuesta(ctx, id)
	if err != nil {
		return store.Encuesta{}, err
	}
	if rbac.Normalize(session.Role) == rbac.RoleColaborador && encuesta.ColaboradorID != session.UserID {
		return store.Encuesta{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if rbac.Normalize(session.Role) == rbac.RoleCandidato {
		return store.Encuesta{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return encuesta, nil
}

// UpdateEncuesta resubmits a survey through the same validation rules. The
// owning collaborator or an admin may edit; the admin path does not require
// a phone contact.
func (s *Service) UpdateEncuesta(ctx context.Context, session Session, id string, input EncuestaInput) (store.Encuesta, error) {
	existing, err := s.store.GetEncuesta(ctx, id)
	if err != nil {
		return store.Encuesta{}, err
	}

	role := rbac.Normalize(session.Role)
	switch role {
	case rbac.RoleAdmin:
	case rbac.RoleColaborador:
		if existing.ColaboradorID != session.UserID {
			return store.Encuesta{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		}
	default:
		return store.Encuesta{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	if err := s.validateEncuesta(ctx, input, role == rbac.RoleColaborador); err != nil {
		return store.Encuesta{}, err
	}

	encuesta := encuestaFromInput(input)
	encuesta.ID = existing.ID
	encuesta.ColaboradorID = existing.ColaboradorID

	if err := s.store.UpdateEncuesta(ctx, encuesta); err != nil {
		if errors.Is(err, store.ErrCedulaDuplicada) {
			return store.Encuesta{}, domainError(http.StatusConflict, "CONFLICT", "Ya existe una encuesta para esta cédula", nil)
		}
		return store.Encuesta{}, err
	}
	saved, err := s.store.GetEncuesta(ctx, encuesta.ID)
	if err != nil {
		return store.Encuesta{}, err
	}
	s.indexEncuesta(ctx, saved)
	return saved, nil
}

// BuscarEncuestas runs the full-text search, leader-scoped to the caller's
// municipios.
func (s *Service) BuscarEncuestas(ctx context.Context, session Session, q string, limit, offset int) (search.Response, error) {
	role := rbac.Normalize(session.Role)
	if role != rbac.RoleAdmin && role != rbac.RoleLider {
		return search.Response{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q}, nil
	}

	query := search.Query{Text: q, Limit: limit, Offset: offset}
	if role == rbac.RoleLider {
		scope, err := s.municipioScope(ctx, session)
		if err != nil {
			return search.Response{}, err
		}
		if len(scope) == 0 {
			return search.Response{Results: []search.Result{}, Query: q}, nil
		}
		query.MunicipioIDs = scope
	}
	return s.search.Search(query), nil
}

// ParseFecha parses a YYYY-MM-DD query value; the zero time means "unset".
func ParseFecha(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
