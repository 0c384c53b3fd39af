package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"pitpc/api/internal/coverage"
	"pitpc/api/internal/rbac"
	"pitpc/api/internal/store"
	"pitpc/api/internal/util"
)

var tiposZona = map[string]struct{}{
	"COMUNA":        {},
	"CORREGIMIENTO": {},
	"BARRIO":        {},
	"VEREDA":        {},
}

// ── Catálogo territorial ──

func (s *Service) ListDepartamentos(ctx context.Context) ([]store.Departamento, error) {
	departamentos, err := s.store.ListDepartamentos(ctx)
	if err != nil {
		return nil, err
	}
	if departamentos == nil {
		departamentos = []store.Departamento{}
	}
	return departamentos, nil
}

func (s *Service) CreateDepartamento(ctx context.Context, session Session, nombre string) (store.Departamento, error) {
	if !s.Can(session.Role, rbac.ActionManageTerritory) {
		return store.Departamento{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	nombre = strings.TrimSpace(nombre)
	if nombre == "" {
		return store.Departamento{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "El nombre del departamento es obligatorio", nil)
	}
	departamento := store.Departamento{ID: util.NewID("dep"), Nombre: nombre}
	if err := s.store.CreateDepartamento(ctx, departamento); err != nil {
		return store.Departamento{}, err
	}
	return departamento, nil
}

func (s *Service) ListMunicipios(ctx context.Context) ([]store.Municipio, error) {
	municipios, err := s.store.ListMunicipios(ctx)
	if err != nil {
		return nil, err
	}
	if municipios == nil {
		municipios = []store.Municipio{}
	}
	return municipios, nil
}

type MunicipioInput struct {
	Nombre         string   `json:"nombre"`
	DepartamentoID string   `json:"departamento"`
	Lat            *float64 `json:"lat"`
	Lon            *float64 `json:"lon"`
}

func (s *Service) CreateMunicipio(ctx context.Context, session Session, input MunicipioInput) (store.Municipio, error) {
	if !s.Can(session.Role, rbac.ActionManageTerritory) {
		return store.Municipio{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	nombre := strings.TrimSpace(input.Nombre)
	if nombre == "" || strings.TrimSpace(input.DepartamentoID) == "" {
		return store.Municipio{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Nombre y departamento son obligatorios", nil)
	}
	municipio := store.Municipio{
		ID:             util.NewID("mun"),
		Nombre:         nombre,
		DepartamentoID: input.DepartamentoID,
		Lat:            input.Lat,
		Lon:            input.Lon,
	}
	if err := s.store.CreateMunicipio(ctx, municipio); err != nil {
		return store.Municipio{}, err
	}
	return municipio, nil
}

func (s *Service) ListZonas(ctx context.Context, filter store.ZonaFilter) ([]store.Zona, error) {
	zonas, err := s.store.ListZonas(ctx, filter)
	if err != nil {
		return nil, err
	}
	if zonas == nil {
		zonas = []store.Zona{}
	}
	return zonas, nil
}

type ZonaInput struct {
	Nombre      string   `json:"nombre"`
	Tipo        string   `json:"tipo"`
	MunicipioID string   `json:"municipio"`
	Meta        *int     `json:"meta_encuestas"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
}

// CreateZona registers a zone. The goal defaults to 0 when omitted; creation
// never assigns the zone to anyone.
func (s *Service) CreateZona(ctx context.Context, session Session, input ZonaInput) (store.Zona, error) {
	if !s.Can(session.Role, rbac.ActionManageTerritory) {
		return store.Zona{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if strings.TrimSpace(input.MunicipioID) == "" {
		return store.Zona{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Selecciona un municipio antes de crear la zona", nil)
	}
	nombre := strings.TrimSpace(input.Nombre)
	if nombre == "" {
		return store.Zona{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "El nombre de la zona es obligatorio", nil)
	}
	tipo := strings.ToUpper(strings.TrimSpace(input.Tipo))
	if tipo == "" {
		tipo = "BARRIO"
	}
	if _, ok := tiposZona[tipo]; !ok {
		return store.Zona{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Tipo de zona no válido", nil)
	}
	municipio, err := s.store.GetMunicipio(ctx, input.MunicipioID)
	if err != nil {
		return store.Zona{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Municipio no válido", nil)
	}

	meta := 0
	if input.Meta != nil {
		if *input.Meta < 0 {
			return store.Zona{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "La meta no puede ser negativa", nil)
		}
		meta = *input.Meta
	}

	zona := store.Zona{
		ID:              util.NewID("zon"),
		Nombre:          nombre,
		Tipo:            tipo,
		MunicipioID:     municipio.ID,
		MunicipioNombre: municipio.Nombre,
		Meta:            meta,
		Lat:             input.Lat,
		Lon:             input.Lon,
	}
	if err := s.store.CreateZona(ctx, zona); err != nil {
		return store.Zona{}, err
	}
	return zona, nil
}

func (s *Service) UpdateZonaMeta(ctx context.Context, session Session, zonaID string, meta int) (store.Zona, error) {
	if !s.Can(session.Role, rbac.ActionManageTerritory) {
		return store.Zona{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if meta < 0 {
		return store.Zona{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "La meta no puede ser negativa", nil)
	}
	if _, err := s.store.GetZona(ctx, zonaID); err != nil {
		return store.Zona{}, err
	}
	if err := s.store.UpdateZonaMeta(ctx, zonaID, meta); err != nil {
		return store.Zona{}, err
	}
	return s.store.GetZona(ctx, zonaID)
}

// ── Asignaciones ──

func (s *Service) ListAsignaciones(ctx context.Context, session Session, filter store.AsignacionFilter) ([]store.Asignacion, error) {
	if rbac.Normalize(session.Role) == rbac.RoleColaborador {
		filter.ColaboradorID = session.UserID
	}
	asignaciones, err := s.store.ListAsignaciones(ctx, filter)
	if err != nil {
		return nil, err
	}
	if asignaciones == nil {
		asignaciones = []store.Asignacion{}
	}
	return asignaciones, nil
}

func (s *Service) checkAsignacionPair(ctx context.Context, colaboradorID, zonaID string) error {
	colaborador, err := s.store.GetUsuarioByID(ctx, colaboradorID)
	if err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Selecciona un colaborador para asignar zonas", nil)
	}
	if colaborador.Rol != string(rbac.RoleColaborador) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Solo los colaboradores reciben zonas asignadas", nil)
	}
	if _, err := s.store.GetZona(ctx, zonaID); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Zona no válida", nil)
	}
	return nil
}

func (s *Service) CreateAsignacion(ctx context.Context, session Session, colaboradorID, zonaID string) (store.Asignacion, error) {
	if !s.Can(session.Role, rbac.ActionManageTerritory) {
		return store.Asignacion{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if err := s.checkAsignacionPair(ctx, colaboradorID, zonaID); err != nil {
		return store.Asignacion{}, err
	}

	asignadoPor := session.UserID
	asignacion := store.Asignacion{
		ID:            util.NewID("asg"),
		ColaboradorID: colaboradorID,
		ZonaID:        zonaID,
		AsignadoPor:   &asignadoPor,
	}
	if err := s.store.CreateAsignacion(ctx, asignacion); err != nil {
		if errors.Is(err, store.ErrAsignacionDuplicada) {
			return store.Asignacion{}, domainError(http.StatusConflict, "CONFLICT", "El colaborador ya tiene asignada esta zona", nil)
		}
		return store.Asignacion{}, err
	}
	return s.store.GetAsignacion(ctx, asignacion.ID)
}

func (s *Service) DeleteAsignacion(ctx context.Context, session Session, id string) error {
	if !s.Can(session.Role, rbac.ActionManageTerritory) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return s.store.DeleteAsignacion(ctx, id)
}

// ToggleAsignacion flips the (colaborador, zona) membership server-side and
// reports which way it went. Deleting an assignment never touches the surveys
// already submitted for the zone.
func (s *Service) ToggleAsignacion(ctx context.Context, session Session, colaboradorID, zonaID string) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionManageTerritory) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if err := s.checkAsignacionPair(ctx, colaboradorID, zonaID); err != nil {
		return nil, err
	}

	asignadoPor := session.UserID
	assigned, err := s.store.ToggleAsignacion(ctx, util.NewID("asg"), colaboradorID, zonaID, &asignadoPor)
	if err != nil {
		return nil, err
	}
	result := "unassigned"
	if assigned {
		result = "assigned"
	}
	return map[string]any{
		"result":      result,
		"colaborador": colaboradorID,
		"zona":        zonaID,
	}, nil
}

// ── Cobertura y tableros ──

func toCoverageZonas(zonas []store.Zona) []coverage.Zona {
	out := make([]coverage.Zona, 0, len(zonas))
	for _, z := range zonas {
		out = append(out, coverage.Zona{
			ID:        z.ID,
			Nombre:    z.Nombre,
			Municipio: z.MunicipioNombre,
			Meta:      z.Meta,
		})
	}
	return out
}

// CoberturaZonas is the single source of truth every screen reads coverage
// from; nothing downstream re-derives percentages or state bands.
func (s *Service) CoberturaZonas(ctx context.Context, session Session, filter store.ZonaFilter) ([]coverage.ZonaCobertura, error) {
	zonas, err := s.store.ListZonas(ctx, filter)
	if err != nil {
		return nil, err
	}
	totales, err := s.store.CountEncuestasPorZona(ctx)
	if err != nil {
		return nil, err
	}

	scope, err := s.municipioScope(ctx, session)
	if err != nil {
		return nil, err
	}
	if scope != nil {
		scoped := make([]store.Zona, 0, len(zonas))
		inScope := make(map[string]struct{}, len(scope))
		for _, id := range scope {
			inScope[id] = struct{}{}
		}
		for _, z := range zonas {
			if _, ok := inScope[z.MunicipioID]; ok {
				scoped = append(scoped, z)
			}
		}
		zonas = scoped
	}

	return coverage.PorZonas(toCoverageZonas(zonas), totales), nil
}

// DashboardColaborador assembles the caller's own field metrics.
func (s *Service) DashboardColaborador(ctx context.Context, session Session) (map[string]any, error) {
	asignaciones, err := s.store.ListAsignaciones(ctx, store.AsignacionFilter{ColaboradorID: session.UserID})
	if err != nil {
		return nil, err
	}
	totales, err := s.store.CountEncuestasPorZona(ctx)
	if err != nil {
		return nil, err
	}

	asignadas := make([]coverage.ZonaCobertura, 0, len(asignaciones))
	for _, a := range asignaciones {
		zona, err := s.store.GetZona(ctx, a.ZonaID)
		if err != nil {
			return nil, err
		}
		asignadas = append(asignadas, coverage.PorZonas(toCoverageZonas([]store.Zona{zona}), totales)...)
	}

	porColaborador, err := s.store.CountEncuestasPorColaborador(ctx)
	if err != nil {
		return nil, err
	}

	metricas := coverage.Colaborador(asignadas, porColaborador[session.UserID])
	return map[string]any{
		"metricas": metricas,
		"zonas":    asignadas,
	}, nil
}

// avanceEquipo computes per-collaborator progress rows for the leader and
// admin dashboards. Leaders only see the collaborators they created; admins
// see the whole roster.
func (s *Service) avanceEquipo(ctx context.Context, session Session) ([]coverage.AvanceColaborador, error) {
	filter := store.UsuarioFilter{Rol: string(rbac.RoleColaborador)}
	if rbac.Normalize(session.Role) == rbac.RoleLider {
		filter.CreatedBy = session.UserID
	}
	colaboradores, err := s.store.ListUsuarios(ctx, filter)
	if err != nil {
		return nil, err
	}
	asignaciones, err := s.store.ListAsignaciones(ctx, store.AsignacionFilter{})
	if err != nil {
		return nil, err
	}
	zonas, err := s.store.ListZonas(ctx, store.ZonaFilter{})
	if err != nil {
		return nil, err
	}
	realizadas, err := s.store.CountEncuestasPorColaborador(ctx)
	if err != nil {
		return nil, err
	}

	metas := make(map[string]int, len(zonas))
	for _, z := range zonas {
		metas[z.ID] = z.Meta
	}
	metaPorColaborador := make(map[string]int, len(colaboradores))
	for _, a := range asignaciones {
		metaPorColaborador[a.ColaboradorID] += metas[a.ZonaID]
	}

	avances := make([]coverage.AvanceColaborador, 0, len(colaboradores))
	for _, c := range colaboradores {
		meta := metaPorColaborador[c.ID]
		total := realizadas[c.ID]
		avances = append(avances, coverage.AvanceColaborador{
			ColaboradorID: c.ID,
			Nombre:        c.Nombre,
			Activo:        c.Activo,
			Meta:          meta,
			Realizadas:    total,
			Avance:        coverage.Porcentaje(total, meta),
		})
	}
	return avances, nil
}

func (s *Service) DashboardLider(ctx context.Context, session Session) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionManageTerritory) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	avances, err := s.avanceEquipo(ctx, session)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"metricas":      coverage.Lider(avances),
		"colaboradores": avances,
	}, nil
}

// DashboardResumen returns the admin headline numbers.
func (s *Service) DashboardResumen(ctx context.Context, session Session) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	total, err := s.store.CountEncuestas(ctx)
	if err != nil {
		return nil, err
	}
	cobertura, err := s.CoberturaZonas(ctx, session, store.ZonaFilter{})
	if err != nil {
		return nil, err
	}
	resumen := coverage.ResumenGlobal(cobertura)
	top, err := s.store.TopNecesidades(ctx, 3)
	if err != nil {
		return nil, err
	}
	if top == nil {
		top = []store.NecesidadConteo{}
	}
	casos, err := s.store.CountCasosActivos(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"total_encuestas":     total,
		"zonas_cumplidas":     resumen.ZonasCumplidas,
		"zonas_sin_cobertura": resumen.ZonasSinCobertura,
		"top_necesidades":     top,
		"casos_activos":       casos,
	}, nil
}

// AvanceColaboradores lists per-collaborator progress rows: the full roster
// for admins, the caller's own team for leaders.
func (s *Service) AvanceColaboradores(ctx context.Context, session Session) ([]coverage.AvanceColaborador, error) {
	if !s.Can(session.Role, rbac.ActionManageTerritory) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return s.avanceEquipo(ctx, session)
}

func (s *Service) EncuestasPorDia(ctx context.Context, session Session) ([]store.EncuestasDia, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	dias, err := s.store.EncuestasPorDia(ctx)
	if err != nil {
		return nil, err
	}
	if dias == nil {
		dias = []store.EncuestasDia{}
	}
	return dias, nil
}
