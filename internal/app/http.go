package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pitpc/api/internal/auth"
	"pitpc/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "usuario": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "usuario": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"usuario": map[string]any{
				"id":     session.UserID,
				"nombre": session.UserName,
				"email":  session.Email,
				"rol":    session.Role,
			},
		})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "departamentos":
		s.handleDepartamentos(w, r, session, parts)
	case "municipios":
		s.handleMunicipios(w, r, session, parts)
	case "usuarios":
		s.handleUsuarios(w, r, session, parts)
	case "zonas":
		s.handleZonas(w, r, session, parts)
	case "asignaciones":
		s.handleAsignaciones(w, r, session, parts)
	case "necesidades":
		s.handleNecesidades(w, r, session, parts)
	case "encuestas":
		s.handleEncuestas(w, r, session, parts)
	case "cobertura":
		s.handleCobertura(w, r, session, parts)
	case "dashboard":
		s.handleDashboard(w, r, session, parts)
	case "agendas":
		s.handleAgendas(w, r, session, parts)
	case "buscar":
		s.handleBuscar(w, r, session, parts)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"usuario": map[string]any{
			"id":     session.UserID,
			"nombre": session.UserName,
			"email":  session.Email,
			"rol":    session.Role,
		},
		"expiresAt": session.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) handleDepartamentos(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		departamentos, err := s.service.ListDepartamentos(r.Context())
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, departamentos)
	case http.MethodPost:
		var body struct {
			Nombre string `json:"nombre"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		departamento, err := s.service.CreateDepartamento(r.Context(), session, body.Nombre)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, departamento)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleMunicipios(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		municipios, err := s.service.ListMunicipios(r.Context())
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, municipios)
	case http.MethodPost:
		var body MunicipioInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		municipio, err := s.service.CreateMunicipio(r.Context(), session, body)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, municipio)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleUsuarios(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	// /api/usuarios/{id}/municipios
	if len(parts) == 4 && parts[3] == "municipios" {
		usuarioID := parts[2]
		switch r.Method {
		case http.MethodGet:
			municipios, err := s.service.ListMunicipiosDeLider(r.Context(), session, usuarioID)
			if err != nil {
				s.respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, municipios)
		case http.MethodPost:
			var body struct {
				Municipios []string `json:"municipios"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			municipios, err := s.service.SetMunicipiosDeLider(r.Context(), session, usuarioID, body.Municipios)
			if err != nil {
				s.respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, municipios)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 3 {
		usuarioID := parts[2]
		switch r.Method {
		case http.MethodPut, http.MethodPatch:
			var body UsuarioInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			usuario, err := s.service.UpdateUsuario(r.Context(), session, usuarioID, body)
			if err != nil {
				s.respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, usuario)
		case http.MethodDelete:
			if err := s.service.DeleteUsuario(r.Context(), session, usuarioID); err != nil {
				s.respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		filter := store.UsuarioFilter{Rol: strings.ToUpper(r.URL.Query().Get("rol"))}
		if activo := r.URL.Query().Get("activo"); activo != "" {
			parsed := activo == "true"
			filter.Activo = &parsed
		}
		usuarios, err := s.service.ListUsuarios(r.Context(), session, filter)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, usuarios)
	case http.MethodPost:
		var body UsuarioInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		usuario, err := s.service.CreateUsuario(r.Context(), session, body)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, usuario)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleZonas(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	// PATCH /api/zonas/{id}/meta
	if len(parts) == 4 && parts[3] == "meta" {
		if r.Method != http.MethodPatch && r.Method != http.MethodPut {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		var body struct {
			Meta int `json:"meta_encuestas"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		zona, err := s.service.UpdateZonaMeta(r.Context(), session, parts[2], body.Meta)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, zona)
		return
	}

	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		filter := store.ZonaFilter{
			MunicipioID: r.URL.Query().Get("municipio"),
			Tipo:        strings.ToUpper(r.URL.Query().Get("tipo")),
		}
		zonas, err := s.service.ListZonas(r.Context(), filter)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, zonas)
	case http.MethodPost:
		var body ZonaInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		zona, err := s.service.CreateZona(r.Context(), session, body)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, zona)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleAsignaciones(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 3 && parts[2] == "toggle" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		var body struct {
			ColaboradorID string `json:"colaborador"`
			ZonaID        string `json:"zona"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.ToggleAsignacion(r.Context(), session, body.ColaboradorID, body.ZonaID)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 3 {
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if err := s.service.DeleteAsignacion(r.Context(), session, parts[2]); err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		filter := store.AsignacionFilter{
			ColaboradorID: r.URL.Query().Get("colaborador"),
			MunicipioID:   r.URL.Query().Get("municipio"),
		}
		asignaciones, err := s.service.ListAsignaciones(r.Context(), session, filter)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, asignaciones)
	case http.MethodPost:
		var body struct {
			ColaboradorID string `json:"colaborador"`
			ZonaID        string `json:"zona"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		asignacion, err := s.service.CreateAsignacion(r.Context(), session, body.ColaboradorID, body.ZonaID)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, asignacion)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleNecesidades(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 2 || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	necesidades, err := s.service.ListNecesidades(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, necesidades)
}

func (s *HTTPServer) handleEncuestas(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 3 {
		encuestaID := parts[2]
		switch r.Method {
		case http.MethodGet:
			encuesta, err := s.service.GetEncuesta(r.Context(), session, encuestaID)
			if err != nil {
				s.respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, encuestaPayload(encuesta))
		case http.MethodPatch, http.MethodPut:
			var body EncuestaInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			encuesta, err := s.service.UpdateEncuesta(r.Context(), session, encuestaID, body)
			if err != nil {
				s.respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, encuestaPayload(encuesta))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		filter := store.EncuestaFilter{
			ColaboradorID: r.URL.Query().Get("colaborador"),
			ZonaID:        r.URL.Query().Get("zona"),
		}
		if desde, ok := ParseFecha(r.URL.Query().Get("desde")); ok {
			filter.Desde = &desde
		}
		if hasta, ok := ParseFecha(r.URL.Query().Get("hasta")); ok {
			filter.Hasta = &hasta
		}
		encuestas, err := s.service.ListEncuestas(r.Context(), session, filter)
		if err != nil {
			s.respondError(w, err)
			return
		}
		items := make([]map[string]any, 0, len(encuestas))
		for _, e := range encuestas {
			items = append(items, encuestaPayload(e))
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var body EncuestaInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		encuesta, err := s.service.CreateEncuesta(r.Context(), session, body)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, encuestaPayload(encuesta))
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func encuestaPayload(e store.Encuesta) map[string]any {
	necesidades := make([]map[string]any, 0, len(e.Necesidades))
	for _, n := range e.Necesidades {
		necesidades = append(necesidades, map[string]any{
			"necesidad": n.NecesidadID,
			"nombre":    n.NecesidadNombre,
			"prioridad": n.Prioridad,
		})
	}
	return map[string]any{
		"id":                              e.ID,
		"zona":                            e.ZonaID,
		"zona_nombre":                     e.ZonaNombre,
		"colaborador":                     e.ColaboradorID,
		"colaborador_nombre":              e.ColaboradorNombre,
		"cedula":                          e.Cedula,
		"primer_nombre":                   e.PrimerNombre,
		"segundo_nombre":                  e.SegundoNombre,
		"primer_apellido":                 e.PrimerApellido,
		"segundo_apellido":                e.SegundoApellido,
		"telefono":                        e.Telefono,
		"correo":                          e.Correo,
		"sexo":                            e.Sexo,
		"tipo_vivienda":                   e.TipoVivienda,
		"rango_edad":                      e.RangoEdad,
		"ocupacion":                       e.Ocupacion,
		"tiene_ninos":                     e.TieneNinos,
		"tiene_adultos_mayores":           e.TieneAdultosMayores,
		"tiene_personas_con_discapacidad": e.TienePersonasConDiscapacidad,
		"comentario_problema":             e.ComentarioProblema,
		"consentimiento":                  e.Consentimiento,
		"lat":                             e.Lat,
		"lon":                             e.Lon,
		"caso_critico":                    e.CasoCritico,
		"nivel_afinidad":                  e.NivelAfinidad,
		"disposicion_voto":                e.DisposicionVoto,
		"capacidad_influencia":            e.CapacidadInfluencia,
		"votante_valido":                  e.VotanteValido,
		"votante_potencial":               e.VotantePotencial,
		"fecha_creacion":                  e.FechaCreacion,
		"necesidades":                     necesidades,
	}
}

func (s *HTTPServer) handleCobertura(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 3 || parts[2] != "zonas" || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	filter := store.ZonaFilter{
		MunicipioID: r.URL.Query().Get("municipio"),
		Tipo:        strings.ToUpper(r.URL.Query().Get("tipo")),
	}
	cobertura, err := s.service.CoberturaZonas(r.Context(), session, filter)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cobertura)
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 3 || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch parts[2] {
	case "colaborador":
		payload, err := s.service.DashboardColaborador(r.Context(), session)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case "lider":
		payload, err := s.service.DashboardLider(r.Context(), session)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case "resumen":
		payload, err := s.service.DashboardResumen(r.Context(), session)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case "avance_colaboradores":
		avances, err := s.service.AvanceColaboradores(r.Context(), session)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, avances)
	case "encuestas_por_dia":
		dias, err := s.service.EncuestasPorDia(r.Context(), session)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dias)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAgendas(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 4 {
		agendaID := parts[2]
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		switch parts[3] {
		case "cancelar":
			agenda, err := s.service.CancelarAgenda(r.Context(), session, agendaID)
			if err != nil {
				s.respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, agenda)
		case "responder":
			var body struct {
				Accion string `json:"accion"`
				Motivo string `json:"motivo_reprogramacion"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			agenda, err := s.service.ResponderAgenda(r.Context(), session, agendaID, body.Accion, body.Motivo)
			if err != nil {
				s.respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, agenda)
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return
	}

	if len(parts) == 3 {
		agendaID := parts[2]
		switch r.Method {
		case http.MethodGet:
			agenda, err := s.service.GetAgenda(r.Context(), session, agendaID)
			if err != nil {
				s.respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, agenda)
		case http.MethodPut, http.MethodPatch:
			var body AgendaInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			agenda, err := s.service.UpdateAgenda(r.Context(), session, agendaID, body)
			if err != nil {
				s.respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, agenda)
		case http.MethodDelete:
			if err := s.service.DeleteAgenda(r.Context(), session, agendaID); err != nil {
				s.respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		filter := store.AgendaFilter{
			CandidatoID: r.URL.Query().Get("candidato"),
			Estado:      r.URL.Query().Get("estado"),
		}
		agendas, err := s.service.ListAgendas(r.Context(), session, filter)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agendas)
	case http.MethodPost:
		var body AgendaInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		agenda, err := s.service.CreateAgenda(r.Context(), session, body)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, agenda)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleBuscar(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 3 || parts[2] != "encuestas" || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	response, err := s.service.BuscarEncuestas(r.Context(), session, r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) respondError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
