package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"pitpc/api/internal/authpw"
	"pitpc/api/internal/config"
	"pitpc/api/internal/store"
)

type fakeStore struct {
	getUsuarioByIDFn               func(context.Context, string) (store.Usuario, error)
	getUsuarioByEmailFn            func(context.Context, string) (store.Usuario, error)
	listUsuariosFn                 func(context.Context, store.UsuarioFilter) ([]store.Usuario, error)
	createUsuarioFn                func(context.Context, store.Usuario) error
	updateUsuarioFn                func(context.Context, store.Usuario) error
	deleteUsuarioFn                func(context.Context, string) error
	countUsuariosFn                func(context.Context) (int, error)
	updateUsuarioPasswordFn        func(context.Context, string, string) error
	listMunicipiosDeLiderFn        func(context.Context, string) ([]store.Municipio, error)
	setMunicipiosDeLiderFn         func(context.Context, string, []string) error
	getMunicipioFn                 func(context.Context, string) (store.Municipio, error)
	listZonasFn                    func(context.Context, store.ZonaFilter) ([]store.Zona, error)
	getZonaFn                      func(context.Context, string) (store.Zona, error)
	createZonaFn                   func(context.Context, store.Zona) error
	updateZonaMetaFn               func(context.Context, string, int) error
	listAsignacionesFn             func(context.Context, store.AsignacionFilter) ([]store.Asignacion, error)
	getAsignacionFn                func(context.Context, string) (store.Asignacion, error)
	createAsignacionFn             func(context.Context, store.Asignacion) error
	deleteAsignacionFn             func(context.Context, string) error
	toggleAsignacionFn             func(context.Context, string, string, string, *string) (bool, error)
	listNecesidadesFn              func(context.Context) ([]store.Necesidad, error)
	insertEncuestaFn               func(context.Context, store.Encuesta, string) error
	getEncuestaFn                  func(context.Context, string) (store.Encuesta, error)
	listEncuestasFn                func(context.Context, store.EncuestaFilter) ([]store.Encuesta, error)
	updateEncuestaFn               func(context.Context, store.Encuesta) error
	countEncuestasFn               func(context.Context) (int, error)
	countEncuestasPorZonaFn        func(context.Context) (map[string]int, error)
	countEncuestasPorColaboradorFn func(context.Context) (map[string]int, error)
	topNecesidadesFn               func(context.Context, int) ([]store.NecesidadConteo, error)
	countCasosActivosFn            func(context.Context) (int, error)
	encuestasPorDiaFn              func(context.Context) ([]store.EncuestasDia, error)
	listAgendasFn                  func(context.Context, store.AgendaFilter) ([]store.Agenda, error)
	getAgendaFn                    func(context.Context, string) (store.Agenda, error)
	createAgendaFn                 func(context.Context, store.Agenda) error
	updateAgendaFn                 func(context.Context, store.Agenda) error
	updateAgendaEstadoFn           func(context.Context, string, string, string) error
	deleteAgendaFn                 func(context.Context, string) error
	revokeAccessTokenFn            func(context.Context, string, time.Time) error
	isAccessTokenRevokedFn         func(context.Context, string) (bool, error)
	saveRefreshSessionFn           func(context.Context, string, string, time.Time) error
	lookupRefreshSessionFn         func(context.Context, string) (store.Usuario, error)
	revokeRefreshSessionFn         func(context.Context, string) error
}

func (f *fakeStore) CreateUsuario(ctx context.Context, u store.Usuario) error {
	if f.createUsuarioFn != nil {
		return f.createUsuarioFn(ctx, u)
	}
	return nil
}
func (f *fakeStore) GetUsuarioByID(ctx context.Context, id string) (store.Usuario, error) {
	if f.getUsuarioByIDFn != nil {
		return f.getUsuarioByIDFn(ctx, id)
	}
	return store.Usuario{}, sql.ErrNoRows
}
func (f *fakeStore) GetUsuarioByEmail(ctx context.Context, email string) (store.Usuario, error) {
	if f.getUsuarioByEmailFn != nil {
		return f.getUsuarioByEmailFn(ctx, email)
	}
	return store.Usuario{}, sql.ErrNoRows
}
func (f *fakeStore) ListUsuarios(ctx context.Context, filter store.UsuarioFilter) ([]store.Usuario, error) {
	if f.listUsuariosFn != nil {
		return f.listUsuariosFn(ctx, filter)
	}
	return nil, nil
}
func (f *fakeStore) UpdateUsuario(ctx context.Context, u store.Usuario) error {
	if f.updateUsuarioFn != nil {
		return f.updateUsuarioFn(ctx, u)
	}
	return nil
}
func (f *fakeStore) UpdateUsuarioPassword(ctx context.Context, id, hash string) error {
	if f.updateUsuarioPasswordFn != nil {
		return f.updateUsuarioPasswordFn(ctx, id, hash)
	}
	return nil
}
func (f *fakeStore) DeleteUsuario(ctx context.Context, id string) error {
	if f.deleteUsuarioFn != nil {
		return f.deleteUsuarioFn(ctx, id)
	}
	return nil
}
func (f *fakeStore) CountUsuarios(ctx context.Context) (int, error) {
	if f.countUsuariosFn != nil {
		return f.countUsuariosFn(ctx)
	}
	return 0, nil
}
func (f *fakeStore) ListMunicipiosDeLider(ctx context.Context, usuarioID string) ([]store.Municipio, error) {
	if f.listMunicipiosDeLiderFn != nil {
		return f.listMunicipiosDeLiderFn(ctx, usuarioID)
	}
	return nil, nil
}
func (f *fakeStore) SetMunicipiosDeLider(ctx context.Context, usuarioID string, municipioIDs []string) error {
	if f.setMunicipiosDeLiderFn != nil {
		return f.setMunicipiosDeLiderFn(ctx, usuarioID, municipioIDs)
	}
	return nil
}
func (f *fakeStore) ListDepartamentos(context.Context) ([]store.Departamento, error) {
	return nil, nil
}
func (f *fakeStore) CreateDepartamento(context.Context, store.Departamento) error { return nil }
func (f *fakeStore) ListMunicipios(context.Context) ([]store.Municipio, error)    { return nil, nil }
func (f *fakeStore) GetMunicipio(ctx context.Context, id string) (store.Municipio, error) {
	if f.getMunicipioFn != nil {
		return f.getMunicipioFn(ctx, id)
	}
	return store.Municipio{}, sql.ErrNoRows
}
func (f *fakeStore) CreateMunicipio(context.Context, store.Municipio) error { return nil }
func (f *fakeStore) ListZonas(ctx context.Context, filter store.ZonaFilter) ([]store.Zona, error) {
	if f.listZonasFn != nil {
		return f.listZonasFn(ctx, filter)
	}
	return nil, nil
}
func (f *fakeStore) GetZona(ctx context.Context, id string) (store.Zona, error) {
	if f.getZonaFn != nil {
		return f.getZonaFn(ctx, id)
	}
	return store.Zona{}, sql.ErrNoRows
}
func (f *fakeStore) CreateZona(ctx context.Context, z store.Zona) error {
	if f.createZonaFn != nil {
		return f.createZonaFn(ctx, z)
	}
	return nil
}
func (f *fakeStore) UpdateZonaMeta(ctx context.Context, id string, meta int) error {
	if f.updateZonaMetaFn != nil {
		return f.updateZonaMetaFn(ctx, id, meta)
	}
	return nil
}
func (f *fakeStore) ListAsignaciones(ctx context.Context, filter store.AsignacionFilter) ([]store.Asignacion, error) {
	if f.listAsignacionesFn != nil {
		return f.listAsignacionesFn(ctx, filter)
	}
	return nil, nil
}
func (f *fakeStore) GetAsignacion(ctx context.Context, id string) (store.Asignacion, error) {
	if f.getAsignacionFn != nil {
		return f.getAsignacionFn(ctx, id)
	}
	return store.Asignacion{ID: id}, nil
}
func (f *fakeStore) CreateAsignacion(ctx context.Context, a store.Asignacion) error {
	if f.createAsignacionFn != nil {
		return f.createAsignacionFn(ctx, a)
	}
	return nil
}
func (f *fakeStore) DeleteAsignacion(ctx context.Context, id string) error {
	if f.deleteAsignacionFn != nil {
		return f.deleteAsignacionFn(ctx, id)
	}
	return nil
}
func (f *fakeStore) ToggleAsignacion(ctx context.Context, id, colaboradorID, zonaID string, asignadoPor *string) (bool, error) {
	if f.toggleAsignacionFn != nil {
		return f.toggleAsignacionFn(ctx, id, colaboradorID, zonaID, asignadoPor)
	}
	return false, nil
}
func (f *fakeStore) ListNecesidades(ctx context.Context) ([]store.Necesidad, error) {
	if f.listNecesidadesFn != nil {
		return f.listNecesidadesFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) CreateNecesidad(context.Context, store.Necesidad) error { return nil }
func (f *fakeStore) InsertEncuesta(ctx context.Context, e store.Encuesta, casoID string) error {
	if f.insertEncuestaFn != nil {
		return f.insertEncuestaFn(ctx, e, casoID)
	}
	return nil
}
func (f *fakeStore) GetEncuesta(ctx context.Context, id string) (store.Encuesta, error) {
	if f.getEncuestaFn != nil {
		return f.getEncuestaFn(ctx, id)
	}
	return store.Encuesta{ID: id}, nil
}
func (f *fakeStore) ListEncuestas(ctx context.Context, filter store.EncuestaFilter) ([]store.Encuesta, error) {
	if f.listEncuestasFn != nil {
		return f.listEncuestasFn(ctx, filter)
	}
	return nil, nil
}
func (f *fakeStore) UpdateEncuesta(ctx context.Context, e store.Encuesta) error {
	if f.updateEncuestaFn != nil {
		return f.updateEncuestaFn(ctx, e)
	}
	return nil
}
func (f *fakeStore) CountEncuestas(ctx context.Context) (int, error) {
	if f.countEncuestasFn != nil {
		return f.countEncuestasFn(ctx)
	}
	return 0, nil
}
func (f *fakeStore) CountEncuestasPorZona(ctx context.Context) (map[string]int, error) {
	if f.countEncuestasPorZonaFn != nil {
		return f.countEncuestasPorZonaFn(ctx)
	}
	return map[string]int{}, nil
}
func (f *fakeStore) CountEncuestasPorColaborador(ctx context.Context) (map[string]int, error) {
	if f.countEncuestasPorColaboradorFn != nil {
		return f.countEncuestasPorColaboradorFn(ctx)
	}
	return map[string]int{}, nil
}
func (f *fakeStore) TopNecesidades(ctx context.Context, limit int) ([]store.NecesidadConteo, error) {
	if f.topNecesidadesFn != nil {
		return f.topNecesidadesFn(ctx, limit)
	}
	return nil, nil
}
func (f *fakeStore) CountCasosActivos(ctx context.Context) (int, error) {
	if f.countCasosActivosFn != nil {
		return f.countCasosActivosFn(ctx)
	}
	return 0, nil
}
func (f *fakeStore) EncuestasPorDia(ctx context.Context) ([]store.EncuestasDia, error) {
	if f.encuestasPorDiaFn != nil {
		return f.encuestasPorDiaFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) ListAgendas(ctx context.Context, filter store.AgendaFilter) ([]store.Agenda, error) {
	if f.listAgendasFn != nil {
		return f.listAgendasFn(ctx, filter)
	}
	return nil, nil
}
func (f *fakeStore) GetAgenda(ctx context.Context, id string) (store.Agenda, error) {
	if f.getAgendaFn != nil {
		return f.getAgendaFn(ctx, id)
	}
	return store.Agenda{}, sql.ErrNoRows
}
func (f *fakeStore) CreateAgenda(ctx context.Context, a store.Agenda) error {
	if f.createAgendaFn != nil {
		return f.createAgendaFn(ctx, a)
	}
	return nil
}
func (f *fakeStore) UpdateAgenda(ctx context.Context, a store.Agenda) error {
	if f.updateAgendaFn != nil {
		return f.updateAgendaFn(ctx, a)
	}
	return nil
}
func (f *fakeStore) UpdateAgendaEstado(ctx context.Context, id, estado, motivo string) error {
	if f.updateAgendaEstadoFn != nil {
		return f.updateAgendaEstadoFn(ctx, id, estado, motivo)
	}
	return nil
}
func (f *fakeStore) DeleteAgenda(ctx context.Context, id string) error {
	if f.deleteAgendaFn != nil {
		return f.deleteAgendaFn(ctx, id)
	}
	return nil
}
func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	if f.revokeAccessTokenFn != nil {
		return f.revokeAccessTokenFn(ctx, jti, exp)
	}
	return nil
}
func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevokedFn != nil {
		return f.isAccessTokenRevokedFn(ctx, jti)
	}
	return false, nil
}
func (f *fakeStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	if f.saveRefreshSessionFn != nil {
		return f.saveRefreshSessionFn(ctx, tokenHash, userID, expiresAt)
	}
	return nil
}
func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.Usuario, error) {
	if f.lookupRefreshSessionFn != nil {
		return f.lookupRefreshSessionFn(ctx, tokenHash)
	}
	return store.Usuario{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if f.revokeRefreshSessionFn != nil {
		return f.revokeRefreshSessionFn(ctx, tokenHash)
	}
	return nil
}
func (f *fakeStore) Ping(context.Context) error { return nil }

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
		},
		store:     fs,
		sessions:  fs,
		passwords: authpw.NewService(fs),
	}
}

func adminSession() Session {
	return Session{UserID: "usr-admin", UserName: "Administrador", Role: "ADMIN"}
}

func liderSession() Session {
	return Session{UserID: "usr-lider", UserName: "Laura", Role: "LIDER"}
}

func colaboradorSession() Session {
	return Session{UserID: "usr-col", UserName: "Carlos", Role: "COLABORADOR"}
}

func candidatoSession() Session {
	return Session{UserID: "usr-cand", UserName: "Camila", Role: "CANDIDATO"}
}

func expectDomainError(t *testing.T, err error, code, message string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, domainErr.Code, domainErr.Message)
	}
	if message != "" && domainErr.Message != message {
		t.Fatalf("expected message %q, got %q", message, domainErr.Message)
	}
	return domainErr
}

func colaboradorYZona(colaboradorID, zonaID string) *fakeStore {
	return &fakeStore{
		getUsuarioByIDFn: func(_ context.Context, id string) (store.Usuario, error) {
			if id == colaboradorID {
				return store.Usuario{ID: id, Nombre: "Carlos", Rol: "COLABORADOR", Activo: true}, nil
			}
			return store.Usuario{}, sql.ErrNoRows
		},
		getZonaFn: func(_ context.Context, id string) (store.Zona, error) {
			if id == zonaID {
				return store.Zona{ID: id, Nombre: "Centro", MunicipioID: "mun-1"}, nil
			}
			return store.Zona{}, sql.ErrNoRows
		},
	}
}

func TestToggleAsignacionReportsDirection(t *testing.T) {
	fs := colaboradorYZona("usr-col", "zon-1")
	assigned := true
	fs.toggleAsignacionFn = func(_ context.Context, _, colaboradorID, zonaID string, asignadoPor *string) (bool, error) {
		if colaboradorID != "usr-col" || zonaID != "zon-1" {
			t.Fatalf("unexpected pair %s/%s", colaboradorID, zonaID)
		}
		if asignadoPor == nil || *asignadoPor != "usr-lider" {
			t.Fatalf("expected asignadoPor usr-lider, got %v", asignadoPor)
		}
		return assigned, nil
	}
	svc := newTestService(fs)

	payload, err := svc.ToggleAsignacion(context.Background(), liderSession(), "usr-col", "zon-1")
	if err != nil {
		t.Fatalf("ToggleAsignacion() error = %v", err)
	}
	if payload["result"] != "assigned" {
		t.Fatalf("expected result assigned, got %v", payload["result"])
	}

	assigned = false
	payload, err = svc.ToggleAsignacion(context.Background(), liderSession(), "usr-col", "zon-1")
	if err != nil {
		t.Fatalf("ToggleAsignacion() second call error = %v", err)
	}
	if payload["result"] != "unassigned" {
		t.Fatalf("expected result unassigned, got %v", payload["result"])
	}
	if payload["colaborador"] != "usr-col" || payload["zona"] != "zon-1" {
		t.Fatalf("expected pair echoed back, got %v", payload)
	}
}

func TestToggleAsignacionRejectsNonColaborador(t *testing.T) {
	fs := colaboradorYZona("usr-col", "zon-1")
	fs.getUsuarioByIDFn = func(_ context.Context, id string) (store.Usuario, error) {
		return store.Usuario{ID: id, Rol: "LIDER", Activo: true}, nil
	}
	svc := newTestService(fs)

	_, err := svc.ToggleAsignacion(context.Background(), adminSession(), "usr-otro-lider", "zon-1")
	expectDomainError(t, err, "VALIDATION_ERROR", "Solo los colaboradores reciben zonas asignadas")
}

func TestToggleAsignacionForbiddenForColaborador(t *testing.T) {
	svc := newTestService(colaboradorYZona("usr-col", "zon-1"))

	_, err := svc.ToggleAsignacion(context.Background(), colaboradorSession(), "usr-col", "zon-1")
	expectDomainError(t, err, "FORBIDDEN", "")
}

func TestCreateAsignacionDuplicateConflict(t *testing.T) {
	fs := colaboradorYZona("usr-col", "zon-1")
	fs.createAsignacionFn = func(context.Context, store.Asignacion) error {
		return store.ErrAsignacionDuplicada
	}
	svc := newTestService(fs)

	_, err := svc.CreateAsignacion(context.Background(), liderSession(), "usr-col", "zon-1")
	domainErr := expectDomainError(t, err, "CONFLICT", "El colaborador ya tiene asignada esta zona")
	if domainErr.Status != 409 {
		t.Fatalf("expected status 409, got %d", domainErr.Status)
	}
}

func TestDeleteUsuarioRejectsSelf(t *testing.T) {
	svc := newTestService(&fakeStore{})

	err := svc.DeleteUsuario(context.Background(), adminSession(), "usr-admin")
	expectDomainError(t, err, "VALIDATION_ERROR", "No puedes eliminar tu propia cuenta")
}

func TestCreateUsuarioLiderSoloColaboradores(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.CreateUsuario(context.Background(), liderSession(), UsuarioInput{
		Nombre:   "Otro Líder",
		Email:    "otro@campo.co",
		Password: "clave-segura",
		Rol:      "LIDER",
	})
	expectDomainError(t, err, "FORBIDDEN", "Solo puedes crear colaboradores")
}

func TestCreateUsuarioDuplicateEmail(t *testing.T) {
	fs := &fakeStore{
		getUsuarioByEmailFn: func(_ context.Context, email string) (store.Usuario, error) {
			return store.Usuario{ID: "usr-x", Email: email}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateUsuario(context.Background(), adminSession(), UsuarioInput{
		Nombre:   "Carlos",
		Email:    "carlos@campo.co",
		Password: "clave-segura",
		Rol:      "COLABORADOR",
	})
	expectDomainError(t, err, "CONFLICT", "El correo ya está registrado")
}

func TestSetMunicipiosDeLiderRequiereRolLider(t *testing.T) {
	fs := &fakeStore{
		getUsuarioByIDFn: func(_ context.Context, id string) (store.Usuario, error) {
			return store.Usuario{ID: id, Rol: "COLABORADOR", Activo: true}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.SetMunicipiosDeLider(context.Background(), adminSession(), "usr-col", []string{"mun-1"})
	expectDomainError(t, err, "VALIDATION_ERROR", "Solo los líderes tienen municipios asignados")
}

func TestCreateZonaDefaults(t *testing.T) {
	var created store.Zona
	fs := &fakeStore{
		getMunicipioFn: func(_ context.Context, id string) (store.Municipio, error) {
			return store.Municipio{ID: id, Nombre: "Montería"}, nil
		},
		createZonaFn: func(_ context.Context, z store.Zona) error {
			created = z
			return nil
		},
	}
	svc := newTestService(fs)

	zona, err := svc.CreateZona(context.Background(), adminSession(), ZonaInput{
		Nombre:      "  La Granja ",
		MunicipioID: "mun-1",
	})
	if err != nil {
		t.Fatalf("CreateZona() error = %v", err)
	}
	if zona.Tipo != "BARRIO" {
		t.Fatalf("expected default tipo BARRIO, got %s", zona.Tipo)
	}
	if zona.Meta != 0 {
		t.Fatalf("expected default meta 0, got %d", zona.Meta)
	}
	if created.Nombre != "La Granja" {
		t.Fatalf("expected trimmed nombre, got %q", created.Nombre)
	}
	if created.MunicipioNombre != "Montería" {
		t.Fatalf("expected municipio name denormalized, got %q", created.MunicipioNombre)
	}
}

func TestCreateZonaRejectsNegativeMeta(t *testing.T) {
	fs := &fakeStore{
		getMunicipioFn: func(_ context.Context, id string) (store.Municipio, error) {
			return store.Municipio{ID: id, Nombre: "Montería"}, nil
		},
	}
	svc := newTestService(fs)

	meta := -5
	_, err := svc.CreateZona(context.Background(), adminSession(), ZonaInput{
		Nombre:      "Centro",
		MunicipioID: "mun-1",
		Meta:        &meta,
	})
	expectDomainError(t, err, "VALIDATION_ERROR", "La meta no puede ser negativa")
}
