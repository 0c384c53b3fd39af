package app

import (
	"context"
	"testing"

	"pitpc/api/internal/store"
)

func agendaFixtureInput() AgendaInput {
	return AgendaInput{
		CandidatoID: "usr-cand",
		Titulo:      "Visita barrio Centro",
		Descripcion: "Recorrido con la comunidad",
		Fecha:       "2026-09-15",
		HoraInicio:  "09:00",
		HoraFin:     "11:00",
		Lugar:       "Salón comunal",
	}
}

func agendaStore(estado string) *fakeStore {
	agenda := store.Agenda{
		ID:          "agd-1",
		LiderID:     "usr-lider",
		CandidatoID: "usr-cand",
		Titulo:      "Visita barrio Centro",
		Fecha:       "2026-09-15",
		HoraInicio:  "09:00",
		HoraFin:     "11:00",
		Lugar:       "Salón comunal",
		Estado:      estado,
	}
	fs := &fakeStore{}
	fs.getAgendaFn = func(_ context.Context, id string) (store.Agenda, error) {
		snapshot := agenda
		snapshot.ID = id
		return snapshot, nil
	}
	fs.updateAgendaEstadoFn = func(_ context.Context, _, nuevo, motivo string) error {
		agenda.Estado = nuevo
		agenda.MotivoReprogramacion = motivo
		return nil
	}
	fs.updateAgendaFn = func(_ context.Context, a store.Agenda) error {
		agenda = a
		return nil
	}
	return fs
}

func TestCreateAgendaStartsPendiente(t *testing.T) {
	var created store.Agenda
	fs := &fakeStore{
		getUsuarioByIDFn: func(_ context.Context, id string) (store.Usuario, error) {
			return store.Usuario{ID: id, Nombre: "Camila", Rol: "CANDIDATO", Activo: true}, nil
		},
		createAgendaFn: func(_ context.Context, a store.Agenda) error {
			created = a
			return nil
		},
	}
	fs.getAgendaFn = func(_ context.Context, id string) (store.Agenda, error) {
		return created, nil
	}
	svc := newTestService(fs)

	agenda, err := svc.CreateAgenda(context.Background(), liderSession(), agendaFixtureInput())
	if err != nil {
		t.Fatalf("CreateAgenda() error = %v", err)
	}
	if agenda.Estado != EstadoPendiente {
		t.Fatalf("expected estado pendiente, got %s", agenda.Estado)
	}
	if agenda.LiderID != "usr-lider" {
		t.Fatalf("expected owning leader from session, got %s", agenda.LiderID)
	}
}

func TestCreateAgendaRejectsNonCandidato(t *testing.T) {
	fs := &fakeStore{
		getUsuarioByIDFn: func(_ context.Context, id string) (store.Usuario, error) {
			return store.Usuario{ID: id, Rol: "COLABORADOR", Activo: true}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateAgenda(context.Background(), liderSession(), agendaFixtureInput())
	expectDomainError(t, err, "VALIDATION_ERROR", "Candidato no válido")
}

func TestCreateAgendaForbiddenForColaborador(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.CreateAgenda(context.Background(), colaboradorSession(), agendaFixtureInput())
	expectDomainError(t, err, "FORBIDDEN", "Solo los líderes o administradores pueden crear agendas")
}

func TestResponderAgendaTransitions(t *testing.T) {
	cases := []struct {
		name   string
		accion string
		motivo string
		estado string
	}{
		{name: "aceptar", accion: "aceptar", estado: EstadoAceptada},
		{name: "rechazar", accion: "rechazar", estado: EstadoRechazada},
		{name: "reprogramar", accion: "reprogramar", motivo: "Cruce con otro evento", estado: EstadoReprogramacionSolicitada},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(agendaStore(EstadoPendiente))

			agenda, err := svc.ResponderAgenda(context.Background(), candidatoSession(), "agd-1", tc.accion, tc.motivo)
			if err != nil {
				t.Fatalf("ResponderAgenda(%s) error = %v", tc.accion, err)
			}
			if agenda.Estado != tc.estado {
				t.Fatalf("expected estado %s, got %s", tc.estado, agenda.Estado)
			}
			if tc.accion == "reprogramar" && agenda.MotivoReprogramacion != tc.motivo {
				t.Fatalf("expected motivo persisted, got %q", agenda.MotivoReprogramacion)
			}
		})
	}
}

func TestResponderAgendaYaRespondida(t *testing.T) {
	for _, estado := range []string{EstadoAceptada, EstadoRechazada} {
		svc := newTestService(agendaStore(estado))

		_, err := svc.ResponderAgenda(context.Background(), candidatoSession(), "agd-1", "aceptar", "")
		expectDomainError(t, err, "VALIDATION_ERROR", "Esta agenda ya fue respondida")
	}
}

func TestResponderAgendaDesdeReprogramacionPermitido(t *testing.T) {
	svc := newTestService(agendaStore(EstadoReprogramacionSolicitada))

	agenda, err := svc.ResponderAgenda(context.Background(), candidatoSession(), "agd-1", "aceptar", "")
	if err != nil {
		t.Fatalf("a rescheduling request is still answerable, got %v", err)
	}
	if agenda.Estado != EstadoAceptada {
		t.Fatalf("expected aceptada, got %s", agenda.Estado)
	}
}

func TestResponderAgendaReprogramarSinMotivo(t *testing.T) {
	svc := newTestService(agendaStore(EstadoPendiente))

	_, err := svc.ResponderAgenda(context.Background(), candidatoSession(), "agd-1", "reprogramar", "  ")
	expectDomainError(t, err, "VALIDATION_ERROR", "Debes indicar un motivo de reprogramación")
}

func TestResponderAgendaAccionInvalida(t *testing.T) {
	svc := newTestService(agendaStore(EstadoPendiente))

	_, err := svc.ResponderAgenda(context.Background(), candidatoSession(), "agd-1", "posponer", "")
	expectDomainError(t, err, "VALIDATION_ERROR", "Acción no válida. Usa aceptar, rechazar o reprogramar")
}

func TestResponderAgendaSoloCandidatoPropietario(t *testing.T) {
	svc := newTestService(agendaStore(EstadoPendiente))

	otro := Session{UserID: "usr-otro-cand", Role: "CANDIDATO"}
	_, err := svc.ResponderAgenda(context.Background(), otro, "agd-1", "aceptar", "")
	expectDomainError(t, err, "FORBIDDEN", "No puedes responder esta agenda")

	_, err = svc.ResponderAgenda(context.Background(), liderSession(), "agd-1", "aceptar", "")
	expectDomainError(t, err, "FORBIDDEN", "No puedes responder esta agenda")
}

func TestUpdateAgendaAceptadaCongelada(t *testing.T) {
	svc := newTestService(agendaStore(EstadoAceptada))

	_, err := svc.UpdateAgenda(context.Background(), liderSession(), "agd-1", agendaFixtureInput())
	expectDomainError(t, err, "VALIDATION_ERROR", "No se puede editar una agenda aceptada")
}

func TestUpdateAgendaPermitidaTrasRechazo(t *testing.T) {
	svc := newTestService(agendaStore(EstadoRechazada))

	input := agendaFixtureInput()
	input.Titulo = "Visita reprogramada"
	agenda, err := svc.UpdateAgenda(context.Background(), liderSession(), "agd-1", input)
	if err != nil {
		t.Fatalf("a rejected agenda stays editable, got %v", err)
	}
	if agenda.Titulo != "Visita reprogramada" {
		t.Fatalf("expected updated title, got %q", agenda.Titulo)
	}
}

func TestUpdateAgendaSoloLiderPropietario(t *testing.T) {
	svc := newTestService(agendaStore(EstadoPendiente))

	otro := Session{UserID: "usr-otro-lider", Role: "LIDER"}
	_, err := svc.UpdateAgenda(context.Background(), otro, "agd-1", agendaFixtureInput())
	expectDomainError(t, err, "FORBIDDEN", "No puedes editar esta agenda")
}

func TestCancelarAgendaPasaARechazada(t *testing.T) {
	svc := newTestService(agendaStore(EstadoPendiente))

	agenda, err := svc.CancelarAgenda(context.Background(), liderSession(), "agd-1")
	if err != nil {
		t.Fatalf("CancelarAgenda() error = %v", err)
	}
	if agenda.Estado != EstadoRechazada {
		t.Fatalf("expected rechazada, got %s", agenda.Estado)
	}
}

func TestListAgendasScopesPorRol(t *testing.T) {
	fs := agendaStore(EstadoPendiente)
	var seen store.AgendaFilter
	fs.listAgendasFn = func(_ context.Context, filter store.AgendaFilter) ([]store.Agenda, error) {
		seen = filter
		return nil, nil
	}
	svc := newTestService(fs)

	if _, err := svc.ListAgendas(context.Background(), liderSession(), store.AgendaFilter{}); err != nil {
		t.Fatalf("ListAgendas(lider) error = %v", err)
	}
	if seen.LiderID != "usr-lider" {
		t.Fatalf("expected leader scope, got %+v", seen)
	}

	if _, err := svc.ListAgendas(context.Background(), candidatoSession(), store.AgendaFilter{}); err != nil {
		t.Fatalf("ListAgendas(candidato) error = %v", err)
	}
	if seen.CandidatoID != "usr-cand" {
		t.Fatalf("expected candidate scope, got %+v", seen)
	}

	_, err := svc.ListAgendas(context.Background(), colaboradorSession(), store.AgendaFilter{})
	expectDomainError(t, err, "FORBIDDEN", "")
}

func TestValidateAgendaInput(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*AgendaInput)
		message string
	}{
		{name: "sin titulo", mutate: func(in *AgendaInput) { in.Titulo = " " }, message: "El título es obligatorio"},
		{name: "fecha invalida", mutate: func(in *AgendaInput) { in.Fecha = "15/09/2026" }, message: "La fecha debe tener formato YYYY-MM-DD"},
		{name: "sin horas", mutate: func(in *AgendaInput) { in.HoraFin = "" }, message: "Hora de inicio y fin son obligatorias"},
		{name: "sin lugar", mutate: func(in *AgendaInput) { in.Lugar = "" }, message: "El lugar es obligatorio"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := agendaFixtureInput()
			tc.mutate(&input)
			err := validateAgendaInput(input)
			expectDomainError(t, err, "VALIDATION_ERROR", tc.message)
		})
	}
}
