package coverage

import "testing"

func TestPorcentaje(t *testing.T) {
	cases := []struct {
		name        string
		total, meta int
		want        int
	}{
		{"sin encuestas", 0, 10, 0},
		{"sin meta", 5, 0, 0},
		{"sin nada", 0, 0, 0},
		{"parcial", 4, 20, 20},
		{"redondeo hacia arriba", 1, 3, 33},
		{"redondeo medio", 1, 8, 13}, // 12.5 redondea a 13
		{"exacto", 10, 10, 100},
		{"sobrecumplimiento capado", 12, 10, 100},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Porcentaje(c.total, c.meta); got != c.want {
				t.Fatalf("Porcentaje(%d, %d) = %d, want %d", c.total, c.meta, got, c.want)
			}
		})
	}
}

func TestPorcentajeRango(t *testing.T) {
	for total := 0; total <= 40; total++ {
		for meta := 0; meta <= 25; meta++ {
			pct := Porcentaje(total, meta)
			if pct < 0 || pct > 100 {
				t.Fatalf("Porcentaje(%d, %d) = %d fuera de rango", total, meta, pct)
			}
			if (total == 0 || meta == 0) && pct != 0 {
				t.Fatalf("Porcentaje(%d, %d) = %d, want 0", total, meta, pct)
			}
		}
	}
}

func TestEstadoFor(t *testing.T) {
	cases := []struct {
		total, meta int
		want        Estado
	}{
		{0, 10, EstadoSinCobertura},
		{0, 0, EstadoSinCobertura},
		{3, 0, EstadoBaja},
		{1, 1000, EstadoBaja}, // 0.1%: surveys exist, never SIN_COBERTURA
		{4, 10, EstadoBaja},
		{499, 1000, EstadoBaja},
		{5, 10, EstadoMedia},
		{999, 1000, EstadoMedia},
		{10, 10, EstadoCumplida},
		{15, 10, EstadoCumplida},
	}
	for _, c := range cases {
		if got := EstadoFor(c.total, c.meta); got != c.want {
			t.Errorf("EstadoFor(%d, %d) = %s, want %s", c.total, c.meta, got, c.want)
		}
	}
}

func TestEstadoForNoUsaPorcentajeRedondeado(t *testing.T) {
	// 1 of 1000 rounds to 0% but the zone is covered work, not empty.
	if Porcentaje(1, 1000) != 0 {
		t.Fatalf("Porcentaje(1, 1000) = %d, want 0", Porcentaje(1, 1000))
	}
	if got := EstadoFor(1, 1000); got != EstadoBaja {
		t.Fatalf("EstadoFor(1, 1000) = %s, want %s", got, EstadoBaja)
	}
}

func TestPorZonas(t *testing.T) {
	zonas := []Zona{
		{ID: "z1", Nombre: "El Centro", Municipio: "Ibagué", Meta: 10},
		{ID: "z2", Nombre: "La Vega", Municipio: "Ibagué", Meta: 0},
		{ID: "z3", Nombre: "San Isidro", Municipio: "Espinal", Meta: 4},
	}
	totales := map[string]int{"z1": 12, "z3": 2}

	out := PorZonas(zonas, totales)
	if len(out) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(out))
	}
	if out[0].Porcentaje != 100 || out[0].Estado != EstadoCumplida {
		t.Fatalf("z1: got %d%% %s", out[0].Porcentaje, out[0].Estado)
	}
	if out[1].Porcentaje != 0 || out[1].Estado != EstadoSinCobertura {
		t.Fatalf("z2: got %d%% %s", out[1].Porcentaje, out[1].Estado)
	}
	if out[2].Porcentaje != 50 || out[2].Estado != EstadoMedia {
		t.Fatalf("z3: got %d%% %s", out[2].Porcentaje, out[2].Estado)
	}
}

func TestColaborador(t *testing.T) {
	// Metas [5, 0, 15], 4 encuestas propias: meta 20, avance 20%.
	asignadas := []ZonaCobertura{
		{ZonaID: "z1", Meta: 5, Total: 5},
		{ZonaID: "z2", Meta: 0, Total: 3},
		{ZonaID: "z3", Meta: 15, Total: 2},
	}
	m := Colaborador(asignadas, 4)
	if m.MetaAsignada != 20 {
		t.Fatalf("MetaAsignada = %d, want 20", m.MetaAsignada)
	}
	if m.Avance != 20 {
		t.Fatalf("Avance = %d, want 20", m.Avance)
	}
	if m.TotalEncuestas != 4 {
		t.Fatalf("TotalEncuestas = %d, want 4", m.TotalEncuestas)
	}
	// z1 met its goal and z2 has no goal to miss; only z3 is pending.
	if m.ZonasCubiertas != 2 {
		t.Fatalf("ZonasCubiertas = %d, want 2", m.ZonasCubiertas)
	}
	if m.ZonasPendientes != 1 {
		t.Fatalf("ZonasPendientes = %d, want 1", m.ZonasPendientes)
	}
	if m.ZonasCubiertas+m.ZonasPendientes != len(asignadas) {
		t.Fatalf("cubiertas+pendientes = %d, want %d", m.ZonasCubiertas+m.ZonasPendientes, len(asignadas))
	}
}

func TestColaboradorZonaSinMetaCuentaComoCubierta(t *testing.T) {
	m := Colaborador([]ZonaCobertura{{ZonaID: "z1", Meta: 0, Total: 0}}, 0)
	if m.ZonasCubiertas != 1 || m.ZonasPendientes != 0 {
		t.Fatalf("goal-less zone must not stay pending forever: %+v", m)
	}
}

func TestColaboradorSinAsignaciones(t *testing.T) {
	m := Colaborador(nil, 7)
	if m.Avance != 0 || m.MetaAsignada != 0 || m.ZonasPendientes != 0 {
		t.Fatalf("unexpected metrics without assignments: %+v", m)
	}
}

func TestLiderPromedioNoPonderado(t *testing.T) {
	avances := []AvanceColaborador{
		{ColaboradorID: "c1", Activo: true, Meta: 1, Realizadas: 1, Avance: 100},
		{ColaboradorID: "c2", Activo: true, Meta: 100, Realizadas: 20, Avance: 20},
		{ColaboradorID: "c3", Activo: false, Meta: 10, Realizadas: 0, Avance: 0},
	}
	m := Lider(avances)
	if m.TotalColaboradores != 3 || m.ColaboradoresActivos != 2 {
		t.Fatalf("roster counts: %+v", m)
	}
	if m.EncuestasEquipo != 21 {
		t.Fatalf("EncuestasEquipo = %d, want 21", m.EncuestasEquipo)
	}
	// (100 + 20 + 0) / 3 = 40: the tiny goal weighs the same as the huge one.
	if m.AvancePromedio != 40 {
		t.Fatalf("AvancePromedio = %d, want 40", m.AvancePromedio)
	}
}

func TestLiderSinEquipo(t *testing.T) {
	m := Lider(nil)
	if m.AvancePromedio != 0 || m.TotalColaboradores != 0 {
		t.Fatalf("unexpected metrics for empty team: %+v", m)
	}
}

func TestResumenGlobal(t *testing.T) {
	r := ResumenGlobal([]ZonaCobertura{
		{Estado: EstadoCumplida},
		{Estado: EstadoCumplida},
		{Estado: EstadoSinCobertura},
		{Estado: EstadoBaja},
		{Estado: EstadoMedia},
	})
	if r.ZonasCumplidas != 2 || r.ZonasSinCobertura != 1 {
		t.Fatalf("unexpected resumen: %+v", r)
	}
}
