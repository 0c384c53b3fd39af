// Package coverage is the single implementation of the territorial coverage
// and progress rules. It is pure: inputs are snapshots of zones, assignments
// and survey counts; outputs are derived records. Nothing here touches the
// store or the network, so the same math backs every dashboard.
package coverage

import "math"

type Estado string

const (
	EstadoSinCobertura Estado = "SIN_COBERTURA"
	EstadoBaja         Estado = "BAJA"
	EstadoMedia        Estado = "MEDIA"
	EstadoCumplida     Estado = "CUMPLIDA"
)

// Zona is the catalog slice the calculator needs: identity plus goal.
type Zona struct {
	ID        string
	Nombre    string
	Municipio string
	Meta      int
}

// ZonaCobertura is the derived per-zone record. It is recomputed on every
// request and never persisted.
type ZonaCobertura struct {
	ZonaID     string `json:"zona"`
	Nombre     string `json:"zona_nombre"`
	Municipio  string `json:"municipio_nombre"`
	Meta       int    `json:"meta_encuestas"`
	Total      int    `json:"total_encuestas"`
	Porcentaje int    `json:"cobertura_porcentaje"`
	Estado     Estado `json:"estado_cobertura"`
}

// Porcentaje returns the completion percentage for a zone: zero unless both
// the survey count and the goal are positive, otherwise total/meta rounded
// half-up and capped at 100. Over-delivery never displays beyond 100.
func Porcentaje(total, meta int) int {
	if total <= 0 || meta <= 0 {
		return 0
	}
	pct := int(math.Round(float64(total) / float64(meta) * 100))
	if pct > 100 {
		return 100
	}
	return pct
}

// EstadoFor buckets a zone into the coverage bands. SIN_COBERTURA means no
// surveys at all; the other bands come from the raw ratio, before rounding,
// so a zone with any surveys is at least BAJA even when its percentage
// rounds down to zero.
func EstadoFor(total, meta int) Estado {
	if total <= 0 {
		return EstadoSinCobertura
	}
	if meta <= 0 {
		return EstadoBaja
	}
	ratio := float64(total) / float64(meta) * 100
	switch {
	case ratio < 50:
		return EstadoBaja
	case ratio < 100:
		return EstadoMedia
	default:
		return EstadoCumplida
	}
}

// PorZonas derives a ZonaCobertura per zone from the catalog snapshot and the
// per-zone survey counts. Zones absent from totales count as zero.
func PorZonas(zonas []Zona, totales map[string]int) []ZonaCobertura {
	out := make([]ZonaCobertura, 0, len(zonas))
	for _, z := range zonas {
		total := totales[z.ID]
		out = append(out, ZonaCobertura{
			ZonaID:     z.ID,
			Nombre:     z.Nombre,
			Municipio:  z.Municipio,
			Meta:       z.Meta,
			Total:      total,
			Porcentaje: Porcentaje(total, z.Meta),
			Estado:     EstadoFor(total, z.Meta),
		})
	}
	return out
}

// MetricasColaborador is the collaborator dashboard.
type MetricasColaborador struct {
	TotalEncuestas  int `json:"total_encuestas"`
	MetaAsignada    int `json:"meta_asignada"`
	Avance          int `json:"avance_porcentaje"`
	ZonasCubiertas  int `json:"zonas_cubiertas"`
	ZonasPendientes int `json:"zonas_pendientes"`
}

// Colaborador derives the collaborator view from the coverage of the zones
// assigned to them and their own submission count. propias is the
// collaborator's own surveys, not the zone totals: a zone accumulates surveys
// from every collaborator assigned to it.
func Colaborador(asignadas []ZonaCobertura, propias int) MetricasColaborador {
	metaAsignada := 0
	cubiertas := 0
	for _, z := range asignadas {
		metaAsignada += z.Meta
		if z.Total >= z.Meta {
			cubiertas++
		}
	}
	pendientes := len(asignadas) - cubiertas
	if pendientes < 0 {
		pendientes = 0
	}
	return MetricasColaborador{
		TotalEncuestas:  propias,
		MetaAsignada:    metaAsignada,
		Avance:          Porcentaje(propias, metaAsignada),
		ZonasCubiertas:  cubiertas,
		ZonasPendientes: pendientes,
	}
}

// AvanceColaborador is one row of the per-collaborator progress listing.
type AvanceColaborador struct {
	ColaboradorID string `json:"colaborador"`
	Nombre        string `json:"nombre"`
	Activo        bool   `json:"activo"`
	Meta          int    `json:"meta_encuestas"`
	Realizadas    int    `json:"encuestas_realizadas"`
	Avance        int    `json:"avance_porcentaje"`
}

// MetricasLider is the leader dashboard over their team.
type MetricasLider struct {
	TotalColaboradores   int `json:"total_colaboradores"`
	ColaboradoresActivos int `json:"colaboradores_activos"`
	EncuestasEquipo      int `json:"encuestas_equipo"`
	AvancePromedio       int `json:"avance_promedio"`
}

// Lider aggregates per-collaborator progress rows into the leader view.
// AvancePromedio is the unweighted mean of each collaborator's capped
// percentage: a collaborator with goal 1 and one with goal 100 count equally.
func Lider(avances []AvanceColaborador) MetricasLider {
	m := MetricasLider{TotalColaboradores: len(avances)}
	suma := 0
	for _, a := range avances {
		if a.Activo {
			m.ColaboradoresActivos++
		}
		m.EncuestasEquipo += a.Realizadas
		suma += a.Avance
	}
	if len(avances) > 0 {
		m.AvancePromedio = int(math.Round(float64(suma) / float64(len(avances))))
	}
	return m
}

// Resumen holds the global coverage counts of the admin summary.
type Resumen struct {
	ZonasCumplidas    int
	ZonasSinCobertura int
}

// ResumenGlobal counts the fulfilled and uncovered zones of a coverage
// snapshot.
func ResumenGlobal(zonas []ZonaCobertura) Resumen {
	var r Resumen
	for _, z := range zonas {
		switch z.Estado {
		case EstadoCumplida:
			r.ZonasCumplidas++
		case EstadoSinCobertura:
			r.ZonasSinCobertura++
		}
	}
	return r
}
