package store

import "time"

type Usuario struct {
	ID           string
	Nombre       string
	Email        string
	PasswordHash string
	Rol          string
	Telefono     string
	Activo       bool
	CreatedBy    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Departamento struct {
	ID     string
	Nombre string
}

type Municipio struct {
	ID             string
	Nombre         string
	DepartamentoID string
	Lat            *float64
	Lon            *float64
}

type Zona struct {
	ID              string
	Nombre          string
	Tipo            string
	MunicipioID     string
	MunicipioNombre string
	Meta            int
	Lat             *float64
	Lon             *float64
}

// Asignacion carries denormalized names because listings render them and the
// clients keyed their toggle lookups on zona_id.
type Asignacion struct {
	ID                string
	ColaboradorID     string
	ColaboradorNombre string
	ZonaID            string
	ZonaNombre        string
	ZonaTipo          string
	MunicipioID       string
	MunicipioNombre   string
	AsignadoPor       *string
	CreatedAt         time.Time
}

type Necesidad struct {
	ID     string
	Nombre string
}

// EncuestaNecesidad is one prioritized need reference inside a survey. The
// priority is the 1-based selection position, never a free-form rank.
type EncuestaNecesidad struct {
	NecesidadID     string
	NecesidadNombre string
	Prioridad       int
}

type Encuesta struct {
	ID                           string
	ZonaID                       string
	ZonaNombre                   string
	ColaboradorID                string
	ColaboradorNombre            string
	Cedula                       string
	PrimerNombre                 string
	SegundoNombre                string
	PrimerApellido               string
	SegundoApellido              string
	Telefono                     string
	Correo                       string
	Sexo                         string
	TipoVivienda                 string
	RangoEdad                    string
	Ocupacion                    string
	TieneNinos                   bool
	TieneAdultosMayores          bool
	TienePersonasConDiscapacidad bool
	ComentarioProblema           string
	Consentimiento               bool
	Lat                          *float64
	Lon                          *float64
	CasoCritico                  bool
	NivelAfinidad                int
	DisposicionVoto              int
	CapacidadInfluencia          int
	VotanteValido                bool
	VotantePotencial             bool
	FechaCreacion                time.Time
	Necesidades                  []EncuestaNecesidad
}

type CasoCiudadano struct {
	ID               string
	EncuestaID       string
	NivelPrioridad   string
	Estado           string
	NotasSeguimiento string
}

type Agenda struct {
	ID                   string
	LiderID              string
	LiderNombre          string
	CandidatoID          string
	CandidatoNombre      string
	Titulo               string
	Descripcion          string
	Fecha                string
	HoraInicio           string
	HoraFin              string
	Lugar                string
	Estado               string
	MotivoReprogramacion string
	FechaCreacion        time.Time
	FechaActualizacion   time.Time
}

// UsuarioFilter narrows roster listings. Nil/empty fields are ignored.
type UsuarioFilter struct {
	Rol       string
	Activo    *bool
	CreatedBy string
}

type ZonaFilter struct {
	MunicipioID string
	Tipo        string
}

type AsignacionFilter struct {
	ColaboradorID string
	MunicipioID   string
}

// EncuestaFilter narrows the ledger. MunicipioIDs restricts to zones of those
// municipios (leader scope); Desde/Hasta bound fecha_creacion inclusively.
type EncuestaFilter struct {
	ColaboradorID string
	ZonaID        string
	MunicipioIDs  []string
	Desde         *time.Time
	Hasta         *time.Time
}

type AgendaFilter struct {
	LiderID     string
	CandidatoID string
	Estado      string
}

// NecesidadConteo is one row of the top-needs ranking.
type NecesidadConteo struct {
	Nombre string `json:"necesidad"`
	Total  int    `json:"total"`
}

// EncuestasDia is one day's submission count.
type EncuestasDia struct {
	Fecha string `json:"fecha_creacion"`
	Total int    `json:"total"`
}
