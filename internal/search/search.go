package search

// Result is a single survey hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	Cedula      string `json:"cedula"`
	Nombre      string `json:"nombre"`
	Snippet     string `json:"snippet"`
	ZonaID      string `json:"zona"`
	MunicipioID string `json:"municipio"`
}

// Query describes a search request against the survey ledger. MunicipioIDs
// restricts hits to zones of those municipios; nil means unrestricted.
type Query struct {
	Text         string
	MunicipioIDs []string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over surveys.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// EncuestaRecord is the data we index for a survey.
type EncuestaRecord struct {
	ID          string `json:"id"`
	Cedula      string `json:"cedula"`
	Nombre      string `json:"nombre"`
	Comentario  string `json:"comentario"`
	ZonaID      string `json:"zona"`
	MunicipioID string `json:"municipio"`
}
