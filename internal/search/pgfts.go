package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries encuestas using plainto_tsquery and ts_rank, with
// ts_headline for snippets. A cédula is matched by prefix too, since numbers
// survive stemming untouched.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "(e.fts @@ plainto_tsquery('spanish', $1) OR e.cedula LIKE $1 || '%')"
	args := []any{q.Text}
	if len(q.MunicipioIDs) > 0 {
		placeholders := make([]string, 0, len(q.MunicipioIDs))
		for _, id := range q.MunicipioIDs {
			args = append(args, id)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		where += fmt.Sprintf(" AND z.municipio_id IN (%s)", strings.Join(placeholders, ", "))
	}

	ctx := context.Background()

	countSQL := `
		SELECT count(*)
		FROM encuestas e
		JOIN zonas z ON z.id = e.zona_id
		WHERE ` + where
	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT e.id, e.cedula,
			TRIM(coalesce(e.primer_nombre, '') || ' ' || coalesce(e.primer_apellido, '')) AS nombre,
			ts_headline('spanish', coalesce(e.comentario_problema, ''), plainto_tsquery('spanish', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			e.zona_id, z.municipio_id,
			ts_rank(e.fts, plainto_tsquery('spanish', $1)) AS rank
		FROM encuestas e
		JOIN zonas z ON z.id = e.zona_id
		WHERE %s
		ORDER BY rank DESC, e.fecha_creacion DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var rank float64
		if err := rows.Scan(&r.ID, &r.Cedula, &r.Nombre, &r.Snippet, &r.ZonaID, &r.MunicipioID, &rank); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable surveys for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]EncuestaRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT e.id, e.cedula,
			TRIM(coalesce(e.primer_nombre, '') || ' ' || coalesce(e.segundo_nombre, '') || ' ' ||
				coalesce(e.primer_apellido, '') || ' ' || coalesce(e.segundo_apellido, '')),
			coalesce(e.comentario_problema, ''),
			e.zona_id, z.municipio_id
		FROM encuestas e
		JOIN zonas z ON z.id = e.zona_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load encuestas: %w", err)
	}
	defer rows.Close()

	records := make([]EncuestaRecord, 0)
	for rows.Next() {
		var r EncuestaRecord
		if err := rows.Scan(&r.ID, &r.Cedula, &r.Nombre, &r.Comentario, &r.ZonaID, &r.MunicipioID); err != nil {
			return nil, fmt.Errorf("scan encuesta: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate encuestas: %w", err)
	}

	return records, nil
}
