package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrAsignacionDuplicada signals an insert for a (colaborador, zona) pair
	// that already has a row. The DB unique constraint is the real guarantee;
	// this error is the friendly face of it.
	ErrAsignacionDuplicada = errors.New("asignacion duplicada")
	// ErrCedulaDuplicada signals a survey for a cédula already in the ledger.
	ErrCedulaDuplicada = errors.New("cedula duplicada")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Usuarios ──

const usuarioColumns = `id, nombre, email, password_hash, rol, COALESCE(telefono, ''), activo, created_by, created_at, updated_at`

func scanUsuario(row interface{ Scan(...any) error }) (Usuario, error) {
	var u Usuario
	err := row.Scan(&u.ID, &u.Nombre, &u.Email, &u.PasswordHash, &u.Rol, &u.Telefono, &u.Activo, &u.CreatedBy, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *PostgresStore) CreateUsuario(ctx context.Context, u Usuario) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usuarios (id, nombre, email, password_hash, rol, telefono, activo, created_by)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
	`, u.ID, u.Nombre, u.Email, u.PasswordHash, u.Rol, u.Telefono, u.Activo, u.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert usuario: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUsuarioByID(ctx context.Context, id string) (Usuario, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+usuarioColumns+` FROM usuarios WHERE id=$1`, id)
	return scanUsuario(row)
}

func (s *PostgresStore) GetUsuarioByEmail(ctx context.Context, email string) (Usuario, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+usuarioColumns+` FROM usuarios WHERE LOWER(email)=LOWER($1)`, email)
	return scanUsuario(row)
}

func (s *PostgresStore) ListUsuarios(ctx context.Context, filter UsuarioFilter) ([]Usuario, error) {
	query := `SELECT ` + usuarioColumns + ` FROM usuarios`
	var conditions []string
	var args []any
	if filter.Rol != "" {
		args = append(args, filter.Rol)
		conditions = append(conditions, fmt.Sprintf("rol=$%d", len(args)))
	}
	if filter.Activo != nil {
		args = append(args, *filter.Activo)
		conditions = append(conditions, fmt.Sprintf("activo=$%d", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY nombre"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list usuarios: %w", err)
	}
	defer rows.Close()

	var items []Usuario
	for rows.Next() {
		u, err := scanUsuario(rows)
		if err != nil {
			return nil, fmt.Errorf("scan usuario: %w", err)
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateUsuario(ctx context.Context, u Usuario) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE usuarios
		SET nombre=$2, email=$3, rol=$4, telefono=NULLIF($5, ''), activo=$6, updated_at=NOW()
		WHERE id=$1
	`, u.ID, u.Nombre, u.Email, u.Rol, u.Telefono, u.Activo)
	if err != nil {
		return fmt.Errorf("update usuario: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUsuarioPassword(ctx context.Context, id, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE usuarios SET password_hash=$2, updated_at=NOW() WHERE id=$1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update usuario password: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUsuario(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM usuarios WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete usuario: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) CountUsuarios(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usuarios`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count usuarios: %w", err)
	}
	return count, nil
}

// ── Territorio ──

func (s *PostgresStore) ListDepartamentos(ctx context.Context) ([]Departamento, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, nombre FROM departamentos ORDER BY nombre`)
	if err != nil {
		return nil, fmt.Errorf("list departamentos: %w", err)
	}
	defer rows.Close()

	var items []Departamento
	for rows.Next() {
		var d Departamento
		if err := rows.Scan(&d.ID, &d.Nombre); err != nil {
			return nil, fmt.Errorf("scan departamento: %w", err)
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CreateDepartamento(ctx context.Context, d Departamento) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO departamentos (id, nombre) VALUES ($1, $2)`, d.ID, d.Nombre)
	if err != nil {
		return fmt.Errorf("insert departamento: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMunicipios(ctx context.Context) ([]Municipio, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, nombre, departamento_id, lat, lon FROM municipios ORDER BY nombre`)
	if err != nil {
		return nil, fmt.Errorf("list municipios: %w", err)
	}
	defer rows.Close()
	return collectMunicipios(rows)
}

func (s *PostgresStore) GetMunicipio(ctx context.Context, id string) (Municipio, error) {
	var m Municipio
	err := s.db.QueryRowContext(ctx, `SELECT id, nombre, departamento_id, lat, lon FROM municipios WHERE id=$1`, id).
		Scan(&m.ID, &m.Nombre, &m.DepartamentoID, &m.Lat, &m.Lon)
	return m, err
}

func (s *PostgresStore) CreateMunicipio(ctx context.Context, m Municipio) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO municipios (id, nombre, departamento_id, lat, lon)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.Nombre, m.DepartamentoID, m.Lat, m.Lon)
	if err != nil {
		return fmt.Errorf("insert municipio: %w", err)
	}
	return nil
}

func collectMunicipios(rows *sql.Rows) ([]Municipio, error) {
	var items []Municipio
	for rows.Next() {
		var m Municipio
		if err := rows.Scan(&m.ID, &m.Nombre, &m.DepartamentoID, &m.Lat, &m.Lon); err != nil {
			return nil, fmt.Errorf("scan municipio: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (s *PostgresStore) ListMunicipiosDeLider(ctx context.Context, usuarioID string) ([]Municipio, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.nombre, m.departamento_id, m.lat, m.lon
		FROM lider_municipios lm
		JOIN municipios m ON m.id = lm.municipio_id
		WHERE lm.usuario_id = $1
		ORDER BY m.nombre
	`, usuarioID)
	if err != nil {
		return nil, fmt.Errorf("list municipios de lider: %w", err)
	}
	defer rows.Close()
	return collectMunicipios(rows)
}

// SetMunicipiosDeLider replaces the leader's municipio set atomically.
func (s *PostgresStore) SetMunicipiosDeLider(ctx context.Context, usuarioID string, municipioIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set municipios: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lider_municipios WHERE usuario_id=$1`, usuarioID); err != nil {
		return fmt.Errorf("clear municipios de lider: %w", err)
	}
	for _, municipioID := range municipioIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lider_municipios (usuario_id, municipio_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, usuarioID, municipioID); err != nil {
			return fmt.Errorf("insert municipio de lider: %w", err)
		}
	}
	return tx.Commit()
}

const zonaColumns = `
	z.id, z.nombre, z.tipo, z.municipio_id, m.nombre,
	COALESCE(mz.meta_encuestas, 0), z.lat, z.lon
`

func (s *PostgresStore) ListZonas(ctx context.Context, filter ZonaFilter) ([]Zona, error) {
	query := `
		SELECT ` + zonaColumns + `
		FROM zonas z
		JOIN municipios m ON m.id = z.municipio_id
		LEFT JOIN metas_zona mz ON mz.zona_id = z.id
	`
	var conditions []string
	var args []any
	if filter.MunicipioID != "" {
		args = append(args, filter.MunicipioID)
		conditions = append(conditions, fmt.Sprintf("z.municipio_id=$%d", len(args)))
	}
	if filter.Tipo != "" {
		args = append(args, filter.Tipo)
		conditions = append(conditions, fmt.Sprintf("z.tipo=$%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY m.nombre, z.nombre"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list zonas: %w", err)
	}
	defer rows.Close()

	var items []Zona
	for rows.Next() {
		var z Zona
		if err := rows.Scan(&z.ID, &z.Nombre, &z.Tipo, &z.MunicipioID, &z.MunicipioNombre, &z.Meta, &z.Lat, &z.Lon); err != nil {
			return nil, fmt.Errorf("scan zona: %w", err)
		}
		items = append(items, z)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetZona(ctx context.Context, id string) (Zona, error) {
	var z Zona
	err := s.db.QueryRowContext(ctx, `
		SELECT `+zonaColumns+`
		FROM zonas z
		JOIN municipios m ON m.id = z.municipio_id
		LEFT JOIN metas_zona mz ON mz.zona_id = z.id
		WHERE z.id=$1
	`, id).Scan(&z.ID, &z.Nombre, &z.Tipo, &z.MunicipioID, &z.MunicipioNombre, &z.Meta, &z.Lat, &z.Lon)
	return z, err
}

func (s *PostgresStore) CreateZona(ctx context.Context, z Zona) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert zona: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO zonas (id, nombre, tipo, municipio_id, lat, lon)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, z.ID, z.Nombre, z.Tipo, z.MunicipioID, z.Lat, z.Lon); err != nil {
		return fmt.Errorf("insert zona: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metas_zona (zona_id, meta_encuestas) VALUES ($1, $2)
	`, z.ID, z.Meta); err != nil {
		return fmt.Errorf("insert meta zona: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) UpdateZonaMeta(ctx context.Context, zonaID string, meta int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metas_zona (zona_id, meta_encuestas)
		VALUES ($1, $2)
		ON CONFLICT (zona_id) DO UPDATE SET meta_encuestas=EXCLUDED.meta_encuestas
	`, zonaID, meta)
	if err != nil {
		return fmt.Errorf("update meta zona: %w", err)
	}
	return nil
}

// ── Asignaciones ──

const asignacionColumns = `
	a.id, a.colaborador_id, u.nombre, a.zona_id, z.nombre, z.tipo,
	z.municipio_id, m.nombre, a.asignado_por, a.created_at
`

const asignacionFrom = `
	FROM asignaciones a
	JOIN usuarios u ON u.id = a.colaborador_id
	JOIN zonas z ON z.id = a.zona_id
	JOIN municipios m ON m.id = z.municipio_id
`

func scanAsignacion(row interface{ Scan(...any) error }) (Asignacion, error) {
	var a Asignacion
	err := row.Scan(&a.ID, &a.ColaboradorID, &a.ColaboradorNombre, &a.ZonaID, &a.ZonaNombre,
		&a.ZonaTipo, &a.MunicipioID, &a.MunicipioNombre, &a.AsignadoPor, &a.CreatedAt)
	return a, err
}

func (s *PostgresStore) ListAsignaciones(ctx context.Context, filter AsignacionFilter) ([]Asignacion, error) {
	query := `SELECT ` + asignacionColumns + asignacionFrom
	var conditions []string
	var args []any
	if filter.ColaboradorID != "" {
		args = append(args, filter.ColaboradorID)
		conditions = append(conditions, fmt.Sprintf("a.colaborador_id=$%d", len(args)))
	}
	if filter.MunicipioID != "" {
		args = append(args, filter.MunicipioID)
		conditions = append(conditions, fmt.Sprintf("z.municipio_id=$%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY m.nombre, z.nombre"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list asignaciones: %w", err)
	}
	defer rows.Close()

	var items []Asignacion
	for rows.Next() {
		a, err := scanAsignacion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asignacion: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetAsignacion(ctx context.Context, id string) (Asignacion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+asignacionColumns+asignacionFrom+` WHERE a.id=$1`, id)
	return scanAsignacion(row)
}

func (s *PostgresStore) CreateAsignacion(ctx context.Context, a Asignacion) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO asignaciones (id, colaborador_id, zona_id, asignado_por)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (colaborador_id, zona_id) DO NOTHING
	`, a.ID, a.ColaboradorID, a.ZonaID, a.AsignadoPor)
	if err != nil {
		return fmt.Errorf("insert asignacion: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrAsignacionDuplicada
	}
	return nil
}

func (s *PostgresStore) DeleteAsignacion(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM asignaciones WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete asignacion: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ToggleAsignacion flips the membership of a (colaborador, zona) pair in one
// transaction: delete wins when the row exists, otherwise insert. The unique
// constraint serializes concurrent toggles of the same pair, so the caller
// never needs a check-then-act round trip.
func (s *PostgresStore) ToggleAsignacion(ctx context.Context, newID, colaboradorID, zonaID string, asignadoPor *string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin toggle asignacion: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM asignaciones WHERE colaborador_id=$1 AND zona_id=$2
	`, colaboradorID, zonaID)
	if err != nil {
		return false, fmt.Errorf("toggle delete asignacion: %w", err)
	}
	if deleted, _ := result.RowsAffected(); deleted > 0 {
		return false, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO asignaciones (id, colaborador_id, zona_id, asignado_por)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (colaborador_id, zona_id) DO NOTHING
	`, newID, colaboradorID, zonaID, asignadoPor); err != nil {
		return false, fmt.Errorf("toggle insert asignacion: %w", err)
	}
	return true, tx.Commit()
}

// ── Necesidades y encuestas ──

func (s *PostgresStore) ListNecesidades(ctx context.Context) ([]Necesidad, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, nombre FROM necesidades ORDER BY nombre`)
	if err != nil {
		return nil, fmt.Errorf("list necesidades: %w", err)
	}
	defer rows.Close()

	var items []Necesidad
	for rows.Next() {
		var n Necesidad
		if err := rows.Scan(&n.ID, &n.Nombre); err != nil {
			return nil, fmt.Errorf("scan necesidad: %w", err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CreateNecesidad(ctx context.Context, n Necesidad) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO necesidades (id, nombre) VALUES ($1, $2)`, n.ID, n.Nombre)
	if err != nil {
		return fmt.Errorf("insert necesidad: %w", err)
	}
	return nil
}

const encuestaColumns = `
	e.id, e.zona_id, z.nombre, e.colaborador_id, u.nombre,
	e.cedula, COALESCE(e.primer_nombre, ''), COALESCE(e.segundo_nombre, ''),
	COALESCE(e.primer_apellido, ''), COALESCE(e.segundo_apellido, ''),
	e.telefono, COALESCE(e.correo, ''), COALESCE(e.sexo, ''),
	COALESCE(e.tipo_vivienda, ''), COALESCE(e.rango_edad, ''), COALESCE(e.ocupacion, ''),
	e.tiene_ninos, e.tiene_adultos_mayores, e.tiene_personas_con_discapacidad,
	COALESCE(e.comentario_problema, ''), e.consentimiento, e.lat, e.lon,
	e.caso_critico, COALESCE(e.nivel_afinidad, 0), COALESCE(e.disposicion_voto, 0),
	COALESCE(e.capacidad_influencia, 0), e.votante_valido, e.votante_potencial,
	e.fecha_creacion
`

const encuestaFrom = `
	FROM encuestas e
	JOIN zonas z ON z.id = e.zona_id
	JOIN usuarios u ON u.id = e.colaborador_id
`

func scanEncuesta(row interface{ Scan(...any) error }) (Encuesta, error) {
	var e Encuesta
	err := row.Scan(&e.ID, &e.ZonaID, &e.ZonaNombre, &e.ColaboradorID, &e.ColaboradorNombre,
		&e.Cedula, &e.PrimerNombre, &e.SegundoNombre, &e.PrimerApellido, &e.SegundoApellido,
		&e.Telefono, &e.Correo, &e.Sexo, &e.TipoVivienda, &e.RangoEdad, &e.Ocupacion,
		&e.TieneNinos, &e.TieneAdultosMayores, &e.TienePersonasConDiscapacidad,
		&e.ComentarioProblema, &e.Consentimiento, &e.Lat, &e.Lon,
		&e.CasoCritico, &e.NivelAfinidad, &e.DisposicionVoto, &e.CapacidadInfluencia,
		&e.VotanteValido, &e.VotantePotencial, &e.FechaCreacion)
	return e, err
}

func encuestaWhere(filter EncuestaFilter) (string, []any) {
	var conditions []string
	var args []any
	if filter.ColaboradorID != "" {
		args = append(args, filter.ColaboradorID)
		conditions = append(conditions, fmt.Sprintf("e.colaborador_id=$%d", len(args)))
	}
	if filter.ZonaID != "" {
		args = append(args, filter.ZonaID)
		conditions = append(conditions, fmt.Sprintf("e.zona_id=$%d", len(args)))
	}
	if len(filter.MunicipioIDs) > 0 {
		placeholders := make([]string, 0, len(filter.MunicipioIDs))
		for _, id := range filter.MunicipioIDs {
			args = append(args, id)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conditions = append(conditions, "z.municipio_id IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Desde != nil {
		args = append(args, *filter.Desde)
		conditions = append(conditions, fmt.Sprintf("e.fecha_creacion >= $%d", len(args)))
	}
	if filter.Hasta != nil {
		args = append(args, *filter.Hasta)
		conditions = append(conditions, fmt.Sprintf("e.fecha_creacion <= $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func (s *PostgresStore) ListEncuestas(ctx context.Context, filter EncuestaFilter) ([]Encuesta, error) {
	where, args := encuestaWhere(filter)
	query := `SELECT ` + encuestaColumns + encuestaFrom + where + ` ORDER BY e.fecha_creacion DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list encuestas: %w", err)
	}
	defer rows.Close()

	var items []Encuesta
	index := map[string]int{}
	for rows.Next() {
		e, err := scanEncuesta(rows)
		if err != nil {
			return nil, fmt.Errorf("scan encuesta: %w", err)
		}
		index[e.ID] = len(items)
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	needQuery := `
		SELECT en.encuesta_id, en.necesidad_id, n.nombre, en.prioridad
		FROM encuesta_necesidades en
		JOIN necesidades n ON n.id = en.necesidad_id
		JOIN encuestas e ON e.id = en.encuesta_id
		JOIN zonas z ON z.id = e.zona_id
	` + where + ` ORDER BY en.encuesta_id, en.prioridad`
	needRows, err := s.db.QueryContext(ctx, needQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("list encuesta necesidades: %w", err)
	}
	defer needRows.Close()

	for needRows.Next() {
		var encuestaID string
		var n EncuestaNecesidad
		if err := needRows.Scan(&encuestaID, &n.NecesidadID, &n.NecesidadNombre, &n.Prioridad); err != nil {
			return nil, fmt.Errorf("scan encuesta necesidad: %w", err)
		}
		if i, ok := index[encuestaID]; ok {
			items[i].Necesidades = append(items[i].Necesidades, n)
		}
	}
	return items, needRows.Err()
}

func (s *PostgresStore) GetEncuesta(ctx context.Context, id string) (Encuesta, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+encuestaColumns+encuestaFrom+` WHERE e.id=$1`, id)
	e, err := scanEncuesta(row)
	if err != nil {
		return Encuesta{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT en.necesidad_id, n.nombre, en.prioridad
		FROM encuesta_necesidades en
		JOIN necesidades n ON n.id = en.necesidad_id
		WHERE en.encuesta_id = $1
		ORDER BY en.prioridad
	`, id)
	if err != nil {
		return Encuesta{}, fmt.Errorf("list necesidades de encuesta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n EncuestaNecesidad
		if err := rows.Scan(&n.NecesidadID, &n.NecesidadNombre, &n.Prioridad); err != nil {
			return Encuesta{}, fmt.Errorf("scan encuesta necesidad: %w", err)
		}
		e.Necesidades = append(e.Necesidades, n)
	}
	return e, rows.Err()
}

// InsertEncuesta persists the survey, its prioritized needs and, for critical
// cases, the citizen case, in one transaction. casoID is used only when
// e.CasoCritico is set.
func (s *PostgresStore) InsertEncuesta(ctx context.Context, e Encuesta, casoID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert encuesta: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM encuestas WHERE cedula=$1)`, e.Cedula).Scan(&exists); err != nil {
		return fmt.Errorf("check cedula: %w", err)
	}
	if exists {
		return ErrCedulaDuplicada
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO encuestas (
			id, zona_id, colaborador_id, cedula,
			primer_nombre, segundo_nombre, primer_apellido, segundo_apellido,
			telefono, correo, sexo, tipo_vivienda, rango_edad, ocupacion,
			tiene_ninos, tiene_adultos_mayores, tiene_personas_con_discapacidad,
			comentario_problema, consentimiento, lat, lon, caso_critico,
			nivel_afinidad, disposicion_voto, capacidad_influencia,
			votante_valido, votante_potencial
		) VALUES (
			$1, $2, $3, $4,
			NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
			$9, NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''),
			$15, $16, $17,
			NULLIF($18, ''), $19, $20, $21, $22,
			$23, $24, $25,
			$26, $27
		)
	`, e.ID, e.ZonaID, e.ColaboradorID, e.Cedula,
		e.PrimerNombre, e.SegundoNombre, e.PrimerApellido, e.SegundoApellido,
		e.Telefono, e.Correo, e.Sexo, e.TipoVivienda, e.RangoEdad, e.Ocupacion,
		e.TieneNinos, e.TieneAdultosMayores, e.TienePersonasConDiscapacidad,
		e.ComentarioProblema, e.Consentimiento, e.Lat, e.Lon, e.CasoCritico,
		e.NivelAfinidad, e.DisposicionVoto, e.CapacidadInfluencia,
		e.VotanteValido, e.VotantePotencial); err != nil {
		return fmt.Errorf("insert encuesta: %w", err)
	}

	for _, n := range e.Necesidades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO encuesta_necesidades (encuesta_id, necesidad_id, prioridad)
			VALUES ($1, $2, $3)
		`, e.ID, n.NecesidadID, n.Prioridad); err != nil {
			return fmt.Errorf("insert encuesta necesidad: %w", err)
		}
	}

	if e.CasoCritico {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO casos_ciudadano (id, encuesta_id, nivel_prioridad)
			VALUES ($1, $2, 'ALTA')
		`, casoID, e.ID); err != nil {
			return fmt.Errorf("insert caso ciudadano: %w", err)
		}
	}
	return tx.Commit()
}

// UpdateEncuesta rewrites the mutable survey fields and replaces the need set.
func (s *PostgresStore) UpdateEncuesta(ctx context.Context, e Encuesta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update encuesta: %w", err)
	}
	defer tx.Rollback()

	var taken bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM encuestas WHERE cedula=$1 AND id<>$2)`, e.Cedula, e.ID).Scan(&taken); err != nil {
		return fmt.Errorf("check cedula: %w", err)
	}
	if taken {
		return ErrCedulaDuplicada
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE encuestas SET
			zona_id=$2, cedula=$3,
			primer_nombre=NULLIF($4, ''), segundo_nombre=NULLIF($5, ''),
			primer_apellido=NULLIF($6, ''), segundo_apellido=NULLIF($7, ''),
			telefono=$8, correo=NULLIF($9, ''), sexo=NULLIF($10, ''),
			tipo_vivienda=NULLIF($11, ''), rango_edad=NULLIF($12, ''), ocupacion=NULLIF($13, ''),
			tiene_ninos=$14, tiene_adultos_mayores=$15, tiene_personas_con_discapacidad=$16,
			comentario_problema=NULLIF($17, ''), consentimiento=$18, lat=$19, lon=$20,
			caso_critico=$21, nivel_afinidad=$22, disposicion_voto=$23, capacidad_influencia=$24,
			votante_valido=$25, votante_potencial=$26
		WHERE id=$1
	`, e.ID, e.ZonaID, e.Cedula,
		e.PrimerNombre, e.SegundoNombre, e.PrimerApellido, e.SegundoApellido,
		e.Telefono, e.Correo, e.Sexo, e.TipoVivienda, e.RangoEdad, e.Ocupacion,
		e.TieneNinos, e.TieneAdultosMayores, e.TienePersonasConDiscapacidad,
		e.ComentarioProblema, e.Consentimiento, e.Lat, e.Lon,
		e.CasoCritico, e.NivelAfinidad, e.DisposicionVoto, e.CapacidadInfluencia,
		e.VotanteValido, e.VotantePotencial)
	if err != nil {
		return fmt.Errorf("update encuesta: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM encuesta_necesidades WHERE encuesta_id=$1`, e.ID); err != nil {
		return fmt.Errorf("clear encuesta necesidades: %w", err)
	}
	for _, n := range e.Necesidades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO encuesta_necesidades (encuesta_id, necesidad_id, prioridad)
			VALUES ($1, $2, $3)
		`, e.ID, n.NecesidadID, n.Prioridad); err != nil {
			return fmt.Errorf("insert encuesta necesidad: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) CountEncuestas(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM encuestas`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count encuestas: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountEncuestasPorZona(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT zona_id, COUNT(*) FROM encuestas GROUP BY zona_id`)
	if err != nil {
		return nil, fmt.Errorf("count encuestas por zona: %w", err)
	}
	defer rows.Close()

	totals := map[string]int{}
	for rows.Next() {
		var zonaID string
		var total int
		if err := rows.Scan(&zonaID, &total); err != nil {
			return nil, fmt.Errorf("scan conteo zona: %w", err)
		}
		totals[zonaID] = total
	}
	return totals, rows.Err()
}

func (s *PostgresStore) CountEncuestasPorColaborador(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT colaborador_id, COUNT(*) FROM encuestas GROUP BY colaborador_id`)
	if err != nil {
		return nil, fmt.Errorf("count encuestas por colaborador: %w", err)
	}
	defer rows.Close()

	totals := map[string]int{}
	for rows.Next() {
		var colaboradorID string
		var total int
		if err := rows.Scan(&colaboradorID, &total); err != nil {
			return nil, fmt.Errorf("scan conteo colaborador: %w", err)
		}
		totals[colaboradorID] = total
	}
	return totals, rows.Err()
}

func (s *PostgresStore) TopNecesidades(ctx context.Context, limit int) ([]NecesidadConteo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.nombre, COUNT(*) AS total
		FROM encuesta_necesidades en
		JOIN necesidades n ON n.id = en.necesidad_id
		GROUP BY n.nombre
		ORDER BY total DESC, n.nombre
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("top necesidades: %w", err)
	}
	defer rows.Close()

	var items []NecesidadConteo
	for rows.Next() {
		var n NecesidadConteo
		if err := rows.Scan(&n.Nombre, &n.Total); err != nil {
			return nil, fmt.Errorf("scan necesidad conteo: %w", err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CountCasosActivos(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM casos_ciudadano WHERE estado <> 'ATENDIDO'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count casos activos: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) EncuestasPorDia(ctx context.Context) ([]EncuestasDia, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT TO_CHAR(fecha_creacion::date, 'YYYY-MM-DD') AS fecha, COUNT(*)
		FROM encuestas
		GROUP BY fecha_creacion::date
		ORDER BY fecha_creacion::date
	`)
	if err != nil {
		return nil, fmt.Errorf("encuestas por dia: %w", err)
	}
	defer rows.Close()

	var items []EncuestasDia
	for rows.Next() {
		var d EncuestasDia
		if err := rows.Scan(&d.Fecha, &d.Total); err != nil {
			return nil, fmt.Errorf("scan encuestas dia: %w", err)
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// ── Agendas ──

const agendaColumns = `
	a.id, a.lider_id, l.nombre, a.candidato_id, c.nombre,
	a.titulo, a.descripcion, TO_CHAR(a.fecha, 'YYYY-MM-DD'), a.hora_inicio, a.hora_fin,
	a.lugar, a.estado, a.motivo_reprogramacion, a.fecha_creacion, a.fecha_actualizacion
`

const agendaFrom = `
	FROM agendas a
	JOIN usuarios l ON l.id = a.lider_id
	JOIN usuarios c ON c.id = a.candidato_id
`

func scanAgenda(row interface{ Scan(...any) error }) (Agenda, error) {
	var a Agenda
	err := row.Scan(&a.ID, &a.LiderID, &a.LiderNombre, &a.CandidatoID, &a.CandidatoNombre,
		&a.Titulo, &a.Descripcion, &a.Fecha, &a.HoraInicio, &a.HoraFin,
		&a.Lugar, &a.Estado, &a.MotivoReprogramacion, &a.FechaCreacion, &a.FechaActualizacion)
	return a, err
}

func (s *PostgresStore) ListAgendas(ctx context.Context, filter AgendaFilter) ([]Agenda, error) {
	query := `SELECT ` + agendaColumns + agendaFrom
	var conditions []string
	var args []any
	if filter.LiderID != "" {
		args = append(args, filter.LiderID)
		conditions = append(conditions, fmt.Sprintf("a.lider_id=$%d", len(args)))
	}
	if filter.CandidatoID != "" {
		args = append(args, filter.CandidatoID)
		conditions = append(conditions, fmt.Sprintf("a.candidato_id=$%d", len(args)))
	}
	if filter.Estado != "" {
		args = append(args, filter.Estado)
		conditions = append(conditions, fmt.Sprintf("a.estado=$%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY a.fecha DESC, a.hora_inicio DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agendas: %w", err)
	}
	defer rows.Close()

	var items []Agenda
	for rows.Next() {
		a, err := scanAgenda(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agenda: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetAgenda(ctx context.Context, id string) (Agenda, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agendaColumns+agendaFrom+` WHERE a.id=$1`, id)
	return scanAgenda(row)
}

func (s *PostgresStore) CreateAgenda(ctx context.Context, a Agenda) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agendas (id, lider_id, candidato_id, titulo, descripcion, fecha, hora_inicio, hora_fin, lugar, estado)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $10)
	`, a.ID, a.LiderID, a.CandidatoID, a.Titulo, a.Descripcion, a.Fecha, a.HoraInicio, a.HoraFin, a.Lugar, a.Estado)
	if err != nil {
		return fmt.Errorf("insert agenda: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateAgenda(ctx context.Context, a Agenda) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agendas SET
			titulo=$2, descripcion=$3, fecha=$4::date, hora_inicio=$5, hora_fin=$6,
			lugar=$7, fecha_actualizacion=NOW()
		WHERE id=$1
	`, a.ID, a.Titulo, a.Descripcion, a.Fecha, a.HoraInicio, a.HoraFin, a.Lugar)
	if err != nil {
		return fmt.Errorf("update agenda: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateAgendaEstado(ctx context.Context, id, estado, motivo string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agendas SET estado=$2, motivo_reprogramacion=$3, fecha_actualizacion=NOW() WHERE id=$1
	`, id, estado, motivo)
	if err != nil {
		return fmt.Errorf("update agenda estado: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteAgenda(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM agendas WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete agenda: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ── Sesiones ──

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (Usuario, error) {
	const query = `
		SELECT u.id, u.nombre, u.email, u.rol, u.activo
		FROM refresh_sessions rs
		JOIN usuarios u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var u Usuario
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&u.ID, &u.Nombre, &u.Email, &u.Rol, &u.Activo)
	if err != nil {
		return Usuario{}, err
	}
	return u, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
