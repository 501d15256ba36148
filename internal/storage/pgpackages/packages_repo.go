package pgpackages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/pvaldebenito/scanbox/internal/models"
)

var ErrRecordNotFound = errors.New("package record not found")

// Columnas editables a mano desde la grilla de datos.
var manualFields = map[string]struct{}{
	"guia":            {},
	"archivo_adjunto": {},
	"descripcion":     {},
	"orden_amazon":    {},
}

const packageColumns = `
  id, guia, asignacion, orden_meli, pack_id,
  estado_escaneo, estado_orden, estado_envio,
  asin, cantidad, titulo, descripcion, comentario, orden_amazon,
  url_imagen, archivo_adjunto,
  fecha_venta, fecha_sincronizacion, fecha_ingreso, fecha_impresion,
  created_at, updated_at`

func scanPackage(row pgx.Row) (*models.PackageRecord, error) {
	var p models.PackageRecord
	err := row.Scan(
		&p.ID, &p.Guia, &p.Asignacion, &p.OrdenMeli, &p.PackID,
		&p.EstadoEscaneo, &p.EstadoOrden, &p.EstadoEnvio,
		&p.ASIN, &p.Cantidad, &p.Titulo, &p.Descripcion, &p.Comentario, &p.OrdenAmazon,
		&p.URLImagen, &p.ArchivoAdjunto,
		&p.FechaVenta, &p.FechaSincronizacion, &p.FechaIngreso, &p.FechaImpresion,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByGuia returns the newest row for a tracking code.
func (s *Storage) GetByGuia(ctx context.Context, guia string) (*models.PackageRecord, error) {
	row := s.db.QueryRow(ctx, `
SELECT `+packageColumns+`
FROM paquetes
WHERE guia = $1
ORDER BY id DESC
LIMIT 1
`, guia)
	p, err := scanPackage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select by guia")
	}
	return p, nil
}

func (s *Storage) GetByID(ctx context.Context, id uint64) (*models.PackageRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+packageColumns+` FROM paquetes WHERE id = $1`, id)
	p, err := scanPackage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select by id")
	}
	return p, nil
}

// InsertNoMatch registers a scan that matched nothing: the input is kept
// verbatim as guia and the row only carries the scan state + timestamp.
func (s *Storage) InsertNoMatch(ctx context.Context, guia string, scannedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO paquetes (guia, estado_escaneo, fecha_ingreso, created_at, updated_at)
VALUES ($1, $2, $3, now(), now())
`, guia, models.ScanStateNoMatch, scannedAt.UTC())
	return errors.Wrap(err, "insert no-match")
}

func (s *Storage) MarkIngreso(ctx context.Context, guia string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
UPDATE paquetes
SET fecha_ingreso = $2, estado_escaneo = $3, updated_at = now()
WHERE guia = $1
`, guia, at.UTC(), models.ScanStateIngested)
	if err != nil {
		return errors.Wrap(err, "mark ingreso")
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkImpreso stamps the print state together with the stored label URL.
// Only called once a validated PDF exists.
func (s *Storage) MarkImpreso(ctx context.Context, guia, labelURL string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
UPDATE paquetes
SET fecha_impresion = $2, estado_escaneo = $3, archivo_adjunto = $4, updated_at = now()
WHERE guia = $1
`, guia, at.UTC(), models.ScanStatePrinted, labelURL)
	if err != nil {
		return errors.Wrap(err, "mark impreso")
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// UpsertSynced applies one marketplace order to the table. Soft dedup: a row
// matching orden_meli, asignacion or pack_id is updated, otherwise a new row
// is inserted. Sync never touches guia, the manual fields, or the scan
// state/timestamps — those belong to the operator workflow.
func (s *Storage) UpsertSynced(ctx context.Context, o models.SyncedOrder) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id uint64
	err = tx.QueryRow(ctx, `
SELECT id FROM paquetes
WHERE (orden_meli <> '' AND orden_meli = $1)
   OR (asignacion <> '' AND asignacion = $2)
   OR (pack_id <> '' AND pack_id = $3)
ORDER BY id ASC
LIMIT 1
`, o.OrdenMeli, o.Asignacion, o.PackID).Scan(&id)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `
INSERT INTO paquetes (
  asignacion, orden_meli, pack_id,
  estado_orden, estado_envio,
  asin, cantidad, titulo, url_imagen,
  fecha_venta, fecha_sincronizacion,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, now(), now())
`, o.Asignacion, o.OrdenMeli, o.PackID,
			o.EstadoOrden, o.EstadoEnvio,
			o.ASIN, o.Cantidad, o.Titulo, o.URLImagen,
			o.FechaVenta, o.SyncedAt.UTC())
		if err != nil {
			return false, errors.Wrap(err, "insert synced")
		}
		inserted = true
	case err != nil:
		return false, errors.Wrap(err, "select existing")
	default:
		_, err = tx.Exec(ctx, `
UPDATE paquetes
SET asignacion = $2, orden_meli = $3, pack_id = $4,
    estado_orden = $5, estado_envio = $6,
    asin = $7, cantidad = $8, titulo = $9, url_imagen = $10,
    fecha_venta = $11, fecha_sincronizacion = $12,
    updated_at = now()
WHERE id = $1
`, id, o.Asignacion, o.OrdenMeli, o.PackID,
			o.EstadoOrden, o.EstadoEnvio,
			o.ASIN, o.Cantidad, o.Titulo, o.URLImagen,
			o.FechaVenta, o.SyncedAt.UTC())
		if err != nil {
			return false, errors.Wrap(err, "update synced")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, errors.Wrap(err, "commit tx")
	}
	return inserted, nil
}

// ListRecent returns the scan log: rows whose ingest or print timestamp
// falls inside the window, newest first.
func (s *Storage) ListRecent(ctx context.Context, mode string, days, limit int) ([]*models.PackageRecord, error) {
	field := "fecha_ingreso"
	if mode == models.ScanModePrint {
		field = "fecha_impresion"
	}
	if days <= 0 || days > 365 {
		days = 60
	}
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := s.db.Query(ctx, fmt.Sprintf(`
SELECT %s
FROM paquetes
WHERE %s >= $1
ORDER BY %s DESC
LIMIT $2
`, packageColumns, field, field), cutoff, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select recent")
	}
	defer rows.Close()
	return collectPackages(rows)
}

// Search runs an ilike substring match over the identifying columns with
// range pagination, newest sale first.
func (s *Storage) Search(ctx context.Context, q string, limit, offset int) ([]*models.PackageRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{limit, offset}
	if q != "" {
		where = `
WHERE guia ILIKE $3 OR asignacion ILIKE $3 OR orden_meli ILIKE $3
   OR pack_id ILIKE $3 OR titulo ILIKE $3 OR asin ILIKE $3`
		args = append(args, "%"+strings.TrimSpace(q)+"%")
	}

	rows, err := s.db.Query(ctx, `
SELECT `+packageColumns+`
FROM paquetes`+where+`
ORDER BY fecha_venta DESC NULLS LAST, id DESC
LIMIT $1 OFFSET $2
`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "search packages")
	}
	defer rows.Close()
	return collectPackages(rows)
}

// UpdateManualFields writes only the operator-editable columns; anything
// else in the map is rejected.
func (s *Storage) UpdateManualFields(ctx context.Context, id uint64, fields map[string]string) error {
	if len(fields) == 0 {
		return errors.New("no fields to update")
	}

	set := make([]string, 0, len(fields)+1)
	args := []any{id}
	i := 2
	for k, v := range fields {
		if _, ok := manualFields[k]; !ok {
			return errors.Errorf("field %q is not manually editable", k)
		}
		set = append(set, fmt.Sprintf("%s = $%d", k, i))
		args = append(args, strings.TrimSpace(v))
		i++
	}
	set = append(set, "updated_at = now()")

	tag, err := s.db.Exec(ctx, fmt.Sprintf(`UPDATE paquetes SET %s WHERE id = $1`, strings.Join(set, ", ")), args...)
	if err != nil {
		return errors.Wrap(err, "update manual fields")
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func collectPackages(rows pgx.Rows) ([]*models.PackageRecord, error) {
	var out []*models.PackageRecord
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan package")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
