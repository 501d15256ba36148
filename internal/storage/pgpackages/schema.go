package pgpackages

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS paquetes (
  id BIGSERIAL PRIMARY KEY,
  guia TEXT NOT NULL DEFAULT '',
  asignacion TEXT NOT NULL DEFAULT '',
  orden_meli TEXT NOT NULL DEFAULT '',
  pack_id TEXT NOT NULL DEFAULT '',
  estado_escaneo TEXT NOT NULL DEFAULT '',
  estado_orden TEXT NOT NULL DEFAULT '',
  estado_envio TEXT NOT NULL DEFAULT '',
  asin TEXT NOT NULL DEFAULT '',
  cantidad INT NOT NULL DEFAULT 0,
  titulo TEXT NOT NULL DEFAULT '',
  descripcion TEXT NOT NULL DEFAULT '',
  comentario TEXT NOT NULL DEFAULT '',
  orden_amazon TEXT NOT NULL DEFAULT '',
  url_imagen TEXT NOT NULL DEFAULT '',
  archivo_adjunto TEXT NOT NULL DEFAULT '',
  fecha_venta TIMESTAMPTZ NULL,
  fecha_sincronizacion TIMESTAMPTZ NULL,
  fecha_ingreso TIMESTAMPTZ NULL,
  fecha_impresion TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		// guia es la llave natural del escaneo; no UNIQUE porque los "NO
		// COINCIDENTE" pueden repetir guía si el operador escanea dos veces.
		`CREATE INDEX IF NOT EXISTS idx_paquetes_guia ON paquetes(guia)`,
		`CREATE INDEX IF NOT EXISTS idx_paquetes_orden_meli ON paquetes(orden_meli)`,
		`CREATE INDEX IF NOT EXISTS idx_paquetes_pack_id ON paquetes(pack_id)`,
		`CREATE INDEX IF NOT EXISTS idx_paquetes_fecha_ingreso ON paquetes(fecha_ingreso DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_paquetes_fecha_impresion ON paquetes(fecha_impresion DESC)`,
		`
CREATE TABLE IF NOT EXISTS eventos_impresion (
  id BIGSERIAL PRIMARY KEY,
  guia TEXT NOT NULL,
  asignacion TEXT NOT NULL DEFAULT '',
  shipment_id TEXT NOT NULL DEFAULT '',
  label_url TEXT NOT NULL DEFAULT '',
  printed_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_eventos_impresion_guia ON eventos_impresion(guia, printed_at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
