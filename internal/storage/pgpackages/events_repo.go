package pgpackages

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pvaldebenito/scanbox/internal/models"
)

func (s *Storage) InsertPrintEvent(ctx context.Context, ev models.PrintEvent) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO eventos_impresion (guia, asignacion, shipment_id, label_url, printed_at, created_at)
VALUES ($1, $2, $3, $4, $5, now())
`, ev.Guia, ev.Asignacion, ev.ShipmentID, ev.LabelURL, ev.PrintedAt.UTC())
	return errors.Wrap(err, "insert print event")
}

// ListPrintEvents returns the print history for a guia, newest first.
func (s *Storage) ListPrintEvents(ctx context.Context, guia string, limit int) ([]*models.PrintEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
SELECT id, guia, asignacion, shipment_id, label_url, printed_at, created_at
FROM eventos_impresion
WHERE guia = $1
ORDER BY printed_at DESC
LIMIT $2
`, guia, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select print events")
	}
	defer rows.Close()

	var out []*models.PrintEvent
	for rows.Next() {
		var ev models.PrintEvent
		if err := rows.Scan(&ev.ID, &ev.Guia, &ev.Asignacion, &ev.ShipmentID, &ev.LabelURL, &ev.PrintedAt, &ev.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan print event")
		}
		out = append(out, &ev)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
