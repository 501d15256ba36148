// Package scans implementa el flujo operativo de bodega: escanear una
// guia para ingresarla o para imprimir su etiqueta de envio.
package scans

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pvaldebenito/scanbox/internal/broker/messages"
	"github.com/pvaldebenito/scanbox/internal/cache"
	"github.com/pvaldebenito/scanbox/internal/models"
	"github.com/pvaldebenito/scanbox/internal/storage/pgpackages"
)

type Repository interface {
	GetByGuia(ctx context.Context, guia string) (*models.PackageRecord, error)
	GetByID(ctx context.Context, id uint64) (*models.PackageRecord, error)
	InsertNoMatch(ctx context.Context, guia string, scannedAt time.Time) error
	MarkIngreso(ctx context.Context, guia string, at time.Time) error
	MarkImpreso(ctx context.Context, guia, labelURL string, at time.Time) error
	UpsertSynced(ctx context.Context, o models.SyncedOrder) (bool, error)
	ListRecent(ctx context.Context, mode string, days, limit int) ([]*models.PackageRecord, error)
	Search(ctx context.Context, q string, limit, offset int) ([]*models.PackageRecord, error)
	UpdateManualFields(ctx context.Context, id uint64, fields map[string]string) error
	InsertPrintEvent(ctx context.Context, ev models.PrintEvent) error
	ListPrintEvents(ctx context.Context, guia string, limit int) ([]*models.PrintEvent, error)
}

// LabelClient resuelve y baja la etiqueta PDF desde el marketplace.
type LabelClient interface {
	DownloadLabelByOrderOrPack(ctx context.Context, orderID, packID string) ([]byte, string, error)
}

// BlobStore guarda las etiquetas ya validadas para reimpresiones.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Available(ctx context.Context, publicURL string) bool
	Fetch(ctx context.Context, publicURL string) ([]byte, error)
}

type Service struct {
	repo  Repository
	meli  LabelClient
	blob  BlobStore
	cache cache.BytesCache
	ttl   time.Duration
	log   *slog.Logger
}

func New(repo Repository, meli LabelClient, blob BlobStore, c cache.BytesCache, ttl time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, meli: meli, blob: blob, cache: c, ttl: ttl, log: log}
}

// ScanResult is what the operator UI needs after one scan: the resulting
// state, the record, and for print scans the label bytes.
type ScanResult struct {
	Estado string
	Record *models.PackageRecord

	PDF        []byte
	LabelURL   string
	ShipmentID string
}

// ProcessScan runs one barcode read through the workflow. The input is
// matched verbatim against guia; an unknown read is stored as-is with the
// no-match state so the operator sees exactly what the scanner produced.
func (s *Service) ProcessScan(ctx context.Context, raw, mode string) (*ScanResult, error) {
	guia := strings.TrimSpace(raw)
	if guia == "" {
		return nil, errors.New("lectura vacia")
	}
	if mode != models.ScanModeIngest && mode != models.ScanModePrint {
		return nil, errors.Errorf("modo desconocido %q", mode)
	}

	now := time.Now().UTC()

	rec, err := s.getCached(ctx, guia)
	if errors.Is(err, pgpackages.ErrRecordNotFound) {
		if err := s.repo.InsertNoMatch(ctx, guia, now); err != nil {
			return nil, err
		}
		s.invalidate(ctx, guia)
		return &ScanResult{Estado: models.ScanStateNoMatch}, nil
	}
	if err != nil {
		return nil, err
	}

	if mode == models.ScanModeIngest {
		if err := s.repo.MarkIngreso(ctx, guia, now); err != nil {
			return nil, err
		}
		s.invalidate(ctx, guia)
		rec.EstadoEscaneo = models.ScanStateIngested
		rec.FechaIngreso = &now
		return &ScanResult{Estado: models.ScanStateIngested, Record: rec}, nil
	}

	return s.printLabel(ctx, rec, now)
}

func (s *Service) printLabel(ctx context.Context, rec *models.PackageRecord, now time.Time) (*ScanResult, error) {
	res := &ScanResult{Record: rec}

	// Primero la etiqueta ya guardada: si sigue disponible nos ahorramos
	// la vuelta completa por el marketplace.
	if rec.ArchivoAdjunto != "" && s.blob != nil && s.blob.Available(ctx, rec.ArchivoAdjunto) {
		pdf, err := s.blob.Fetch(ctx, rec.ArchivoAdjunto)
		if err == nil {
			res.PDF = pdf
			res.LabelURL = rec.ArchivoAdjunto
		} else {
			s.log.Warn("stored label unreadable, refetching", "guia", rec.Guia, "err", err)
		}
	}

	if res.PDF == nil {
		if rec.OrdenMeli == "" && rec.PackID == "" {
			return nil, errors.New("el paquete no tiene orden ni pack asociados")
		}
		pdf, shipmentID, err := s.meli.DownloadLabelByOrderOrPack(ctx, rec.OrdenMeli, rec.PackID)
		if err != nil {
			return nil, err
		}
		res.PDF = pdf
		res.ShipmentID = shipmentID
		res.LabelURL = s.storeLabel(ctx, rec, pdf)
	}

	// La fecha de impresion se escribe recien aqui, con un PDF valido en
	// mano. Un fetch fallido no debe dejar el paquete como impreso.
	if err := s.repo.MarkImpreso(ctx, rec.Guia, res.LabelURL, now); err != nil {
		return nil, err
	}
	if err := s.repo.InsertPrintEvent(ctx, models.PrintEvent{
		Guia:       rec.Guia,
		Asignacion: rec.Asignacion,
		ShipmentID: res.ShipmentID,
		LabelURL:   res.LabelURL,
		PrintedAt:  now,
	}); err != nil {
		s.log.Warn("print event not recorded", "guia", rec.Guia, "err", err)
	}
	s.invalidate(ctx, rec.Guia)

	rec.EstadoEscaneo = models.ScanStatePrinted
	rec.FechaImpresion = &now
	if res.LabelURL != "" {
		rec.ArchivoAdjunto = res.LabelURL
	}
	res.Estado = models.ScanStatePrinted
	return res, nil
}

func (s *Service) storeLabel(ctx context.Context, rec *models.PackageRecord, pdf []byte) string {
	// Las etiquetas se guardan por asignacion; sin asignacion no hay
	// donde colgarla y la impresion sigue igual.
	if s.blob == nil || rec.Asignacion == "" {
		return rec.ArchivoAdjunto
	}
	key := sanitizeKey(rec.Asignacion) + ".pdf"
	url, err := s.blob.Upload(ctx, key, pdf, "application/pdf")
	if err != nil {
		// La impresion no depende del bucket: se imprime igual y el
		// registro conserva la URL anterior si la habia.
		s.log.Warn("label upload failed", "guia", rec.Guia, "err", err)
		return rec.ArchivoAdjunto
	}
	return url
}

// FetchLabel devuelve la etiqueta guardada de una guia sin tocar el
// estado de escaneo. Lo usa la reimpresion directa desde la grilla.
func (s *Service) FetchLabel(ctx context.Context, guia string) ([]byte, error) {
	rec, err := s.getCached(ctx, strings.TrimSpace(guia))
	if err != nil {
		return nil, err
	}
	if rec.ArchivoAdjunto == "" || s.blob == nil {
		return nil, errors.New("el paquete no tiene etiqueta guardada")
	}
	return s.blob.Fetch(ctx, rec.ArchivoAdjunto)
}

// ApplySyncUpdate aplica un mensaje del sync worker al almacen.
func (s *Service) ApplySyncUpdate(ctx context.Context, msg messages.PackageSynced) error {
	if msg.OrdenMeli == "" {
		return errors.New("orden_meli is required")
	}
	if msg.SyncedAt.IsZero() {
		msg.SyncedAt = time.Now().UTC()
	}
	_, err := s.repo.UpsertSynced(ctx, models.SyncedOrder{
		OrdenMeli:   msg.OrdenMeli,
		PackID:      msg.PackID,
		Asignacion:  msg.Asignacion,
		EstadoOrden: msg.EstadoOrden,
		EstadoEnvio: msg.EstadoEnvio,
		ASIN:        msg.ASIN,
		Cantidad:    msg.Cantidad,
		Titulo:      msg.Titulo,
		URLImagen:   msg.URLImagen,
		FechaVenta:  msg.FechaVenta,
		SyncedAt:    msg.SyncedAt,
	})
	return err
}

func (s *Service) GetByGuia(ctx context.Context, guia string) (*models.PackageRecord, error) {
	return s.getCached(ctx, strings.TrimSpace(guia))
}

func (s *Service) Search(ctx context.Context, q string, limit, offset int) ([]*models.PackageRecord, error) {
	return s.repo.Search(ctx, q, limit, offset)
}

func (s *Service) ListRecent(ctx context.Context, mode string, days, limit int) ([]*models.PackageRecord, error) {
	return s.repo.ListRecent(ctx, mode, days, limit)
}

func (s *Service) ListPrintEvents(ctx context.Context, guia string, limit int) ([]*models.PrintEvent, error) {
	return s.repo.ListPrintEvents(ctx, strings.TrimSpace(guia), limit)
}

// UpdateManualFields edita las columnas manuales e invalida el cache de
// la guia anterior y la nueva.
func (s *Service) UpdateManualFields(ctx context.Context, id uint64, fields map[string]string) (*models.PackageRecord, error) {
	prev, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateManualFields(ctx, id, fields); err != nil {
		return nil, err
	}
	s.invalidate(ctx, prev.Guia)
	if g, ok := fields["guia"]; ok {
		s.invalidate(ctx, g)
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) getCached(ctx context.Context, guia string) (*models.PackageRecord, error) {
	if s.cache != nil && s.ttl > 0 {
		if b, ok, err := s.cache.Get(ctx, packageKey(guia)); err == nil && ok {
			var rec models.PackageRecord
			if json.Unmarshal(b, &rec) == nil {
				return &rec, nil
			}
		}
	}
	rec, err := s.repo.GetByGuia(ctx, guia)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.ttl > 0 {
		b, _ := json.Marshal(rec)
		_ = s.cache.Set(ctx, packageKey(guia), b, s.ttl)
	}
	return rec, nil
}

func (s *Service) invalidate(ctx context.Context, guia string) {
	if s.cache == nil || guia == "" {
		return
	}
	_ = s.cache.Del(ctx, packageKey(guia))
}

func packageKey(guia string) string {
	return fmt.Sprintf("paquete:%s", guia)
}

func sanitizeKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
