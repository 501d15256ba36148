// Package scansapi expone el flujo de escaneo y la grilla de paquetes
// como API JSON sobre chi.
package scansapi

import (
	"context"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/pvaldebenito/scanbox/internal/integrations/meli"
	"github.com/pvaldebenito/scanbox/internal/models"
	"github.com/pvaldebenito/scanbox/internal/services/scans"
	"github.com/pvaldebenito/scanbox/internal/storage/pgpackages"
)

// MarketOps son las operaciones del marketplace expuestas directo por el
// API: marcar listo para despachar y leer/escribir la nota de la orden.
type MarketOps interface {
	ReadyToShip(ctx context.Context, shipmentID string) error
	OrderNote(ctx context.Context, orderID string) (string, error)
	UpsertOrderNote(ctx context.Context, orderID, text string) error
}

type API struct {
	svc    *scans.Service
	market MarketOps
	log    *slog.Logger
}

func New(svc *scans.Service, market MarketOps, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{svc: svc, market: market, log: log}
}

func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scans", a.handleScan)
		r.Get("/scans/log", a.handleScanLog)

		r.Get("/packages", a.handleListPackages)
		r.Patch("/packages/{id}", a.handlePatchPackage)
		r.Get("/packages/{guia}/label", a.handleLabel)
		r.Get("/packages/{guia}/events", a.handlePrintEvents)

		r.Get("/export.csv", a.handleExportCSV)

		r.Post("/shipments/{id}/ready", a.handleReadyToShip)
		r.Get("/orders/{id}/note", a.handleGetNote)
		r.Put("/orders/{id}/note", a.handlePutNote)
	})
}

type packageDTO struct {
	ID         uint64 `json:"id"`
	Guia       string `json:"guia"`
	Asignacion string `json:"asignacion,omitempty"`
	OrdenMeli  string `json:"ordenMeli,omitempty"`
	PackID     string `json:"packId,omitempty"`

	EstadoEscaneo string `json:"estadoEscaneo,omitempty"`
	EstadoOrden   string `json:"estadoOrden,omitempty"`
	EstadoEnvio   string `json:"estadoEnvio,omitempty"`

	ASIN           string `json:"asin,omitempty"`
	Cantidad       int32  `json:"cantidad,omitempty"`
	Titulo         string `json:"titulo,omitempty"`
	Descripcion    string `json:"descripcion,omitempty"`
	OrdenAmazon    string `json:"ordenAmazon,omitempty"`
	URLImagen      string `json:"urlImagen,omitempty"`
	ArchivoAdjunto string `json:"archivoAdjunto,omitempty"`

	FechaVenta     *time.Time `json:"fechaVenta,omitempty"`
	FechaIngreso   *time.Time `json:"fechaIngreso,omitempty"`
	FechaImpresion *time.Time `json:"fechaImpresion,omitempty"`
}

func toDTO(p *models.PackageRecord) packageDTO {
	return packageDTO{
		ID: p.ID, Guia: p.Guia, Asignacion: p.Asignacion,
		OrdenMeli: p.OrdenMeli, PackID: p.PackID,
		EstadoEscaneo: p.EstadoEscaneo, EstadoOrden: p.EstadoOrden, EstadoEnvio: p.EstadoEnvio,
		ASIN: p.ASIN, Cantidad: p.Cantidad, Titulo: p.Titulo,
		Descripcion: p.Descripcion, OrdenAmazon: p.OrdenAmazon,
		URLImagen: p.URLImagen, ArchivoAdjunto: p.ArchivoAdjunto,
		FechaVenta: p.FechaVenta, FechaIngreso: p.FechaIngreso, FechaImpresion: p.FechaImpresion,
	}
}

func toDTOs(ps []*models.PackageRecord) []packageDTO {
	out := make([]packageDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, toDTO(p))
	}
	return out
}

type scanRequest struct {
	Lectura string `json:"lectura"`
	Modo    string `json:"modo"`
}

type scanResponse struct {
	Estado     string      `json:"estado"`
	Paquete    *packageDTO `json:"paquete,omitempty"`
	LabelURL   string      `json:"labelUrl,omitempty"`
	ShipmentID string      `json:"shipmentId,omitempty"`
	PDFBase64  string      `json:"pdfBase64,omitempty"`
	Motivo     string      `json:"motivo,omitempty"`
}

func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "json invalido")
		return
	}

	res, err := a.svc.ProcessScan(r.Context(), req.Lectura, req.Modo)
	if err != nil {
		var npe *meli.NotPrintableError
		if errors.As(err, &npe) {
			// no imprimible no es un error del servidor: el operador
			// necesita el motivo
			writeJSON(w, http.StatusConflict, scanResponse{Motivo: npe.Reason})
			return
		}
		a.log.Error("process scan", "modo", req.Modo, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := scanResponse{
		Estado:     res.Estado,
		LabelURL:   res.LabelURL,
		ShipmentID: res.ShipmentID,
	}
	if res.Record != nil {
		dto := toDTO(res.Record)
		resp.Paquete = &dto
	}
	if len(res.PDF) > 0 {
		resp.PDFBase64 = base64.StdEncoding.EncodeToString(res.PDF)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleScanLog(w http.ResponseWriter, r *http.Request) {
	modo := r.URL.Query().Get("modo")
	if modo == "" {
		modo = models.ScanModeIngest
	}
	days := queryInt(r, "days", 60)
	limit := queryInt(r, "limit", 500)

	recs, err := a.svc.ListRecent(r.Context(), modo, days, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paquetes": toDTOs(recs)})
}

func (a *API) handleListPackages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	recs, err := a.svc.Search(r.Context(), q, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paquetes": toDTOs(recs)})
}

func (a *API) handlePatchPackage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id invalido")
		return
	}
	var fields map[string]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "json invalido")
		return
	}

	rec, err := a.svc.UpdateManualFields(r.Context(), id, fields)
	if err != nil {
		if errors.Is(err, pgpackages.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "paquete no encontrado")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDTO(rec))
}

func (a *API) handleLabel(w http.ResponseWriter, r *http.Request) {
	guia := chi.URLParam(r, "guia")
	pdf, err := a.svc.FetchLabel(r.Context(), guia)
	if err != nil {
		if errors.Is(err, pgpackages.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "paquete no encontrado")
			return
		}
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="etiqueta_`+guia+`.pdf"`)
	_, _ = w.Write(pdf)
}

func (a *API) handlePrintEvents(w http.ResponseWriter, r *http.Request) {
	guia := chi.URLParam(r, "guia")
	evs, err := a.svc.ListPrintEvents(r.Context(), guia, queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"eventos": evs})
}

var csvHeader = []string{
	"id", "guia", "asignacion", "orden_meli", "pack_id",
	"estado_escaneo", "estado_orden", "estado_envio",
	"asin", "cantidad", "titulo", "orden_amazon",
	"fecha_venta", "fecha_ingreso", "fecha_impresion",
}

func (a *API) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	recs, err := a.svc.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 500), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="paquetes.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)
	for _, p := range recs {
		_ = cw.Write([]string{
			strconv.FormatUint(p.ID, 10), p.Guia, p.Asignacion, p.OrdenMeli, p.PackID,
			p.EstadoEscaneo, p.EstadoOrden, p.EstadoEnvio,
			p.ASIN, strconv.Itoa(int(p.Cantidad)), p.Titulo, p.OrdenAmazon,
			fmtTime(p.FechaVenta), fmtTime(p.FechaIngreso), fmtTime(p.FechaImpresion),
		})
	}
	cw.Flush()
}

func (a *API) handleReadyToShip(w http.ResponseWriter, r *http.Request) {
	if a.market == nil {
		writeError(w, http.StatusServiceUnavailable, "marketplace no configurado")
		return
	}
	if err := a.market.ReadyToShip(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleGetNote(w http.ResponseWriter, r *http.Request) {
	if a.market == nil {
		writeError(w, http.StatusServiceUnavailable, "marketplace no configurado")
		return
	}
	note, err := a.market.OrderNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nota": note})
}

func (a *API) handlePutNote(w http.ResponseWriter, r *http.Request) {
	if a.market == nil {
		writeError(w, http.StatusServiceUnavailable, "marketplace no configurado")
		return
	}
	var body struct {
		Nota string `json:"nota"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "json invalido")
		return
	}
	if err := a.market.UpsertOrderNote(r.Context(), chi.URLParam(r, "id"), body.Nota); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, name string, def int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
