package meli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Tipos de logística ME2 que permiten imprimir la etiqueta (no fulfillment).
var labelAllowedTypes = map[string]struct{}{
	"drop_off":      {},
	"xd_drop_off":   {},
	"cross_docking": {},
	"self_service":  {},
}

var pdfMagic = []byte("%PDF")

// CheckPrintable decides whether the shipment's label can be printed right
// now. Returns nil when printable; otherwise a NotPrintableError whose
// Reason is shown to the operator. Rules apply in order, first match wins.
func CheckPrintable(sh *Shipment) error {
	if sh.Logistic.Mode != "me2" {
		return &NotPrintableError{Reason: "El envío no es ME2 (mode != 'me2')."}
	}

	ltype := sh.LogisticTypeValue()
	if ltype == "" {
		return &NotPrintableError{Reason: "No se encontró logistic.type."}
	}
	if ltype == "fulfillment" {
		return &NotPrintableError{Reason: "Fulfillment: la etiqueta de envío la gestiona Mercado Libre."}
	}
	if _, ok := labelAllowedTypes[ltype]; !ok {
		return &NotPrintableError{Reason: fmt.Sprintf("Tipo de logística no permitido para etiqueta: %s.", ltype)}
	}

	if sh.Status == "pending" && sh.Substatus == "buffered" {
		if dt := sh.LeadTime.Buffering.Date; dt != "" {
			return &NotPrintableError{Reason: fmt.Sprintf("Etiqueta no disponible aún (buffering). Disponible desde: %s.", dt)}
		}
		return &NotPrintableError{Reason: "Etiqueta no disponible aún (buffering)."}
	}

	if sh.Status != "ready_to_ship" {
		return &NotPrintableError{Reason: fmt.Sprintf("Estado no permitido para imprimir etiqueta: status=%s.", sh.Status)}
	}
	if sh.Substatus != "ready_to_print" && sh.Substatus != "printed" {
		return &NotPrintableError{Reason: fmt.Sprintf("Subestado no permitido para imprimir etiqueta: substatus=%s.", sh.Substatus)}
	}

	return nil
}

// IsPDF reports whether data starts with the %PDF magic header. Anything
// else is not a label, whatever the HTTP status said.
func IsPDF(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == string(pdfMagic)
}

// DownloadLabel validates the shipment state and downloads the label PDF.
// Ineligible shipments come back as NotPrintableError without touching the
// label endpoint; a 2xx body that is not a PDF is ErrInvalidResponse.
func (c *Client) DownloadLabel(ctx context.Context, shipmentID string) ([]byte, error) {
	sh, err := c.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if err := CheckPrintable(sh); err != nil {
		return nil, err
	}
	return c.fetchLabelPDF(ctx, shipmentID)
}

func (c *Client) fetchLabelPDF(ctx context.Context, shipmentID string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/shipment_labels", reqOpts{
		query:   url.Values{"shipment_ids": {shipmentID}, "response_type": {"pdf"}},
		headers: map[string]string{"Accept": "application/pdf"},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("meli http %d for /shipment_labels", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !IsPDF(data) {
		return nil, ErrInvalidResponse
	}
	return data, nil
}

// DownloadLabelByOrderOrPack runs the full flow: pack id first (2024/2025
// model), order id as fallback. Returns the PDF bytes and the shipment id
// that produced them.
func (c *Client) DownloadLabelByOrderOrPack(ctx context.Context, orderID, packID string) ([]byte, string, error) {
	var lastErr error = ErrNotFound

	if packID != "" {
		sellerID, _ := c.Me(ctx)
		if sid, err := c.ShipmentIDFromPack(ctx, packID, sellerID); err == nil {
			pdf, err := c.DownloadLabel(ctx, sid)
			if err == nil {
				return pdf, sid, nil
			}
			lastErr = err
		}
	}

	if orderID != "" {
		if sid, err := c.ShipmentIDFromOrder(ctx, orderID); err == nil {
			pdf, err := c.DownloadLabel(ctx, sid)
			if err == nil {
				return pdf, sid, nil
			}
			lastErr = err
		}
	}

	return nil, "", lastErr
}
