package models

import "time"

// Estados de escaneo que escribe el flujo operativo.
const (
	ScanStateIngested = "INGRESADO CORRECTAMENTE!"
	ScanStatePrinted  = "IMPRIMIDO CORRECTAMENTE!"
	ScanStateNoMatch  = "NO COINCIDENTE!"
)

// Scan modes selected by the operator UI.
const (
	ScanModeIngest = "ingresar"
	ScanModePrint  = "imprimir"
)

// PackageRecord is one row of the paquetes table: a scanned or synced unit.
// Guia is the natural key for scan lookups; OrdenMeli/Asignacion/PackID are
// the dedup keys for marketplace sync.
type PackageRecord struct {
	ID         uint64
	Guia       string
	Asignacion string

	OrdenMeli string
	PackID    string

	EstadoEscaneo string
	EstadoOrden   string
	EstadoEnvio   string

	ASIN        string
	Cantidad    int32
	Titulo      string
	Descripcion string
	Comentario  string
	OrdenAmazon string
	URLImagen   string

	ArchivoAdjunto string

	FechaVenta          *time.Time
	FechaSincronizacion *time.Time
	FechaIngreso        *time.Time
	FechaImpresion      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PrintEvent is one row of the eventos_impresion log: a successful label
// print served to an operator.
type PrintEvent struct {
	ID         uint64
	Guia       string
	Asignacion string
	ShipmentID string
	LabelURL   string
	PrintedAt  time.Time
	CreatedAt  time.Time
}

// SyncedOrder is what the sync worker extracts from one marketplace order
// before it is upserted into the record store.
type SyncedOrder struct {
	OrdenMeli  string
	PackID     string
	Asignacion string

	EstadoOrden string
	EstadoEnvio string

	ASIN      string
	Cantidad  int32
	Titulo    string
	URLImagen string

	FechaVenta *time.Time
	SyncedAt   time.Time
}
