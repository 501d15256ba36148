package messages

import "time"

// PackageSynced es lo que publica el sync worker por cada orden del
// marketplace. El scan-api lo consume y hace el upsert en paquetes.
type PackageSynced struct {
	OrdenMeli  string `json:"orden_meli"`
	PackID     string `json:"pack_id,omitempty"`
	Asignacion string `json:"asignacion,omitempty"`

	EstadoOrden string `json:"estado_orden,omitempty"`
	EstadoEnvio string `json:"estado_envio,omitempty"`

	ASIN      string `json:"asin,omitempty"`
	Cantidad  int32  `json:"cantidad,omitempty"`
	Titulo    string `json:"titulo,omitempty"`
	URLImagen string `json:"url_imagen,omitempty"`

	FechaVenta *time.Time `json:"fecha_venta,omitempty"`
	SyncedAt   time.Time  `json:"synced_at"`
}
