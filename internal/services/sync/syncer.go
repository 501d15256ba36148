// Package sync baja las ordenes recientes del marketplace, las enriquece
// y publica un PackageSynced por orden para que el scan-api actualice el
// almacen de paquetes.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/pvaldebenito/scanbox/internal/broker/messages"
	"github.com/pvaldebenito/scanbox/internal/integrations/meli"
)

type MarketClient interface {
	Me(ctx context.Context) (int64, error)
	SearchOrders(ctx context.Context, sellerID int64, from, to time.Time, limit, offset int) (*meli.OrdersPage, error)
	OrderNote(ctx context.Context, orderID string) (string, error)
	ItemPicture(ctx context.Context, itemID string) (string, error)
	GetShipment(ctx context.Context, shipmentID string) (*meli.Shipment, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Syncer struct {
	market   MarketClient
	producer Producer
	rl       RateLimiter

	topic string

	syncInterval       time.Duration
	days               int
	pageSize           int
	concurrency        int
	rateLimitPerMinute int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalOrders         atomic.Int64
	totalPublished      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         gosync.Mutex
	lastError           string
}

func New(market MarketClient, producer Producer, rl RateLimiter, topic string) *Syncer {
	return &Syncer{
		market: market, producer: producer, rl: rl, topic: topic,
		syncInterval:       10 * time.Minute,
		days:               30,
		pageSize:           50,
		concurrency:        12,
		rateLimitPerMinute: 120,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (s *Syncer) WithSettings(interval time.Duration, days, pageSize, concurrency int, rlPerMin int64) *Syncer {
	if interval > 0 {
		s.syncInterval = interval
	}
	if days > 0 {
		s.days = days
	}
	if pageSize > 0 {
		s.pageSize = pageSize
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	if rlPerMin > 0 {
		s.rateLimitPerMinute = rlPerMin
	}
	return s
}

// Trigger forces an immediate sync cycle (best-effort, non-blocking).
func (s *Syncer) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalOrders    int64      `json:"totalOrders"`
	TotalPublished int64      `json:"totalPublished"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (s *Syncer) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalOrders:    s.totalOrders.Load(),
		TotalPublished: s.totalPublished.Load(),
		TotalErrors:    s.totalErrors.Load(),
		InFlight:       s.inFlight.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Syncer) Run(ctx context.Context) error {
	t := time.NewTicker(s.syncInterval)
	defer t.Stop()

	// primer ciclo al arrancar, sin esperar el ticker
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Syncer) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	s.lastCycleUnixNano.Store(now.UnixNano())

	sellerID, err := s.market.Me(ctx)
	if err != nil {
		s.recordError(errors.Wrap(err, "resolve seller"))
		return
	}

	from := now.AddDate(0, 0, -s.days)

	offset := 0
	for {
		page, err := s.market.SearchOrders(ctx, sellerID, from, now, s.pageSize, offset)
		if err != nil {
			s.recordError(errors.Wrap(err, "search orders"))
			return
		}
		if len(page.Results) == 0 {
			return
		}
		s.totalOrders.Add(int64(len(page.Results)))

		sem := make(chan struct{}, s.concurrency)
		var wg gosync.WaitGroup
		for i := range page.Results {
			ord := page.Results[i]
			sem <- struct{}{}
			wg.Add(1)
			s.inFlight.Add(1)
			go func() {
				defer func() {
					s.inFlight.Add(-1)
					<-sem
					wg.Done()
				}()
				if err := s.processOrder(ctx, &ord); err != nil {
					s.totalErrors.Add(1)
					s.recordError(err)
					slog.Error("sync order", "order_id", ord.ID.String(), "error", err.Error())
					return
				}
				s.totalPublished.Add(1)
			}()
		}
		wg.Wait()

		offset += s.pageSize
		if offset >= page.Paging.Total {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Syncer) processOrder(ctx context.Context, ord *meli.Order) error {
	now := time.Now().UTC()

	if s.rl != nil && s.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:meli:%s", now.Format("200601021504"))
		allowed, n, err := s.rl.Allow(ctx, minuteKey, s.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			slog.Warn("marketplace rate limit exceeded", "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	msg := messages.PackageSynced{
		OrdenMeli:   ord.ID.String(),
		PackID:      ord.PackIDValue(),
		EstadoOrden: ord.PaymentStatus(),
		SyncedAt:    now,
	}
	// Una orden suelta es su propio pack: asi la etiqueta se resuelve
	// por pack tambien para envios de una sola orden.
	if msg.PackID == "" {
		msg.PackID = msg.OrdenMeli
	}

	if ts, err := time.Parse("2006-01-02T15:04:05.000-07:00", ord.DateCreated); err == nil {
		t := ts.UTC()
		msg.FechaVenta = &t
	} else if ts, err := time.Parse(time.RFC3339, ord.DateCreated); err == nil {
		t := ts.UTC()
		msg.FechaVenta = &t
	}

	if len(ord.OrderItems) > 0 {
		it := ord.OrderItems[0]
		msg.Titulo = it.Item.Title
		msg.Cantidad = it.Quantity
		msg.ASIN = firstNonEmpty(it.Item.SellerSKU, it.Item.SellerCustomField)

		if pic, err := s.market.ItemPicture(ctx, it.Item.ID); err == nil {
			msg.URLImagen = pic
		}
	}

	// la asignacion FBC viaja como nota de la orden
	if note, err := s.market.OrderNote(ctx, msg.OrdenMeli); err == nil {
		msg.Asignacion = note
	}

	if shipID := ord.Shipping.ID.String(); shipID != "" && shipID != "0" {
		if sh, err := s.market.GetShipment(ctx, shipID); err == nil {
			msg.EstadoEnvio = sh.Status
		}
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	// Kafka puede no estar lista justo despues de levantar compose,
	// reintento corto antes de rendirse.
	key := []byte(msg.OrdenMeli)
	var pubErr error
	for i := 0; i < 10; i++ {
		if err := s.producer.Publish(ctx, s.topic, key, b); err == nil {
			pubErr = nil
			break
		} else {
			pubErr = err
			time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
		}
	}
	return pubErr
}

func (s *Syncer) recordError(err error) {
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
