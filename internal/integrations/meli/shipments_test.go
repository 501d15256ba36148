package meli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShipmentIDFromOrder_ShippingIDWins(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/100", func(w http.ResponseWriter, r *http.Request) {
		// Trae shipping.id y pack_id a la vez: gana shipping.id.
		_, _ = w.Write([]byte(`{"id":100,"shipping":{"id":777},"pack_id":888}`))
	})
	mux.HandleFunc("/packs/", func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("/packs must not be queried when shipping.id is present")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "tok"})
	sid, err := c.ShipmentIDFromOrder(context.Background(), "100")
	require.NoError(t, err)
	require.Equal(t, "777", sid)
}

func TestShipmentIDFromOrder_DelegatesToPack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/100", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":100,"pack_id":888}`))
	})
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":42}`))
	})
	mux.HandleFunc("/packs/888", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"shipment":{"id":999}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "tok"})
	sid, err := c.ShipmentIDFromOrder(context.Background(), "100")
	require.NoError(t, err)
	require.Equal(t, "999", sid)
}

func TestShipmentIDFromOrder_SearchFallback(t *testing.T) {
	var withSeller, withoutSeller int
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/100", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":42}`))
	})
	mux.HandleFunc("/shipments/search", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "100", r.URL.Query().Get("order"))
		if r.URL.Query().Get("seller") != "" {
			withSeller++
			_, _ = w.Write([]byte(`{"results":[]}`))
			return
		}
		withoutSeller++
		_, _ = w.Write([]byte(`{"results":[{"shipment_id":555}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "tok"})
	sid, err := c.ShipmentIDFromOrder(context.Background(), "100")
	require.NoError(t, err)
	require.Equal(t, "555", sid)
	require.Equal(t, 1, withSeller)
	require.Equal(t, 1, withoutSeller)
}

func TestShipmentIDFromPack_DirectThenSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/packs/7", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"shipment":{"id":31}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "tok"})
	sid, err := c.ShipmentIDFromPack(context.Background(), "7", 0)
	require.NoError(t, err)
	require.Equal(t, "31", sid)
}

func TestShipmentIDFromPack_FallbackToSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/packs/7", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/shipments/search", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "7", r.URL.Query().Get("pack"))
		require.Equal(t, "42", r.URL.Query().Get("seller"))
		require.Equal(t, "true", r.Header.Get("x-format-new"))
		_, _ = w.Write([]byte(`{"results":[{"id":64}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "tok"})
	sid, err := c.ShipmentIDFromPack(context.Background(), "7", 42)
	require.NoError(t, err)
	require.Equal(t, "64", sid)
}

func TestShipmentIDFromPack_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "tok"})
	_, err := c.ShipmentIDFromPack(context.Background(), "7", 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadyToShip(t *testing.T) {
	var method string
	mux := http.NewServeMux()
	mux.HandleFunc("/shipments/9/process/ready_to_ship", func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "tok"})
	require.NoError(t, c.ReadyToShip(context.Background(), "9"))
	require.Equal(t, http.MethodPost, method)
}
