package meli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeNotes_ListAndObjectShapes(t *testing.T) {
	list := []byte(`[{"results":[{"id":1,"note":"FBC1000"},{"id":2,"note":"FBC2000"}]}]`)
	notes := decodeNotes(list)
	require.Len(t, notes, 2)
	require.Equal(t, "FBC2000", notes[1].textValue())

	obj := []byte(`{"results":[{"id":3,"text":"algo"}]}`)
	notes = decodeNotes(obj)
	require.Len(t, notes, 1)
	require.Equal(t, "algo", notes[0].textValue())
}

func TestOrderNote_LastNoteUppercased(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/10/notes", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"results":[{"id":1,"note":"fbc0001"},{"id":2,"note":"fbc7759 "}]}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "tok"})
	note, err := c.OrderNote(context.Background(), "10")
	require.NoError(t, err)
	require.Equal(t, "FBC7759", note)
}

func TestOrderNote_FBCFallbackFromRawOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/10/notes", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/orders/10", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":10,"comment":"cliente pidió fbc4412 urgente"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "tok"})
	note, err := c.OrderNote(context.Background(), "10")
	require.NoError(t, err)
	require.Equal(t, "FBC4412", note)
}

func TestUpsertOrderNote_PutWhenExisting(t *testing.T) {
	var putPath string
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/10/notes", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"results":[{"id":31,"note":"FBC1"}]}`))
			return
		}
		t.Fatalf("unexpected %s on collection", r.Method)
	})
	mux.HandleFunc("/orders/10/notes/31", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		putPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "tok"})
	require.NoError(t, c.UpsertOrderNote(context.Background(), "10", "FBC9"))
	require.Equal(t, "/orders/10/notes/31", putPath)
}

func TestUpsertOrderNote_PostWhenNone(t *testing.T) {
	var posted bool
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/10/notes", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"results":[]}`))
			return
		}
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		posted = true
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "tok"})
	require.NoError(t, c.UpsertOrderNote(context.Background(), "10", "FBC9"))
	require.True(t, posted)
}

func TestSearchOrders_PagingParams(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "42", q.Get("seller"))
		require.Equal(t, "date_desc", q.Get("sort"))
		require.Equal(t, "50", q.Get("limit"))
		require.Equal(t, "100", q.Get("offset"))
		_, _ = w.Write([]byte(`{
			"results":[{"id":1,"status":"paid","payments":[{"status":"approved"}],
				"order_items":[{"item":{"id":"MLC1","title":"Prod","seller_sku":"B01"},"quantity":2}]}],
			"paging":{"total":151,"limit":50,"offset":100}
		}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "tok"})
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 7, 31, 23, 59, 59, 0, time.UTC)
	page, err := c.SearchOrders(context.Background(), 42, from, to, 50, 100)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.Equal(t, 151, page.Paging.Total)
	require.Equal(t, "approved", page.Results[0].PaymentStatus())
	require.Equal(t, int32(2), page.Results[0].OrderItems[0].Quantity)
}

func TestGetOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/100", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":100,"status":"paid","pack_id":77,"shipping":{"id":9},
			"payments":[{"status":"approved"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "tok"})
	ord, err := c.GetOrder(context.Background(), "100")
	require.NoError(t, err)
	require.Equal(t, "77", ord.PackIDValue())
	require.Equal(t, "approved", ord.PaymentStatus())
	require.Equal(t, "9", ord.Shipping.ID.String())

	_, err = c.GetOrder(context.Background(), "404")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOrder_PackIDValue(t *testing.T) {
	var o Order
	require.Equal(t, "", o.PackIDValue())

	o.PackID = "123"
	require.Equal(t, "123", o.PackIDValue())

	o = Order{}
	o.Pack.ID = "456"
	require.Equal(t, "456", o.PackIDValue())
}

func TestItemPicture(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/items/MLC1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"thumbnail":"http://t","pictures":[{"url":"http://u","secure_url":"https://s"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "tok"})
	pic, err := c.ItemPicture(context.Background(), "MLC1")
	require.NoError(t, err)
	require.Equal(t, "https://s", pic)

	pic, err = c.ItemPicture(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "", pic)
}
