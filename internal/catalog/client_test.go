package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/skumate/internal/enrich"
	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/product"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/search", r.URL.Path)
		assert.Equal(t, "KOPI", r.URL.Query().Get("q"))
		w.Write([]byte(`[{"SKU":"111","ITEMS_NAME":"KOPI","CATEGORY":null,"PRICE":12500},{"SKU":"112","ITEMS_NAME":"KOPI SUSU","PRICE":"9000"}]`))
	})

	records, err := c.Search(context.Background(), "  kopi ")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "12500", *records[0].Price)
	require.Equal(t, "", records[0].Category)
	require.Equal(t, "9000", *records[1].Price)
}

func TestSearch_Wildcard(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, Wildcard, r.URL.Query().Get("q"))
		w.Write([]byte(`[]`))
	})

	records, err := c.Search(context.Background(), Wildcard)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSearch_BlankSkipsBackend(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	records, err := c.Search(context.Background(), "   ")
	require.NoError(t, err)
	require.Nil(t, records)
	require.False(t, called)
}

func TestSearch_ErrorPassthrough(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"database unavailable"}`))
	})

	_, err := c.Search(context.Background(), "x")
	require.True(t, errors.Is(err, errors.ErrUpstream))
	require.Contains(t, err.Error(), "database unavailable")
}

func TestSearch_ErrorWithoutBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Search(context.Background(), "x")
	require.True(t, errors.Is(err, errors.ErrUpstream))
	require.Contains(t, err.Error(), "status 502")
}

func TestSearch_InvalidJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	})

	_, err := c.Search(context.Background(), "x")
	require.True(t, errors.Is(err, errors.ErrUpstream))
}

func TestAdd(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/add_product", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ABC", body["SKU"])
		assert.Equal(t, "TEH", body["ITEMS_NAME"])
		assert.Equal(t, "", body["PRICE"])

		w.Write([]byte(`{"status":"success","data":[{"SKU":"ABC","ITEMS_NAME":"TEH","PRICE":null}]}`))
	})

	got, err := c.Add(context.Background(), product.Record{SKU: "abc", ItemName: "teh"})
	require.NoError(t, err)
	require.Equal(t, "ABC", got.SKU)
	require.Nil(t, got.Price)
}

func TestAdd_NoEchoReturnsSent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":[]}`))
	})

	got, err := c.Add(context.Background(), product.Record{SKU: "abc", ItemName: "teh"})
	require.NoError(t, err)
	require.Equal(t, "TEH", got.ItemName)
}

func TestUpdate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/update_product", r.URL.Path)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2000", body["PRICE"])

		w.Write([]byte(`{"status":"success","data":[{"SKU":"ABC","ITEMS_NAME":"TEH","PRICE":2000}]}`))
	})

	price := "2000"
	got, err := c.Update(context.Background(), product.Record{SKU: "ABC", ItemName: "TEH", Price: &price})
	require.NoError(t, err)
	require.Equal(t, "2000", *got.Price)
}

func TestEnrich(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/enrich_with_ai", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "8991002101234", q.Get("sku"))
		assert.Equal(t, "teh", q.Get("name_hint"))
		assert.Equal(t, "chatgpt", q.Get("provider"))
		w.Write([]byte(`{"items_name":"Teh Botol","category":"PT Sinar Sosro","brand_name":"Sosro","variant_name":""}`))
	})

	got, err := c.Enrich(context.Background(), enrich.Request{SKU: "8991002101234", NameHint: "teh", Provider: "chatgpt"})
	require.NoError(t, err)
	require.Equal(t, "8991002101234", got.SKU)
	require.Equal(t, "TEH BOTOL", got.ItemName)
	require.Equal(t, "PT SINAR SOSRO", got.Category)
	require.Equal(t, "SOSRO", got.BrandName)
	require.Empty(t, got.VariantName)
}

func TestEnrich_RequiresSKU(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend should not be called")
	})

	_, err := c.Enrich(context.Background(), enrich.Request{})
	require.True(t, errors.Is(err, errors.ErrValidation))
}

func TestCancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Search(ctx, "x")
	require.True(t, errors.Is(err, errors.ErrCancelled), "got %v", err)
}

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"duplicate key", errors.NewUpstream("add_product", `duplicate key value violates unique constraint "products_pkey"`), true},
		{"already exists", errors.NewUpstream("add_product", "SKU already exists"), true},
		{"other upstream", errors.NewUpstream("add_product", "timeout"), false},
		{"not upstream", errors.NewValidation("SKU", "duplicate"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDuplicate(tt.err); got != tt.want {
				t.Errorf("IsDuplicate() = %v, want %v", got, tt.want)
			}
		})
	}
}
