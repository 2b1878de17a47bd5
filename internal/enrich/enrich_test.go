package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/product"
)

func TestParseResult(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", `{"items_name":"Kopi"}`, "Kopi", false},
		{"fenced", "```json\n{\"items_name\":\"Kopi\"}\n```", "Kopi", false},
		{"json prefix", `json{"items_name":"Kopi"}`, "Kopi", false},
		{"surrounding space", "  \n{\"items_name\":\"Kopi\"}  ", "Kopi", false},
		{"not json", "I could not find that product.", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResult(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseResult() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.ItemsName != tt.want {
				t.Errorf("ItemsName = %q, want %q", got.ItemsName, tt.want)
			}
		})
	}
}

func TestResultRecord(t *testing.T) {
	r := Result{ItemsName: " teh botol ", Category: "pt sinar sosro"}.Record(" 899 ")
	if r.SKU != "899" || r.ItemName != "TEH BOTOL" || r.Category != "PT SINAR SOSRO" {
		t.Errorf("Record() = %+v", r)
	}
	if r.Price != nil {
		t.Error("enrichment must not set a price")
	}
}

func TestPrompt(t *testing.T) {
	p := Prompt("123", "")
	if !strings.Contains(p, "'123'") || strings.Contains(p, "similar to") {
		t.Errorf("Prompt without hint = %q", p)
	}
	p = Prompt("123", "kopi")
	if !strings.Contains(p, "similar to 'kopi'") {
		t.Errorf("Prompt with hint = %q", p)
	}
	for _, field := range []string{"items_name", "category", "brand_name", "variant_name"} {
		if !strings.Contains(p, field) {
			t.Errorf("Prompt missing field %s", field)
		}
	}
}

// fakeOpenAI serves /chat/completions with a fixed assistant message.
func fakeOpenAI(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)

		var req struct {
			Model       string  `json:"model"`
			Temperature float32 `json:"temperature"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		assert.InDelta(t, 0.2, req.Temperature, 0.001)
		assert.Len(t, req.Messages, 2)

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
			return
		}
		resp := map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEnricher(t *testing.T) {
	srv := fakeOpenAI(t, "```json\n{\"items_name\":\"Indomie Goreng\",\"category\":\"PT Indofood\",\"brand_name\":\"Indomie\",\"variant_name\":\"\"}\n```", http.StatusOK)

	e, err := NewOpenAIEnricher(OpenAIConfig{APIKey: "sk-test", Model: "gpt-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	got, err := e.Enrich(context.Background(), Request{SKU: "089686010947"})
	require.NoError(t, err)
	require.Equal(t, "089686010947", got.SKU)
	require.Equal(t, "INDOMIE GORENG", got.ItemName)
	require.Equal(t, "PT INDOFOOD", got.Category)
	require.Equal(t, "INDOMIE", got.BrandName)
}

func TestOpenAIEnricher_UpstreamError(t *testing.T) {
	srv := fakeOpenAI(t, "", http.StatusTooManyRequests)

	e, err := NewOpenAIEnricher(OpenAIConfig{APIKey: "sk-test", Model: "gpt-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = e.Enrich(context.Background(), Request{SKU: "1"})
	require.True(t, errors.Is(err, errors.ErrUpstream), "got %v", err)
}

func TestOpenAIEnricher_BadContent(t *testing.T) {
	srv := fakeOpenAI(t, "Sorry, I don't know.", http.StatusOK)

	e, err := NewOpenAIEnricher(OpenAIConfig{APIKey: "sk-test", Model: "gpt-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = e.Enrich(context.Background(), Request{SKU: "1"})
	require.True(t, errors.Is(err, errors.ErrUpstream))
}

func TestNewOpenAIEnricher_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEnricher(OpenAIConfig{})
	require.Error(t, err)
}

type stubEnricher struct {
	name  string
	calls []Request
}

func (s *stubEnricher) Enrich(_ context.Context, req Request) (product.Record, error) {
	s.calls = append(s.calls, req)
	return product.Record{SKU: req.SKU, ItemName: s.name}, nil
}

func TestRouter(t *testing.T) {
	backend := &stubEnricher{name: "BACKEND"}
	direct := &stubEnricher{name: "DIRECT"}
	r := NewRouter(backend, WithDirect(ProviderChatGPT, direct))

	got, err := r.Enrich(context.Background(), Request{SKU: "1"})
	require.NoError(t, err)
	require.Equal(t, "BACKEND", got.ItemName)
	require.Equal(t, ProviderGemini, backend.calls[0].Provider)

	got, err = r.Enrich(context.Background(), Request{SKU: "1", Provider: " ChatGPT "})
	require.NoError(t, err)
	require.Equal(t, "DIRECT", got.ItemName)
	require.Len(t, direct.calls, 1)
}

func TestRouter_DefaultProvider(t *testing.T) {
	backend := &stubEnricher{name: "BACKEND"}
	direct := &stubEnricher{name: "DIRECT"}
	r := NewRouter(backend, WithDirect(ProviderChatGPT, direct), WithDefaultProvider(ProviderChatGPT))

	got, err := r.Enrich(context.Background(), Request{SKU: "1"})
	require.NoError(t, err)
	require.Equal(t, "DIRECT", got.ItemName)
	require.Empty(t, backend.calls)
}

func TestRouter_NoBackend(t *testing.T) {
	r := NewRouter(nil)
	_, err := r.Enrich(context.Background(), Request{SKU: "1"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
