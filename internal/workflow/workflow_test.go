package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dray-supadev/api-gmail/internal/apperr"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "wf-token", srv.Client())
}

func TestPreview(t *testing.T) {
	t.Parallel()

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wf/quote-preview" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer wf-token" {
			t.Errorf("authorization = %q", got)
		}

		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["quote_id"] != "Q-42" {
			t.Errorf("quote_id = %v", req["quote_id"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"html":    "<p>Quote {{comment}}</p>",
				"pdf_url": "//cdn.example/q42.pdf",
			},
		})
	}))

	preview, err := client.Preview(context.Background(), "Q-42", "3", nil)
	if err != nil {
		t.Fatalf("Preview() returned error: %v", err)
	}
	if preview.HTML != "<p>Quote {{comment}}</p>" {
		t.Errorf("html = %q", preview.HTML)
	}
	if preview.PDFURL != "//cdn.example/q42.pdf" {
		t.Errorf("pdf url = %q", preview.PDFURL)
	}
}

func TestPreviewEmptyBodyIsError(t *testing.T) {
	t.Parallel()

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"response": map[string]any{}})
	}))

	_, err := client.Preview(context.Background(), "Q-42", "", nil)
	var ue *apperr.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}

func TestPreviewEngineFailure(t *testing.T) {
	t.Parallel()

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine exploded", http.StatusInternalServerError)
	}))

	_, err := client.Preview(context.Background(), "Q-42", "", nil)
	var ue *apperr.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", ue.StatusCode)
	}
	if ue.Backend != "workflow" {
		t.Errorf("backend = %q", ue.Backend)
	}
}

func TestNotify(t *testing.T) {
	t.Parallel()

	var called bool
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.URL.Path != "/wf/quote-sent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.Notify(context.Background(), "Q-42", "3"); err != nil {
		t.Fatalf("Notify() returned error: %v", err)
	}
	if !called {
		t.Error("engine was not called")
	}
}
