package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStdlibHTTPAdapter_ExecuteReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("q") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	a := NewStdlibHTTPAdapter()
	res, err := a.Execute(context.Background(), HTTPInput{
		Method:     http.MethodPost,
		URL:        srv.URL,
		Query:      map[string]string{"q": "1"},
		AuthHeader: "Bearer token-123",
		Timeout:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}
	if res.Body != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", res.Body)
	}
}

func TestStdlibHTTPAdapter_TimeoutIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	a := NewStdlibHTTPAdapter()
	_, err := a.Execute(context.Background(), HTTPInput{URL: srv.URL, Timeout: 10 * time.Millisecond})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
