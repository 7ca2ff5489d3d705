package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPChecker(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		wantLive bool
		wantErr  bool
	}{
		{name: "ok is live", code: http.StatusOK, wantLive: true},
		{name: "redirect target ok", code: http.StatusNoContent, wantLive: true},
		{name: "not found is offline", code: http.StatusNotFound, wantLive: false},
		{name: "gone is offline", code: http.StatusGone, wantLive: false},
		{name: "server error is a failed check", code: http.StatusInternalServerError, wantErr: true},
		{name: "bad gateway is a failed check", code: http.StatusBadGateway, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			c := &HTTPChecker{}
			live, err := c.Check(context.Background(), srv.URL)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if live != tt.wantLive {
				t.Errorf("live = %v, want %v", live, tt.wantLive)
			}
		})
	}
}

func TestHTTPCheckerTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := &HTTPChecker{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Check(ctx, srv.URL); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestHTTPCheckerUnreachable(t *testing.T) {
	c := &HTTPChecker{Client: &http.Client{Timeout: 200 * time.Millisecond}}
	if _, err := c.Check(context.Background(), "http://127.0.0.1:1/nope"); err == nil {
		t.Fatal("expected connection error")
	}
}
