package reader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestREST(t *testing.T, handler http.HandlerFunc) *REST {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewREST("test", srv.URL, NewHTTPClient(Options{Timeout: 2 * time.Second, RequestsPerSecond: 1000}))
}

func TestGetObjectToleratesStringNumbers(t *testing.T) {
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Errorf("unexpected query: %s", req.URL.RawQuery)
		}
		w.Write([]byte(`{"markPrice":"101.5","lastFundingRate":0.0001}`))
	})
	res, err := r.GetObject(context.Background(), "/x", url.Values{"symbol": {"BTCUSDT"}}, "BTCUSDT")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if got := res.Get("markPrice").Float(); got != 101.5 {
		t.Errorf("markPrice=%v", got)
	}
	if got := res.Get("missing").Float(); got != 0 {
		t.Errorf("missing field should default to 0, got %v", got)
	}
}

func TestGetNon2xxIsFetchError(t *testing.T) {
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	})
	_, err := r.Get(context.Background(), "/x", nil, "NOPE")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusBadRequest || !strings.Contains(fe.Body, "Invalid symbol") {
		t.Errorf("unexpected error: %+v", fe)
	}
	if Kind(err) != "fetch" {
		t.Errorf("Kind=%s", Kind(err))
	}
}

func TestGetInvalidJSONIsParseError(t *testing.T) {
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`<html>busy</html>`))
	})
	_, err := r.Get(context.Background(), "/x", nil, "")
	if !IsParseError(err) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if Kind(err) != "parse" {
		t.Errorf("Kind=%s", Kind(err))
	}
}

func TestGetArrayRequiresArray(t *testing.T) {
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	})
	if _, err := r.GetArray(context.Background(), "/x", nil, ""); !IsParseError(err) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestObserveReceivesHeaders(t *testing.T) {
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("X-Test", "1")
		w.Write([]byte(`[]`))
	})
	var seen string
	r.Observe(func(endpoint string, h http.Header) { seen = endpoint + ":" + h.Get("X-Test") })
	if _, err := r.GetArray(context.Background(), "/y", nil, ""); err != nil {
		t.Fatalf("GetArray: %v", err)
	}
	if seen != "/y:1" {
		t.Errorf("observe hook got %q", seen)
	}
}

type flakyTransport struct {
	failures int
	calls    int
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Header: http.Header{}, Request: req}, nil
}

func TestLimitedTransportRetriesOnce(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		failures  int
		wantErr   bool
		wantCalls int
	}{
		{"recovers", http.MethodGet, 1, false, 2},
		{"gives up", http.MethodGet, 2, true, 2},
		{"post not retried", http.MethodPost, 1, true, 1},
	}
	for _, tt := range tests {
		ft := &flakyTransport{failures: tt.failures}
		lt := &limitedTransport{next: ft, limiter: rate.NewLimiter(rate.Inf, 1), retries: 1}
		req, _ := http.NewRequest(tt.method, "http://example.invalid", nil)
		resp, err := lt.RoundTrip(req)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err=%v wantErr=%v", tt.name, err, tt.wantErr)
		}
		if resp != nil {
			resp.Body.Close()
		}
		if ft.calls != tt.wantCalls {
			t.Errorf("%s: calls=%d want %d", tt.name, ft.calls, tt.wantCalls)
		}
	}
}

func TestNewHTTPClientCapsRetries(t *testing.T) {
	c := NewHTTPClient(Options{Retries: 5})
	lt, ok := c.Transport.(*limitedTransport)
	if !ok {
		t.Fatalf("unexpected transport %T", c.Transport)
	}
	if lt.retries != 1 {
		t.Errorf("retries = %d, want 1", lt.retries)
	}
}
