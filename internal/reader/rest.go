package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const maxErrorBody = 256

// REST issues JSON GET requests against one base URL and decodes responses
// with gjson so missing or string-typed numeric fields degrade to zero.
type REST struct {
	source  string
	base    string
	client  *http.Client
	observe func(endpoint string, header http.Header)
}

// NewREST returns a REST helper for base. source names the upstream in
// errors and logs.
func NewREST(source, base string, client *http.Client) *REST {
	if client == nil {
		client = http.DefaultClient
	}
	return &REST{source: source, base: strings.TrimRight(base, "/"), client: client}
}

// Observe registers a hook receiving the headers of every 2xx response.
func (r *REST) Observe(fn func(endpoint string, header http.Header)) {
	r.observe = fn
}

// Source returns the upstream name.
func (r *REST) Source() string { return r.source }

// Get fetches path with params. symbol only annotates errors.
func (r *REST) Get(ctx context.Context, path string, params url.Values, symbol string) (gjson.Result, error) {
	reqURL := r.base + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return gjson.Result{}, &FetchError{Source: r.source, Endpoint: path, Symbol: symbol, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return gjson.Result{}, &FetchError{Source: r.source, Endpoint: path, Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, &FetchError{Source: r.source, Endpoint: path, Symbol: symbol, StatusCode: 0, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, &FetchError{
			Source:     r.source,
			Endpoint:   path,
			Symbol:     symbol,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBody),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	if r.observe != nil {
		r.observe(path, resp.Header)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &ParseError{Source: r.source, Endpoint: path, Symbol: symbol, Err: errors.New("response is not valid JSON")}
	}
	return gjson.ParseBytes(body), nil
}

// GetArray is Get requiring a JSON array.
func (r *REST) GetArray(ctx context.Context, path string, params url.Values, symbol string) ([]gjson.Result, error) {
	res, err := r.Get(ctx, path, params, symbol)
	if err != nil {
		return nil, err
	}
	if !res.IsArray() {
		return nil, &ParseError{Source: r.source, Endpoint: path, Symbol: symbol, Err: fmt.Errorf("expected array, got %s", res.Type)}
	}
	return res.Array(), nil
}

// GetObject is Get requiring a JSON object.
func (r *REST) GetObject(ctx context.Context, path string, params url.Values, symbol string) (gjson.Result, error) {
	res, err := r.Get(ctx, path, params, symbol)
	if err != nil {
		return gjson.Result{}, err
	}
	if !res.IsObject() {
		return gjson.Result{}, &ParseError{Source: r.source, Endpoint: path, Symbol: symbol, Err: fmt.Errorf("expected object, got %s", res.Type)}
	}
	return res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
