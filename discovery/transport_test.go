package discovery

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
)

func instanceFor(t *testing.T, srv *httptest.Server, name string) ServiceInstance {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(u.Port())
	return ServiceInstance{ID: name + ":1", Name: name, Address: u.Hostname(), Port: port, Health: HealthHealthy}
}

func TestTransportRewritesHost(t *testing.T) {
	type seen struct {
		method, path, query, body, host string
	}
	got := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- seen{r.Method, r.URL.Path, r.URL.RawQuery, string(b), r.Host}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	inst := instanceFor(t, srv, "billing")
	client := NewHTTPClient(newFakeRegistry(inst), nil)

	req, _ := http.NewRequest(http.MethodPost, "http://billing/invoices/42?expand=lines", strings.NewReader(`{"a":1}`))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", resp.StatusCode)
	}

	s := <-got
	if s.method != http.MethodPost || s.path != "/invoices/42" || s.query != "expand=lines" {
		t.Errorf("request not preserved: %+v", s)
	}
	if s.body != `{"a":1}` {
		t.Errorf("body = %q", s.body)
	}
	if s.host != inst.HostPort() {
		t.Errorf("Host = %q, want %q", s.host, inst.HostPort())
	}
	if req.URL.Host != "billing" {
		t.Errorf("caller's request was mutated: %s", req.URL.Host)
	}
}

func TestTransportLookupFailureSendsNothing(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	client := NewHTTPClient(newFakeRegistry(), nil)
	_, err := client.Get("http://billing/invoices")
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
	if hits.Load() != 0 {
		t.Error("request was sent despite lookup failure")
	}
}

func TestTransportCancelledContext(t *testing.T) {
	reg := newFakeRegistry(ServiceInstance{Name: "billing", Address: "127.0.0.1", Port: 1})
	tr := &Transport{Resolver: reg}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://billing/", nil)

	_, err := tr.RoundTrip(req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if lookups, _ := reg.counts(); lookups != 0 {
		t.Errorf("resolver called %d times after cancellation", lookups)
	}
}

func TestTransportSchemeOverride(t *testing.T) {
	var scheme string
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		scheme = r.URL.Scheme
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})
	reg := newFakeRegistry(ServiceInstance{Name: "billing", Address: "10.0.0.7", Port: 8443})
	tr := &Transport{Resolver: reg, Base: base, Scheme: "https"}

	req, _ := http.NewRequest(http.MethodGet, "http://billing/", nil)
	if _, err := tr.RoundTrip(req); err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if scheme != "https" {
		t.Errorf("scheme = %q", scheme)
	}
}

func TestTransportResolvesEveryRequest(t *testing.T) {
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})
	reg := newFakeRegistry(ServiceInstance{Name: "billing", Address: "10.0.0.7", Port: 80})
	tr := &Transport{Resolver: reg, Base: base}

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, "http://billing/", nil)
		if _, err := tr.RoundTrip(req); err != nil {
			t.Fatalf("RoundTrip: %v", err)
		}
	}
	if lookups, _ := reg.counts(); lookups != 3 {
		t.Errorf("lookups = %d, want 3", lookups)
	}
}

func TestTransportWithoutResolver(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://billing/", nil)
	if _, err := (&Transport{}).RoundTrip(req); err == nil {
		t.Fatal("expected error without resolver")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
