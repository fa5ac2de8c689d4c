package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kbukum/consulkit/discovery"
	"github.com/kbukum/consulkit/discovery/static"
)

type testItem struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ordersAPI serves handler as the only registered "orders-api" instance and
// returns an adapter that reaches it by service name.
func ordersAPI(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	registry := static.NewProvider(discovery.StrategyRoundRobin, endpointFor(t, srv, "orders-api"))
	a, err := New(Config{Name: "orders-api", BaseURL: "http://orders-api"}, WithResolver(registry))
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestGet_ThroughRegistry(t *testing.T) {
	a := ordersAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/orders/7" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Correlation-ID") != "c-1" {
			t.Errorf("header option not applied")
		}
		json.NewEncoder(w).Encode(testItem{ID: 7, Name: "pending"})
	})

	resp, err := Get[testItem](a, context.Background(), "/orders/7", WithHeader("X-Correlation-ID", "c-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Data.ID != 7 || resp.Data.Name != "pending" {
		t.Errorf("unexpected response: %d %+v", resp.StatusCode, resp.Data)
	}
}

func TestTypedMethods(t *testing.T) {
	a := ordersAPI(t, func(w http.ResponseWriter, r *http.Request) {
		var item testItem
		json.NewDecoder(r.Body).Decode(&item)
		item.Name = r.Method
		json.NewEncoder(w).Encode(item)
	})
	ctx := context.Background()
	order := testItem{ID: 7}

	tests := []struct {
		method string
		call   func() (*TypedResponse[testItem], error)
	}{
		{http.MethodPost, func() (*TypedResponse[testItem], error) { return Post[testItem](a, ctx, "/orders", order) }},
		{http.MethodPut, func() (*TypedResponse[testItem], error) { return Put[testItem](a, ctx, "/orders/7", order) }},
		{http.MethodPatch, func() (*TypedResponse[testItem], error) { return Patch[testItem](a, ctx, "/orders/7", order) }},
		{http.MethodDelete, func() (*TypedResponse[testItem], error) { return Delete[testItem](a, ctx, "/orders/7") }},
	}
	for _, tc := range tests {
		t.Run(tc.method, func(t *testing.T) {
			resp, err := tc.call()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Data.Name != tc.method {
				t.Errorf("orders-api saw %q", resp.Data.Name)
			}
		})
	}
}

func TestGet_ErrorAnswers(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantData bool
	}{
		{"json error body decoded", http.StatusConflict, `{"name":"already shipped"}`, true},
		{"plain error body dropped", http.StatusServiceUnavailable, "draining", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := ordersAPI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})

			resp, err := Get[testItem](a, context.Background(), "/orders/7")
			var httpErr *Error
			if !errors.As(err, &httpErr) || httpErr.StatusCode != tc.status {
				t.Fatalf("expected *Error with status %d, got %v", tc.status, err)
			}
			if tc.wantData {
				if resp == nil || resp.Data.Name != "already shipped" {
					t.Errorf("expected decoded error body, got %+v", resp)
				}
			} else if resp != nil {
				t.Errorf("expected no typed response, got %+v", resp)
			}
		})
	}
}

func TestGet_UnknownServiceIsNotDecoded(t *testing.T) {
	registry := static.NewProvider(discovery.StrategyRoundRobin)
	a, _ := New(Config{BaseURL: "http://orders-api"}, WithResolver(registry))

	resp, err := Get[testItem](a, context.Background(), "/orders/7")
	if !errors.Is(err, discovery.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
	if resp != nil {
		t.Errorf("expected nil response, got %+v", resp)
	}
}

func TestGet_InvalidJSON(t *testing.T) {
	a := ordersAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	if _, err := Get[testItem](a, context.Background(), "/orders/7"); err == nil {
		t.Fatal("expected decode error")
	}
}
