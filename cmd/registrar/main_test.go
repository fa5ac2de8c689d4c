package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/kbukum/consulkit/bootstrap"
	"github.com/kbukum/consulkit/config"
	"github.com/kbukum/consulkit/discovery"
	"github.com/kbukum/consulkit/logger"
	"github.com/kbukum/consulkit/server"
)

type agent struct {
	mu           sync.Mutex
	registered   []map[string]interface{}
	deregistered []string
}

func (a *agent) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/agent/service/register", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		a.mu.Lock()
		a.registered = append(a.registered, body)
		a.mu.Unlock()
	})
	mux.HandleFunc("/v1/agent/service/deregister/", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.deregistered = append(a.deregistered, strings.TrimPrefix(r.URL.Path, "/v1/agent/service/deregister/"))
		a.mu.Unlock()
	})
	mux.HandleFunc("/v1/status/leader", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `"127.0.0.1:8300"`)
	})
	return mux
}

func (a *agent) snapshot() ([]map[string]interface{}, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]map[string]interface{}(nil), a.registered...), append([]string(nil), a.deregistered...)
}

func testConfig(consulURL string) *Config {
	return &Config{
		ServiceConfig: config.ServiceConfig{Name: "registrar", Environment: "development"},
		Server:        server.Config{Host: "127.0.0.1"},
		Consul: discovery.Options{
			Enabled:     consulURL != "",
			ServiceURL:  consulURL,
			Service:     "orders",
			Address:     "127.0.0.1",
			Port:        9090,
			PingEnabled: true,
		},
	}
}

func healthURL(t *testing.T, app *bootstrap.App[*Config]) string {
	t.Helper()
	sc, ok := app.Components.Get("http-server").(*server.ServerComponent)
	if !ok {
		t.Fatal("http-server component missing")
	}
	return "http://" + sc.Server().Addr() + app.Cfg.Consul.PingEndpoint
}

func TestBuildAppRegistersAndDeregisters(t *testing.T) {
	fake := &agent{}
	consulSrv := httptest.NewServer(fake.handler())
	defer consulSrv.Close()

	defer otel.SetMeterProvider(noop.NewMeterProvider())

	cfg := testConfig(consulSrv.URL)
	cfg.Observability.Prometheus = true
	app, err := buildApp(context.Background(), cfg, bootstrap.WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(healthURL(t, app))
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	metricsURL := strings.TrimSuffix(healthURL(t, app), app.Cfg.Consul.PingEndpoint) + metricsPath
	resp, err = client.Get(metricsURL)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	scrape, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(scrape), "operation_total") {
		t.Errorf("expected register operation in scrape output:\n%s", scrape)
	}

	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	regs, deregs := fake.snapshot()
	if len(regs) != 1 {
		t.Fatalf("expected one registration, got %d", len(regs))
	}
	id, _ := regs[0]["ID"].(string)
	if !strings.HasPrefix(id, "orders:") {
		t.Errorf("instance id = %q", id)
	}
	check, _ := regs[0]["Check"].(map[string]interface{})
	if check["HTTP"] != "http://127.0.0.1:9090/health" {
		t.Errorf("check url = %v", check["HTTP"])
	}
	if len(deregs) != 1 || deregs[0] != id {
		t.Errorf("deregistrations = %v, want [%s]", deregs, id)
	}
}

func TestBuildAppDisabledRegistration(t *testing.T) {
	app, err := buildApp(context.Background(), testConfig(""), bootstrap.WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = app.Shutdown(context.Background()) }()

	resp, err := http.Get(healthURL(t, app))
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	lookupURL := strings.TrimSuffix(healthURL(t, app), app.Cfg.Consul.PingEndpoint) + "/services/billing"
	resp, err = http.Get(lookupURL)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("lookup of an unregistered service = %d, want 404", resp.StatusCode)
	}
}

func TestBuildAppFailsWithoutAddress(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8500")
	cfg.Consul.Address = ""
	_, err := buildApp(context.Background(), cfg, bootstrap.WithLogger(logger.Nop()))
	if !errors.Is(err, discovery.ErrMissingAddress) {
		t.Fatalf("expected missing address error, got %v", err)
	}
}

func TestStartFailsWhenAgentRejects(t *testing.T) {
	consulSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ACL not found", http.StatusForbidden)
	}))
	defer consulSrv.Close()

	app, err := buildApp(context.Background(), testConfig(consulSrv.URL), bootstrap.WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	if err := app.Start(context.Background()); err == nil {
		_ = app.Shutdown(context.Background())
		t.Fatal("expected startup failure")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{
		ServiceConfig: config.ServiceConfig{Name: "registrar"},
		Server:        server.Config{Port: 8081},
	}
	cfg.ApplyDefaults()
	if cfg.Consul.Port != 8081 {
		t.Errorf("consul port = %d, want server port", cfg.Consul.Port)
	}
	if cfg.Consul.Service != "registrar" {
		t.Errorf("consul service = %q", cfg.Consul.Service)
	}
	if cfg.Version == "" {
		t.Error("expected build version")
	}
	if cfg.Consul.PingEndpoint != discovery.DefaultPingEndpoint {
		t.Errorf("ping endpoint = %q", cfg.Consul.PingEndpoint)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfigIgnoresDisabledConsulSection(t *testing.T) {
	cfg := &Config{
		ServiceConfig: config.ServiceConfig{Name: "registrar"},
		Consul:        discovery.Options{Enabled: false, Scheme: "ftp", Port: 70000},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled consul section should not fail validation: %v", err)
	}
}
