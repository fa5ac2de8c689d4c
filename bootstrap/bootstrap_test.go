package bootstrap

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/consulkit/component"
	"github.com/kbukum/consulkit/config"
	"github.com/kbukum/consulkit/logger"
)

type testConfig struct {
	config.ServiceConfig
}

func newTestConfig(name, version string) *testConfig {
	return &testConfig{
		ServiceConfig: config.ServiceConfig{
			Name:        name,
			Version:     version,
			Environment: "development",
		},
	}
}

// recorder collects lifecycle events across components in call order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type mockComponent struct {
	name     string
	rec      *recorder
	startErr error
	stopErr  error
	status   component.HealthStatus
}

func (m *mockComponent) Name() string { return m.name }

func (m *mockComponent) Start(context.Context) error {
	m.rec.add("start:" + m.name)
	return m.startErr
}

func (m *mockComponent) Stop(context.Context) error {
	m.rec.add("stop:" + m.name)
	return m.stopErr
}

func (m *mockComponent) Health(context.Context) component.Health {
	status := m.status
	if status == "" {
		status = component.StatusHealthy
	}
	return component.Health{Name: m.name, Status: status}
}

func (m *mockComponent) Describe() component.Description {
	return component.Description{Type: "mock", Details: m.name}
}

func newTestApp(t *testing.T) *App[*testConfig] {
	t.Helper()
	app, err := NewApp(newTestConfig("test-svc", "1.0.0"), WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	return app
}

func TestNewApp(t *testing.T) {
	app := newTestApp(t)
	if app.Name != "test-svc" || app.Version != "1.0.0" {
		t.Errorf("unexpected identity %q %q", app.Name, app.Version)
	}
	if app.Components == nil || app.Logger == nil {
		t.Fatal("expected components and logger")
	}
	if app.gracefulTimeout != DefaultGracefulTimeout {
		t.Errorf("graceful timeout = %v", app.gracefulTimeout)
	}
	if app.Cfg.Environment != "development" {
		t.Errorf("defaults not applied: %q", app.Cfg.Environment)
	}
}

func TestNewAppValidation(t *testing.T) {
	cfg := &testConfig{ServiceConfig: config.ServiceConfig{Environment: "development"}}
	if _, err := NewApp(cfg, WithLogger(logger.Nop())); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestNewAppWithGracefulTimeout(t *testing.T) {
	app, err := NewApp(newTestConfig("t", "1"), WithLogger(logger.Nop()), WithGracefulTimeout(30*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if app.gracefulTimeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", app.gracefulTimeout)
	}
}

func TestStartAndShutdownOrder(t *testing.T) {
	app := newTestApp(t)
	rec := &recorder{}
	for _, name := range []string{"http-server", "registration"} {
		if err := app.RegisterComponent(&mockComponent{name: name, rec: rec}); err != nil {
			t.Fatal(err)
		}
	}
	app.OnStart(func(context.Context) error { rec.add("hook:start"); return nil })
	app.OnReady(func(context.Context) error { rec.add("hook:ready"); return nil })
	app.OnStop(func(context.Context) error { rec.add("hook:stop"); return nil })

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	want := []string{
		"start:http-server", "start:registration", "hook:start", "hook:ready",
		"hook:stop", "stop:registration", "stop:http-server",
	}
	if got := rec.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestStartFailureStopsStarted(t *testing.T) {
	app := newTestApp(t)
	rec := &recorder{}
	_ = app.RegisterComponent(&mockComponent{name: "http-server", rec: rec})
	_ = app.RegisterComponent(&mockComponent{name: "registration", rec: rec, startErr: errors.New("agent down")})

	err := app.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "agent down") {
		t.Fatalf("expected startup error, got %v", err)
	}

	want := []string{"start:http-server", "start:registration", "stop:http-server"}
	if got := rec.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestStartHookFailure(t *testing.T) {
	app := newTestApp(t)
	rec := &recorder{}
	_ = app.RegisterComponent(&mockComponent{name: "a", rec: rec})
	app.OnReady(func(context.Context) error { return errors.New("nope") })

	if err := app.Start(context.Background()); err == nil {
		t.Fatal("expected hook error")
	}
	if got := rec.list(); got[len(got)-1] != "stop:a" {
		t.Errorf("expected cleanup stop, got %v", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	app := newTestApp(t)
	rec := &recorder{}
	_ = app.RegisterComponent(&mockComponent{name: "a", rec: rec})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(rec.list()) == 0 {
		select {
		case <-deadline:
			t.Fatal("component never started")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := rec.list(); !reflect.DeepEqual(got, []string{"start:a", "stop:a"}) {
		t.Errorf("events = %v", got)
	}
}

func TestShutdownReportsStopError(t *testing.T) {
	app := newTestApp(t)
	rec := &recorder{}
	_ = app.RegisterComponent(&mockComponent{name: "a", rec: rec, stopErr: errors.New("boom")})
	if err := app.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := app.Shutdown(context.Background()); err == nil {
		t.Error("expected stop error")
	}
}

func TestReadyCheckAndHealth(t *testing.T) {
	app := newTestApp(t)
	rec := &recorder{}
	_ = app.RegisterComponent(&mockComponent{name: "ok", rec: rec})
	_ = app.RegisterComponent(&mockComponent{name: "slow", rec: rec, status: component.StatusDegraded})

	err := app.ReadyCheck(context.Background())
	if err == nil || !strings.Contains(err.Error(), "slow=degraded") {
		t.Errorf("unexpected ready check result: %v", err)
	}
	if got := component.Overall(app.Health(context.Background())); got != component.StatusDegraded {
		t.Errorf("overall = %s", got)
	}
}

func TestRegisterDuplicateComponent(t *testing.T) {
	app := newTestApp(t)
	rec := &recorder{}
	if err := app.RegisterComponent(&mockComponent{name: "a", rec: rec}); err != nil {
		t.Fatal(err)
	}
	if err := app.RegisterComponent(&mockComponent{name: "a", rec: rec}); err == nil {
		t.Error("expected duplicate registration error")
	}
}
