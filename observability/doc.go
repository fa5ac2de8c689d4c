// Package observability wires OpenTelemetry tracing and metrics for registry
// traffic.
//
// Setup installs OTLP/HTTP exporters when enabled and leaves the global
// no-op providers in place otherwise, so instrumented code never checks
// whether telemetry is on. With prometheus set, metrics are also served in
// the Prometheus exposition format through Providers.MetricsHandler.
//
//	providers, err := observability.Setup(ctx, cfg.Observability, observability.ServiceInfo{Name: "orders-api"}, log)
//	defer providers.Shutdown(ctx)
//
// Registry calls are wrapped in an Operation, which opens a span and records
// the operation.total and operation.duration instruments when it ends:
//
//	ctx, op := observability.StartOperation(ctx, metrics, "consul", "register")
//	err := agent.Register(...)
//	op.End(ctx, err)
package observability
