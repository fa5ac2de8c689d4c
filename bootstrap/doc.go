// Package bootstrap orchestrates the process lifecycle of a registered service.
//
// Components are started in registration order and stopped in reverse, so a
// service registers its HTTP server before its registration component: the
// health endpoint is answering by the time the registry agent first checks it,
// and deregistration happens before the server goes away.
//
// # Quick Start
//
//	app, err := bootstrap.NewApp(&cfg)
//	if err != nil {
//	    return err
//	}
//	_ = app.RegisterComponent(server.NewComponent(srv))
//	_ = app.RegisterComponent(discovery.NewComponent(cfg.Consul, identity, registry, app.Logger))
//	return app.Run(ctx)
package bootstrap
