// Package bootstrap runs a regkit process through its lifecycle.
//
// An App owns the typed configuration, the logger and the component
// registry. Run starts every component in registration order, runs the
// OnStart, OnConfigure and OnReady callbacks, blocks until SIGINT, SIGTERM or
// context cancellation, then runs OnStop hooks and stops components in
// reverse order within the graceful timeout.
//
// RunTask uses the same startup and shutdown path for one-shot commands such
// as a single discovery lookup.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.RegisterComponent(serverComponent)
//	app.RegisterComponent(discoveryComponent)
//	if err := app.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package bootstrap
