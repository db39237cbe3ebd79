package main

import (
	"context"

	"ports/internal/app"
	"ports/internal/config"
	"ports/internal/model"
)

// controllerAPI is what the commands need from app.App; tests swap in a stub.
type controllerAPI interface {
	List(ctx context.Context, params app.ListParams) (app.ListResult, error)
	Why(ctx context.Context, target string) ([]app.WhyReport, error)
	Kill(ctx context.Context, params app.KillParams) (app.KillResult, error)
	Ancestry(ctx context.Context, pid uint32, name string) (model.ProcessAncestry, error)
}

var (
	loadedConfig      = config.Default()
	sharedApp         *app.App
	controllerFactory = func() controllerAPI { return defaultApp() }
)

// defaultApp builds the App lazily so one ancestry cache serves the whole run.
func defaultApp() *app.App {
	if sharedApp == nil {
		sharedApp = app.New(app.Options{Config: loadedConfig})
	}
	return sharedApp
}

func controller() controllerAPI {
	return controllerFactory()
}

func writeMetrics() error {
	if metricsFile == "" || sharedApp == nil {
		return nil
	}
	return sharedApp.Metrics().WriteTextfile(metricsFile)
}
