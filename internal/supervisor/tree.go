// Package supervisor runs the server's long-lived services under a suture
// tree so a crashed service is restarted instead of taking the process down.
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is how long to wait once the threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout bounds how long a service may take to stop.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// Tree has two layers: core (hub, sensor, pruner) and api (HTTP, gRPC).
// The api layer stops first on shutdown since it was added last.
type Tree struct {
	root *suture.Supervisor
	core *suture.Supervisor
	api  *suture.Supervisor
}

func NewTree(logger zerolog.Logger, cfg TreeConfig) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	spec := suture.Spec{
		EventHook:        EventHook(logger),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	childSpec := spec
	childSpec.EventHook = nil

	root := suture.New("autodoor", spec)
	core := suture.New("core", childSpec)
	api := suture.New("api", childSpec)
	root.Add(core)
	root.Add(api)

	return &Tree{root: root, core: core, api: api}
}

func (t *Tree) AddCore(name string, svc Service) suture.ServiceToken {
	return t.core.Add(Named(name, svc))
}

func (t *Tree) AddAPI(name string, svc Service) suture.ServiceToken {
	return t.api.Add(Named(name, svc))
}

func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that ignored the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// Service is anything with a blocking Serve(ctx) error.
type Service interface {
	Serve(ctx context.Context) error
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context) error

func (f ServiceFunc) Serve(ctx context.Context) error { return f(ctx) }

type named struct {
	name string
	svc  Service
}

func (n named) Serve(ctx context.Context) error { return n.svc.Serve(ctx) }

func (n named) String() string { return n.name }

// Named gives svc the name suture uses in its events.
func Named(name string, svc Service) suture.Service {
	return named{name: name, svc: svc}
}

// EventHook logs supervisor events through zerolog.
func EventHook(logger zerolog.Logger) suture.EventHook {
	log := logger.With().Str("component", "supervisor").Logger()
	return func(e suture.Event) {
		ev := log.Warn()
		switch e.(type) {
		case suture.EventServicePanic:
			ev = log.Error()
		case suture.EventResume:
			ev = log.Info()
		}
		ev.Fields(e.Map()).Msg(e.String())
	}
}
