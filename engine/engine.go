// Package engine hosts the long running parts of a beautyland process, the
// ingest worker and the preload refresher, next to the bus they talk over.
package engine

import (
	"context"
	"sync"

	Logger "github.com/Luismorlan/beautyland/utils/log"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Engine struct {
	// Modules run concurrently, each restarted on failure until ctx is done.
	Modules []Module

	ctx    context.Context
	cancel context.CancelFunc

	// EventBus carries daemon commands from the service to the worker. The
	// engine closes it on shutdown.
	EventBus *gochannel.GoChannel
}

// NewEngine binds modules to ctx. cancel must cancel ctx; Shutdown calls it.
func NewEngine(ms []Module, ctx context.Context, cancel context.CancelFunc, e *gochannel.GoChannel) *Engine {
	return &Engine{
		Modules:  ms,
		ctx:      ctx,
		cancel:   cancel,
		EventBus: e,
	}
}

// Run blocks until Shutdown. A module returning early does not stop the
// others nor the engine.
func (e *Engine) Run() {
	var wg sync.WaitGroup
	for _, m := range e.Modules {
		wg.Add(1)
		go func(m Module) {
			defer wg.Done()
			Logger.Log.Infof("module %s started", m.Name())
			RunModuleWithGracefulRestart(e.ctx, m)
			Logger.Log.Infof("module %s stopped", m.Name())
		}(m)
	}
	wg.Wait()
	<-e.ctx.Done()
}

// Shutdown cancels every module, lets each release what it holds and closes
// the bus.
func (e *Engine) Shutdown() {
	Logger.Log.Info("engine shutting down")
	e.cancel()

	var wg sync.WaitGroup
	for _, m := range e.Modules {
		wg.Add(1)
		go func(m Module) {
			defer wg.Done()
			m.Shutdown()
			Logger.Log.Infof("module %s shut down", m.Name())
		}(m)
	}
	wg.Wait()

	if e.EventBus != nil {
		if err := e.EventBus.Close(); err != nil {
			Logger.Log.WithError(err).Warn("fail to close event bus")
		}
	}
}
