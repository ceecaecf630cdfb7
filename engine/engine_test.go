package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	name     string
	runs     int32
	shutdown int32
	// fails is the number of runs returning an error before one succeeds,
	// negative to fail forever.
	fails int32
	// block keeps RunModule running until ctx is done.
	block bool
}

func (m *fakeModule) RunModule(ctx context.Context) error {
	n := atomic.AddInt32(&m.runs, 1)
	if m.fails < 0 || n <= m.fails {
		return errors.New("boom")
	}
	if m.block {
		<-ctx.Done()
	}
	return nil
}

func (m *fakeModule) Name() string { return m.name }

func (m *fakeModule) Shutdown() { atomic.AddInt32(&m.shutdown, 1) }

func TestRunModuleReturnsOnSuccess(t *testing.T) {
	m := &fakeModule{name: "ok"}
	RunModuleWithGracefulRestart(context.Background(), m)
	assert.Equal(t, int32(1), atomic.LoadInt32(&m.runs))
}

func TestRunModuleStopsRestartingWhenCancelled(t *testing.T) {
	m := &fakeModule{name: "broken", fails: -1}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	RunModuleWithGracefulRestart(ctx, m)
	assert.Less(t, int64(time.Since(start)), int64(GracefulRetryDelay))
	assert.Equal(t, int32(1), atomic.LoadInt32(&m.runs))
}

func TestEngineRunsUntilShutdown(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	blocking := &fakeModule{name: "blocking", block: true}
	oneShot := &fakeModule{name: "one-shot"}

	ctx, cancel := context.WithCancel(context.Background())
	e := NewEngine([]Module{blocking, oneShot}, ctx, cancel, bus)

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&blocking.runs) == 1 && atomic.LoadInt32(&oneShot.runs) == 1
	}, time.Second, 10*time.Millisecond)

	// a finished module does not end the engine
	select {
	case <-done:
		t.Fatal("engine stopped before shutdown")
	case <-time.After(50 * time.Millisecond):
	}

	e.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop after shutdown")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&blocking.shutdown))
	assert.Equal(t, int32(1), atomic.LoadInt32(&oneShot.shutdown))
}
