package internal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateReturnsOneHandlePerScope(t *testing.T) {
	starter := newFakeStarter(4242).gated()
	registry := NewRegistry(starter)

	var builds atomic.Int32
	build := func() (Options, error) {
		builds.Add(1)
		return Options{}, nil
	}

	var wg sync.WaitGroup
	handles := make([]*ProxyService, 30)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = registry.GetOrCreate(ProjectScope, build)
		}(i)
	}
	wg.Wait()
	starter.release()

	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
	assert.EqualValues(t, 1, builds.Load())

	_, err := handles[0].Port(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, starter.starts.Load())
}

func TestScopesAreIndependent(t *testing.T) {
	registry := NewRegistry(newFakeStarter(4242))

	project := registry.GetOrCreate(ProjectScope, noOptions)
	global := registry.GetOrCreate(GlobalScope, noOptions)
	assert.NotSame(t, project, global)
	assert.Equal(t, ProjectScope, project.Scope())
	assert.Equal(t, GlobalScope, global.Scope())

	found, ok := registry.Lookup(GlobalScope)
	require.True(t, ok)
	assert.Same(t, global, found)

	_, ok = registry.Lookup("unknown")
	assert.False(t, ok)
}

func TestRegistryCloseStopsEveryService(t *testing.T) {
	okStarter := newFakeStarter(4242)
	failing := newFakeStarter(0)
	failing.err = errors.New("boom")

	registry := NewRegistry(ServerStarterFunc(func(ctx context.Context, opts Options) (Server, error) {
		if opts.Region == "fail" {
			return failing.Start(ctx, opts)
		}
		return okStarter.Start(ctx, opts)
	}))
	registry.GetOrCreate(ProjectScope, noOptions)
	registry.GetOrCreate(GlobalScope, func() (Options, error) { return Options{Region: "fail"}, nil })

	require.NoError(t, registry.Close(context.Background()), "start failures are not reported on close")
	assert.EqualValues(t, 1, okStarter.server.stops.Load())
}

func TestRegistryCloseJoinsShutdownErrors(t *testing.T) {
	starter := newFakeStarter(4242)
	starter.server.stopErr = errors.New("listener busy")
	registry := NewRegistry(starter)
	registry.GetOrCreate(ProjectScope, noOptions)
	registry.GetOrCreate(GlobalScope, noOptions)

	err := registry.Close(context.Background())
	require.Error(t, err)
	var shutdownErr *ShutdownError
	assert.True(t, errors.As(err, &shutdownErr))
	assert.Contains(t, err.Error(), GlobalScope)
	assert.Contains(t, err.Error(), ProjectScope)
}
