package browser_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/adspower/pkg/browser"
	"github.com/entrhq/adspower/pkg/browser/browsertest"
	"github.com/entrhq/adspower/pkg/daemon"
	"github.com/entrhq/adspower/pkg/daemon/daemontest"
	"github.com/entrhq/adspower/pkg/metrics"
	"github.com/entrhq/adspower/pkg/profile"
)

type fixture struct {
	srv     *daemontest.Server
	factory *browsertest.Factory
	ctrl    *browser.Controller
	metrics *metrics.Metrics
	id      profile.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := daemontest.NewServer(t, "key")
	client := daemon.NewClient(srv.URL, "key")
	factory := browsertest.NewFactory("")
	m := metrics.New(nil)

	id, err := profile.NewRegistry(client, nil).Create(context.Background(), profile.DefaultConfig(""))
	require.NoError(t, err)

	return &fixture{
		srv:     srv,
		factory: factory,
		ctrl:    browser.NewController(client, factory, browser.WithMetrics(m)),
		metrics: m,
		id:      id,
	}
}

func TestController_StartCheckStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.False(t, f.ctrl.Check(ctx, f.id))

	ep, err := f.ctrl.Start(ctx, f.id, true)
	require.NoError(t, err)
	assert.Equal(t, f.id, ep.ProfileID)
	assert.NotEmpty(t, ep.DebuggerAddress)
	assert.NotEmpty(t, ep.WebSocketURL)
	assert.NotEmpty(t, ep.DebugPort)

	p, _ := f.srv.Profile(string(f.id))
	assert.True(t, p.Headless)
	assert.True(t, f.ctrl.Check(ctx, f.id))

	require.NoError(t, f.ctrl.Stop(ctx, f.id))
	assert.False(t, f.ctrl.Check(ctx, f.id))
}

func TestController_StartRefused(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Start(context.Background(), "missing", false)
	var ctrlErr *browser.ControllerError
	require.True(t, errors.As(err, &ctrlErr))
	assert.Equal(t, "start", ctrlErr.Op)
	assert.Equal(t, profile.ID("missing"), ctrlErr.ID)
	require.NotNil(t, ctrlErr.Envelope)
}

func TestController_CheckFailuresMeanInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ctrl.Start(ctx, f.id, true)
	require.NoError(t, err)

	f.srv.Fail(daemon.PathBrowserActive, 1)
	assert.False(t, f.ctrl.Check(ctx, f.id))

	f.srv.SetDown(true)
	assert.False(t, f.ctrl.Check(ctx, f.id))

	f.srv.SetDown(false)
	assert.True(t, f.ctrl.Check(ctx, f.id))
}

func TestSessionCache_AcquireReusesLiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := f.ctrl.Sessions()

	s1, err := cache.Acquire(ctx, f.id, true)
	require.NoError(t, err)
	s2, err := cache.Acquire(ctx, f.id, true)
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, f.factory.Attaches())
	assert.Equal(t, 1, f.srv.Calls(daemon.PathBrowserStart))
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Sessions.WithLabelValues(metrics.SessionAttached)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Sessions.WithLabelValues(metrics.SessionReused)))
}

func TestSessionCache_AcquireReplacesStaleSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := f.ctrl.Sessions()

	s1, err := cache.Acquire(ctx, f.id, true)
	require.NoError(t, err)

	// Browser died behind our back.
	f.srv.SetActive(string(f.id), false)

	s2, err := cache.Acquire(ctx, f.id, true)
	require.NoError(t, err)

	assert.NotSame(t, s1, s2)
	assert.True(t, s1.Closed())
	assert.False(t, s2.Closed())
	assert.Same(t, s2, cache.Get(f.id))
	assert.Equal(t, 2, f.factory.Attaches())
	assert.Equal(t, 1, f.factory.Open())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Sessions.WithLabelValues(metrics.SessionStale)))
}

func TestSessionCache_ConcurrentAcquireSingleDriver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := f.ctrl.Sessions()

	const n = 16
	sessions := make([]*browser.Session, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = cache.Acquire(ctx, f.id, true)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, sessions[0], sessions[i])
	}
	assert.Equal(t, 1, f.factory.Attaches())
	assert.Equal(t, 1, cache.Len())
}

func TestSessionCache_AttachFailure(t *testing.T) {
	f := newFixture(t)
	f.factory.FailAttach(errors.New("cdp handshake failed"))

	_, err := f.ctrl.Sessions().Acquire(context.Background(), f.id, true)
	var ctrlErr *browser.ControllerError
	require.True(t, errors.As(err, &ctrlErr))
	assert.Equal(t, "attach", ctrlErr.Op)
	assert.Equal(t, 0, f.ctrl.Sessions().Len())
}

func TestSessionCache_ReleaseKeepsBrowserRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := f.ctrl.Sessions()

	s, err := cache.Acquire(ctx, f.id, true)
	require.NoError(t, err)

	require.NoError(t, cache.Release(f.id))
	assert.True(t, s.Closed())
	assert.Nil(t, cache.Get(f.id))
	assert.True(t, f.ctrl.Check(ctx, f.id))

	// Absent id is a no-op.
	require.NoError(t, cache.Release(f.id))
	require.NoError(t, cache.Release("unknown"))
}

func TestController_StopClosesCachedDriver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.ctrl.Sessions().Acquire(ctx, f.id, true)
	require.NoError(t, err)

	require.NoError(t, f.ctrl.Stop(ctx, f.id))
	assert.True(t, s.Closed())
	assert.Equal(t, 0, f.ctrl.Sessions().Len())
	assert.Equal(t, 0, f.srv.RunningCount())
	assert.Equal(t, 1, f.factory.Drivers()[0].Closes())
}

func TestController_StopWhenActiveCheckFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.ctrl.Sessions().Acquire(ctx, f.id, true)
	require.NoError(t, err)
	checks := f.srv.Calls(daemon.PathBrowserActive)

	// A refused check skips the disconnect; the remote stop still goes out.
	f.srv.Fail(daemon.PathBrowserActive, 1)
	require.NoError(t, f.ctrl.Stop(ctx, f.id))

	assert.Equal(t, checks+1, f.srv.Calls(daemon.PathBrowserActive))
	assert.Equal(t, 1, f.srv.Calls(daemon.PathBrowserStop))
	assert.Equal(t, 0, f.srv.RunningCount())
	assert.Nil(t, f.ctrl.Sessions().Get(f.id))
	assert.True(t, s.Closed())
	assert.Equal(t, 1, f.factory.Drivers()[0].Closes())
}

func TestController_StopDuringOutageKeepsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.ctrl.Sessions().Acquire(ctx, f.id, true)
	require.NoError(t, err)

	f.srv.SetDown(true)
	err = f.ctrl.Stop(ctx, f.id)
	assert.True(t, daemon.IsConnectivityError(err))

	// Neither the check nor the stop went through, so nothing was closed.
	assert.Same(t, s, f.ctrl.Sessions().Get(f.id))
	assert.False(t, s.Closed())
	assert.Equal(t, 1, f.srv.Calls(daemon.PathBrowserStop))
}

func TestController_StopFailureLeavesStaleEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := f.ctrl.Sessions()

	s, err := cache.Acquire(ctx, f.id, true)
	require.NoError(t, err)

	f.srv.Fail(daemon.PathBrowserStop, 1)
	err = f.ctrl.Stop(ctx, f.id)
	var ctrlErr *browser.ControllerError
	require.True(t, errors.As(err, &ctrlErr))
	assert.Equal(t, "stop", ctrlErr.Op)

	// Driver already closed but still cached; the next acquire replaces it.
	assert.Same(t, s, cache.Get(f.id))
	assert.True(t, s.Closed())

	s2, err := cache.Acquire(ctx, f.id, true)
	require.NoError(t, err)
	assert.NotSame(t, s, s2)
}

func TestSessionCache_Close(t *testing.T) {
	srv := daemontest.NewServer(t, "key")
	client := daemon.NewClient(srv.URL, "key")
	factory := browsertest.NewFactory("")
	ctrl := browser.NewController(client, factory)
	reg := profile.NewRegistry(client, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := reg.Create(ctx, profile.DefaultConfig(""))
		require.NoError(t, err)
		_, err = ctrl.Sessions().Acquire(ctx, id, true)
		require.NoError(t, err)
	}
	require.Equal(t, 3, ctrl.Sessions().Len())

	require.NoError(t, ctrl.Sessions().Close())
	assert.Equal(t, 0, ctrl.Sessions().Len())
	assert.Equal(t, 0, factory.Open())
}
