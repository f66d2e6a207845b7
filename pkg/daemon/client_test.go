package daemon_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/adspower/pkg/config"
	"github.com/entrhq/adspower/pkg/daemon"
	"github.com/entrhq/adspower/pkg/daemon/daemontest"
	"github.com/entrhq/adspower/pkg/metrics"
)

const testKey = "test-key"

func TestClient_PostAndGet(t *testing.T) {
	srv := daemontest.NewServer(t, testKey)
	c := daemon.NewClient(srv.URL, testKey)
	ctx := context.Background()

	env, err := c.Post(ctx, daemon.PathUserCreate, map[string]interface{}{"group_id": "0"})
	require.NoError(t, err)
	require.True(t, env.OK())
	id := env.Get("data.id").String()
	assert.NotEmpty(t, id)

	env, err = c.Get(ctx, daemon.PathBrowserStart, url.Values{"user_id": {id}, "headless": {"1"}})
	require.NoError(t, err)
	assert.True(t, env.OK())
	assert.NotEmpty(t, env.Get("data.ws.selenium").String())

	p, ok := srv.Profile(id)
	require.True(t, ok)
	assert.True(t, p.Active)
	assert.True(t, p.Headless)
}

func TestClient_NonSuccessEnvelopeIsNotAnError(t *testing.T) {
	srv := daemontest.NewServer(t, testKey)
	srv.Fail(daemon.PathUserCreate, 1)

	m := metrics.New(nil)
	c := daemon.NewClient(srv.URL, testKey, daemon.WithMetrics(m))

	env, err := c.Post(context.Background(), daemon.PathUserCreate, map[string]string{})
	require.NoError(t, err)
	assert.False(t, env.OK())
	assert.Equal(t, daemontest.ThrottledMsg, env.Msg)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DaemonRequests.WithLabelValues("user/create", metrics.ResultFailure)))
}

func TestClient_WrongKey(t *testing.T) {
	srv := daemontest.NewServer(t, testKey)
	c := daemon.NewClient(srv.URL, "other")

	env, err := c.Post(context.Background(), daemon.PathUserCreate, map[string]string{})
	require.NoError(t, err)
	assert.False(t, env.OK())
}

func TestClient_Outage(t *testing.T) {
	srv := daemontest.NewServer(t, testKey)
	srv.SetDown(true)

	m := metrics.New(nil)
	c := daemon.NewClient(srv.URL, testKey, daemon.WithMetrics(m))

	_, err := c.Get(context.Background(), daemon.PathBrowserActive, url.Values{"user_id": {"x"}})
	require.Error(t, err)

	var connErr *daemon.ConnectivityError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, http.StatusServiceUnavailable, connErr.StatusCode)
	assert.Equal(t, "browser/active", connErr.Op)
	assert.True(t, daemon.IsConnectivityError(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DaemonRequests.WithLabelValues("browser/active", metrics.ResultError)))
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := daemon.NewClient(addr, testKey)
	err := c.Probe(context.Background())
	require.Error(t, err)
	assert.True(t, daemon.IsConnectivityError(err))
	assert.False(t, c.Online(context.Background()))
}

func TestClient_NotJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>login</html>"))
	}))
	defer srv.Close()

	c := daemon.NewClient(srv.URL, testKey)
	_, err := c.Get(context.Background(), daemon.PathStatus, nil)
	assert.True(t, daemon.IsConnectivityError(err))
}

func TestClient_ProbeNonSuccess(t *testing.T) {
	srv := daemontest.NewServer(t, testKey)
	srv.Fail(daemon.PathStatus, 1)

	c := daemon.NewClient(srv.URL, testKey)
	assert.True(t, daemon.IsConnectivityError(c.Probe(context.Background())))
	assert.True(t, c.Online(context.Background()))
}

func TestClient_PacedCalls(t *testing.T) {
	srv := daemontest.NewServer(t, testKey)
	clock := clockwork.NewFakeClock()
	c := daemon.NewClient(srv.URL, testKey, daemon.WithPacer(daemon.NewPacer(time.Second, clock)))
	ctx := context.Background()

	_, err := c.Get(ctx, daemon.PathStatus, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, daemon.PathStatus, nil)
		done <- err
	}()

	clock.BlockUntil(1)
	assert.Equal(t, 1, srv.Calls(daemon.PathStatus))

	clock.Advance(time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("paced call never ran")
	}
	assert.Equal(t, 2, srv.Calls(daemon.PathStatus))

	// Probes bypass the pacer.
	require.NoError(t, c.Probe(ctx))
	assert.Equal(t, 3, srv.Calls(daemon.PathStatus))
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.APIKey = "abc"
	cfg.Port = "50999"

	c := daemon.FromConfig(cfg)
	assert.Equal(t, "http://127.0.0.1:50999", c.BaseURL())
	assert.Equal(t, "abc", c.APIKey())
}
