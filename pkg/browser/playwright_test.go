package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlaywrightFactory_AttachWithoutEndpoint(t *testing.T) {
	f := NewPlaywrightFactory()

	_, err := f.Attach(context.Background(), Endpoint{ProfileID: "p1"})
	assert.ErrorIs(t, err, ErrNoEndpoint)
	assert.Nil(t, f.pw, "driver must not start for an unusable endpoint")
	assert.NoError(t, f.Shutdown())
}

func TestPlaywrightFactory_AttachCancelled(t *testing.T) {
	f := NewPlaywrightFactory(WithWaitUntil("domcontentloaded"))
	assert.Equal(t, "domcontentloaded", f.waitUntil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Attach(ctx, Endpoint{DebuggerAddress: "127.0.0.1:9222"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, f.pw)
}

func TestTimeoutMillis(t *testing.T) {
	assert.Equal(t, float64(DefaultTimeout.Milliseconds()), timeoutMillis(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	got := timeoutMillis(ctx)
	assert.InDelta(t, float64(time.Minute.Milliseconds()), got, 1000)

	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	assert.Equal(t, float64(1), timeoutMillis(expired))
}
