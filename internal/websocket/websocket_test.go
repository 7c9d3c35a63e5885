package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r2lab/sidecar/internal/broker"
	"github.com/r2lab/sidecar/internal/category"
	"github.com/r2lab/sidecar/pkg/sidecar"
)

func startSidecar(t *testing.T) string {
	t.Helper()

	b := broker.New(category.NewRegistry([]string{t.TempDir()}))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx, 0)

	server := httptest.NewServer(http.HandlerFunc(NewServer(b).ServeWS))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// readEnvelope bounds a broadcast read so a broken server fails the
// test instead of hanging it
func readEnvelope(t *testing.T, conn *sidecar.Conn) *sidecar.Envelope {
	t.Helper()
	type result struct {
		env *sidecar.Envelope
		err error
	}
	done := make(chan result, 1)
	go func() {
		env, err := conn.Read()
		done <- result{env, err}
	}()
	select {
	case r := <-done:
		require.NoError(t, r.err)
		return r.env
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a broadcast")
		return nil
	}
}

// settle requests a category and waits for the echo, which proves the
// connection is registered and the queue ahead of us is drained
func settle(t *testing.T, conn *sidecar.Conn, cat string) {
	t.Helper()
	require.NoError(t, conn.Request(cat))
	for {
		env := readEnvelope(t, conn)
		if env.Action == "request" && env.Category == cat {
			return
		}
	}
}

// TestRoundTrip pushes an info batch through a real websocket server
// and checks the delta broadcast reaches another live connection
func TestRoundTrip(t *testing.T) {
	url := startSidecar(t)

	producer, err := sidecar.Dial(url)
	require.NoError(t, err)
	defer producer.Close()
	watcher, err := sidecar.Dial(url)
	require.NoError(t, err)
	defer watcher.Close()
	settle(t, watcher, "nodes")

	require.NoError(t, producer.Info("nodes",
		[]map[string]any{{"id": 5, "available": "ok"}}))

	env := readEnvelope(t, watcher)
	assert.Equal(t, "info", env.Action)
	assert.Equal(t, "nodes", env.Category)
	assert.True(t, env.Incremental)
	records, err := env.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, float64(5), records[0]["id"])
	assert.Equal(t, "ok", records[0]["available"])
}

// TestRequestAnswersEveryConnection checks that a request from one
// client produces a snapshot on another
func TestRequestAnswersEveryConnection(t *testing.T) {
	url := startSidecar(t)

	producer, err := sidecar.Dial(url)
	require.NoError(t, err)
	defer producer.Close()
	settle(t, producer, "nodes")
	require.NoError(t, producer.Info("nodes",
		[]map[string]any{{"id": 1, "available": "ok"}, {"id": 2, "available": "ko"}}))
	// our own copy of the delta broadcast
	readEnvelope(t, producer)

	watcher, err := sidecar.Dial(url)
	require.NoError(t, err)
	defer watcher.Close()
	settle(t, watcher, "phones")

	require.NoError(t, watcher.Request("nodes"))
	env := readEnvelope(t, watcher)
	assert.Equal(t, "info", env.Action)
	assert.False(t, env.Incremental, "a request answer is a full snapshot")
	records, err := env.Records()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

// TestDisconnectMidStream checks that a vanished connection does not
// stop delivery to the survivors
func TestDisconnectMidStream(t *testing.T) {
	url := startSidecar(t)

	doomed, err := sidecar.Dial(url)
	require.NoError(t, err)
	watcher, err := sidecar.Dial(url)
	require.NoError(t, err)
	defer watcher.Close()
	settle(t, watcher, "nodes")

	require.NoError(t, doomed.Close())

	producer, err := sidecar.Dial(url)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, producer.Info("nodes",
		[]map[string]any{{"id": 9, "available": "ok"}}))

	env := readEnvelope(t, watcher)
	assert.Equal(t, "info", env.Action)
	records, err := env.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, float64(9), records[0]["id"])
}
