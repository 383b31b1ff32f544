package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveLoader(t *testing.T) {
	before := testutil.ToFloat64(LoaderRuns.WithLabelValues("metrics_test", "ok"))
	ObserveLoader("metrics_test", "ok", 1500*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(LoaderRuns.WithLabelValues("metrics_test", "ok")))
}

func TestPushSkippedWithoutGateway(t *testing.T) {
	assert.NoError(t, Push(context.Background(), "", "shopsync"))
}

func TestPushSendsRegistry(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/metrics/job/shopsync"))
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	PagesFetched.WithLabelValues("metrics_push_test").Inc()
	require.NoError(t, Push(context.Background(), srv.URL, "shopsync"))
	assert.NotEmpty(t, body)
}

func TestTimer(t *testing.T) {
	timer := NewTimer("op")
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), 5*time.Millisecond)
	assert.Equal(t, "op", timer.Name())
}
