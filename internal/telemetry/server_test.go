package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthzReportsDependencyState(t *testing.T) {
	healthy := httptest.NewServer(NewHandler(func(context.Context) error { return nil }))
	defer healthy.Close()

	resp, err := http.Get(healthy.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	broken := httptest.NewServer(NewHandler(func(context.Context) error { return errors.New("db down") }))
	defer broken.Close()

	resp, err = http.Get(broken.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpointExposesCollectors(t *testing.T) {
	MessagesTotal.WithLabelValues("processed").Inc()

	srv := httptest.NewServer(NewHandler(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `adswatcher_messages_total{outcome="processed"}`)
}
