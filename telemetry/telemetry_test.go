package telemetry

import (
	"os"
	"testing"
	"time"

	"github.com/amp-labs/statechart/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointsKubernetesDefault(t *testing.T) {
	tests := []struct {
		name           string
		kubernetesHost string
		cfg            config.Telemetry
		wantTraces     string
		wantLogs       string
	}{
		{
			name:           "kubernetes detected",
			kubernetesHost: "10.0.0.1",
			wantTraces:     collectorEndpoint + "/v1/traces",
			wantLogs:       collectorEndpoint + "/v1/logs",
		},
		{
			name: "outside kubernetes",
		},
		{
			name:           "explicit endpoint wins",
			kubernetesHost: "10.0.0.1",
			cfg:            config.Telemetry{TracesEndpoint: "http://custom:4318/v1/traces"},
			wantTraces:     "http://custom:4318/v1/traces",
			wantLogs:       collectorEndpoint + "/v1/logs",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv("KUBERNETES_SERVICE_HOST", test.kubernetesHost)

			if test.kubernetesHost == "" {
				require.NoError(t, os.Unsetenv("KUBERNETES_SERVICE_HOST"))
			}

			traces, logs := Endpoints(test.cfg)
			assert.Equal(t, test.wantTraces, traces)
			assert.Equal(t, test.wantLogs, logs)
		})
	}
}

func TestInitializeDisabled(t *testing.T) {
	handler, err := Initialize(t.Context(), config.Telemetry{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, handler)
	assert.False(t, Enabled())
	require.NoError(t, Shutdown(t.Context()))
}

func TestInitializeAndShutdown(t *testing.T) {
	t.Setenv("KUBERNETES_SERVICE_HOST", "")
	require.NoError(t, os.Unsetenv("KUBERNETES_SERVICE_HOST"))

	// Exporters connect lazily, so nothing needs to listen on the endpoints.
	handler, err := Initialize(t.Context(), config.Telemetry{
		Enabled:        true,
		ServiceName:    "scexec-test",
		ServiceVersion: "0.0.1",
		Environment:    "test",
		TracesEndpoint: "http://127.0.0.1:4318/v1/traces",
		LogsEndpoint:   "http://127.0.0.1:4318/v1/logs",
		Timeout:        100 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NotNil(t, handler)
	assert.True(t, Enabled())

	// Nothing was recorded, so shutdown has nothing to flush.
	_ = Shutdown(t.Context())
	assert.False(t, Enabled())
}
