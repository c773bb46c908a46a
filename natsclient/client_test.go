package natsclient

import (
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TotoCodeFR/DaaD/metric"
)

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Equal(t, int32(0), c.Failures())
	assert.Equal(t, time.Second, c.Backoff())
}

func TestNewClient_Options(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithClientName("daad-test"),
		WithCircuitBreakerThreshold(2),
		WithMaxBackoff(5*time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, 3, c.maxReconnects)
	assert.Equal(t, time.Second, c.reconnectWait)
	assert.Equal(t, "daad-test", c.clientName)
	assert.Equal(t, int32(2), c.circuitThreshold)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(3),
	)
	require.NoError(t, err)

	c.recordFailure()
	c.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, c.Status())

	c.recordFailure()
	assert.Equal(t, StatusCircuitOpen, c.Status())
	assert.Equal(t, int32(3), c.Failures())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(1),
	)
	require.NoError(t, err)

	c.recordFailure()
	require.Equal(t, StatusCircuitOpen, c.Status())

	c.resetCircuit()
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Equal(t, int32(0), c.Failures())
	assert.Equal(t, time.Second, c.Backoff())
}

func TestMetrics_StatusAndCircuitBreaker(t *testing.T) {
	m := metric.NewMetrics()
	c, err := NewClient("nats://localhost:4222",
		WithMetrics(m),
		WithCircuitBreakerThreshold(1),
	)
	require.NoError(t, err)

	c.setStatus(StatusConnected)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.NATSConnected))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(m.NATSCircuitBreaker))

	c.recordFailure()
	require.Equal(t, StatusCircuitOpen, c.Status())
	assert.Equal(t, 0.0, promtestutil.ToFloat64(m.NATSConnected))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.NATSCircuitBreaker))

	c.resetCircuit()
	assert.Equal(t, 0.0, promtestutil.ToFloat64(m.NATSCircuitBreaker))
}

func TestMetrics_Reconnect(t *testing.T) {
	m := metric.NewMetrics()
	c, err := NewClient("nats://localhost:4222", WithMetrics(m))
	require.NoError(t, err)

	c.handleReconnect(nil)
	c.handleReconnect(nil)

	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.NATSReconnects))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.NATSConnected))
}

func TestJetStream_NotInitialized(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	_, err = c.JetStream()
	assert.Error(t, err)
}

func TestGetStatus(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	c.recordFailure()
	status := c.GetStatus()

	assert.Equal(t, int32(1), status.FailureCount)
	assert.False(t, status.LastFailureTime.IsZero())
}
