package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-saga/sdk/config"
)

func TestSimulatedGateway(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.GatewayConfig
		amount   int64
		approved bool
	}{
		{"no limits", config.GatewayConfig{}, 1_000_000, true},
		{"under limit", config.GatewayConfig{MaxAmount: 1000}, 1000, true},
		{"over limit", config.GatewayConfig{MaxAmount: 1000}, 1001, false},
		{"always declines", config.GatewayConfig{FailureRate: 1}, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewSimulatedGateway(tt.cfg).WithSeed(1)
			d, err := g.Authorize(context.Background(), Charge{OrderID: "o-1", Amount: tt.amount})
			require.NoError(t, err)
			assert.Equal(t, tt.approved, d.Approved)
			if !tt.approved {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestSimulatedGateway_FailureRate(t *testing.T) {
	g := NewSimulatedGateway(config.GatewayConfig{FailureRate: 0.5}).WithSeed(42)
	declined := 0
	for i := 0; i < 1000; i++ {
		d, err := g.Authorize(context.Background(), Charge{Amount: 1})
		require.NoError(t, err)
		if !d.Approved {
			declined++
		}
	}
	assert.InDelta(t, 500, declined, 100)
}

func TestSimulatedGateway_LatencyHonoursContext(t *testing.T) {
	g := NewSimulatedGateway(config.GatewayConfig{Latency: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Authorize(ctx, Charge{Amount: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
