package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_Validate(t *testing.T) {
	tests := []struct {
		name    string
		env     *Envelope
		wantErr string
	}{
		{"valid", NewEnvelope("e1", "order-1", "OrderCreated", 1, []byte(`{}`)), ""},
		{"missing id", NewEnvelope("", "order-1", "OrderCreated", 1, []byte(`{}`)), "event_id is required"},
		{"missing type", NewEnvelope("e1", "order-1", "", 1, []byte(`{}`)), "event_type is required"},
		{"zero version", NewEnvelope("e1", "order-1", "OrderCreated", 0, []byte(`{}`)), "event_version must be positive"},
		{"empty payload", NewEnvelope("e1", "order-1", "OrderCreated", 1, nil), "payload is required"},
		{"bad aggregate id", NewEnvelope("e1", "order 1", "OrderCreated", 1, []byte(`{}`)), "invalid aggregate_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewEnvelopeWithAutoID(t *testing.T) {
	a := NewEnvelopeWithAutoID("order-1", "OrderCreated", 1, []byte(`{}`))
	b := NewEnvelopeWithAutoID("order-1", "OrderCreated", 1, []byte(`{}`))
	assert.NotEmpty(t, a.EventID)
	assert.NotEqual(t, a.EventID, b.EventID)
	assert.NoError(t, a.Validate())
}

func TestEnvelope_HeadersRoundTrip(t *testing.T) {
	env := NewEnvelope("e1", "order-1", "OrderCreated", 3, []byte(`{"id":"e1"}`))
	env.CorrelationID = "corr-1"
	env.CausationID = "cause-1"

	headers := env.Headers()
	assert.Equal(t, "3", headers[HeaderEventVersion])
	assert.Equal(t, "corr-1", headers[HeaderCorrelationID])

	got, err := EnvelopeFromMessage(headers, "", env.Payload)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)
	assert.Equal(t, env.AggregateID, got.AggregateID)
	assert.Equal(t, env.EventType, got.EventType)
	assert.Equal(t, env.EventVersion, got.EventVersion)
	assert.Equal(t, env.CorrelationID, got.CorrelationID)
	assert.Equal(t, env.CausationID, got.CausationID)
}

// TestEnvelopeFromMessage_PayloadFallback 没有消息头时从扁平文档读取元数据
func TestEnvelopeFromMessage_PayloadFallback(t *testing.T) {
	payload := []byte(`{"id":"e9","eventType":"StockReserved","aggregateId":"inv-1","aggregateVersion":7,"correlationId":"c9"}`)

	env, err := EnvelopeFromMessage(nil, "", payload)
	require.NoError(t, err)
	assert.Equal(t, "e9", env.EventID)
	assert.Equal(t, "StockReserved", env.EventType)
	assert.Equal(t, "inv-1", env.AggregateID)
	assert.Equal(t, int64(7), env.EventVersion)
	assert.Equal(t, "c9", env.CorrelationID)
	assert.Empty(t, env.CausationID)
}

func TestEnvelopeFromMessage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		payload []byte
	}{
		{"empty", nil, nil},
		{"bad version header", map[string]string{HeaderEventVersion: "x"}, []byte(`{}`)},
		{"missing fields", nil, []byte(`{"foo":1}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EnvelopeFromMessage(tt.headers, "", tt.payload)
			assert.Error(t, err)
		})
	}
}
