package relay

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aegis-Wallet/aegis/pkg/contracts"
)

type captureConn struct {
	delivered []contracts.ResponseEnvelope
	err       error
}

func (c *captureConn) Deliver(resp contracts.ResponseEnvelope) error {
	c.delivered = append(c.delivered, resp)
	return c.err
}

func TestReplyRoutesToExactContext(t *testing.T) {
	hub := NewHub(nil)
	tab1 := &captureConn{}
	tab2 := &captureConn{}
	hub.Register("tab-1", tab1)
	hub.Register("tab-2", tab2)

	hub.Reply("tab-1", contracts.ResponseEnvelope{RequestID: "req-1"})

	require.Len(t, tab1.delivered, 1)
	assert.Equal(t, "req-1", tab1.delivered[0].RequestID)
	assert.Empty(t, tab2.delivered)
}

func TestReplyToVanishedContextIsSwallowed(t *testing.T) {
	hub := NewHub(nil)
	conn := &captureConn{}
	hub.Register("tab-1", conn)
	hub.Unregister("tab-1")

	// Must not panic and must not deliver anywhere.
	hub.Reply("tab-1", contracts.ResponseEnvelope{RequestID: "req-1"})
	assert.Empty(t, conn.delivered)
}

func TestReplySwallowsDeliveryFailure(t *testing.T) {
	hub := NewHub(nil)
	conn := &captureConn{err: errors.New("pipe closed")}
	hub.Register("tab-1", conn)

	hub.Reply("tab-1", contracts.ResponseEnvelope{RequestID: "req-1"})
	require.Len(t, conn.delivered, 1)
}

func TestRegisterReplacesBinding(t *testing.T) {
	hub := NewHub(nil)
	old := &captureConn{}
	fresh := &captureConn{}
	hub.Register("tab-1", old)
	hub.Register("tab-1", fresh)

	hub.Reply("tab-1", contracts.ResponseEnvelope{RequestID: "req-1"})
	assert.Empty(t, old.delivered)
	assert.Len(t, fresh.delivered, 1)
}

func TestIsLive(t *testing.T) {
	hub := NewHub(nil)
	assert.False(t, hub.IsLive("tab-1"))

	hub.Register("tab-1", &captureConn{})
	assert.True(t, hub.IsLive("tab-1"))

	hub.Unregister("tab-1")
	assert.False(t, hub.IsLive("tab-1"))
}

func TestLimiterIsPerHost(t *testing.T) {
	l := NewLimiter(1, 2)

	assert.True(t, l.Allow("a.example"))
	assert.True(t, l.Allow("a.example"))
	assert.False(t, l.Allow("a.example"))

	// A different host has its own bucket.
	assert.True(t, l.Allow("b.example"))
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *Limiter
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("a.example"))
	}
}
