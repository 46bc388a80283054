package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/miladsoleymani/gatemux/message"
)

func TestKeysFor(t *testing.T) {
	keys := message.KeysFor("sphex")
	assert.Equal(t, "sphex.inbound", keys.Inbound)
	assert.Equal(t, "sphex.event", keys.Event)
	assert.Equal(t, "sphex.failures", keys.Failures)
	assert.Equal(t, "sphex.outbound", keys.Outbound)
}

func TestHeartbeatConstants(t *testing.T) {
	assert.Equal(t, "heartbeat.inbound", message.HeartbeatTopic)
	assert.Equal(t, "vumi.health", message.HealthExchange)
}
