package message

// Routing convention: for a transport named T, inbound user messages are
// published to T.inbound, events to T.event, failures to T.failures, and
// outbound user messages are consumed from T.outbound. This is the fixed
// integration contract every transport and every consumer of transport
// output must honor.

const (
	// HeartbeatTopic is the well-known topic heartbeat messages are
	// published to.
	HeartbeatTopic = "heartbeat.inbound"

	// HealthExchange is the durable exchange carrying heartbeat traffic.
	HealthExchange = "vumi.health"
)

// RoutingKeys holds the four topics a transport is wired to.
type RoutingKeys struct {
	Inbound  string
	Event    string
	Failures string
	Outbound string
}

// KeysFor computes the routing keys for a transport name.
func KeysFor(transportName string) RoutingKeys {
	return RoutingKeys{
		Inbound:  transportName + ".inbound",
		Event:    transportName + ".event",
		Failures: transportName + ".failures",
		Outbound: transportName + ".outbound",
	}
}
