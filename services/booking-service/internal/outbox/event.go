package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType and the message key is AggregateID.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
