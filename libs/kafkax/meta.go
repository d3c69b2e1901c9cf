package kafkax

import (
	"strconv"
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
)

// EventMeta identifies one domain event on the wire. Producers set it as headers; consumers read it back
// for de-duplication and logging.
type EventMeta struct {
	EventID       string
	EventType     string
	AggregateType string
	AggregateID   string
}

// Headers renders m as message headers. The aggregate id travels as the message key instead.
func (m EventMeta) Headers() []kafka.Header {
	headers := make([]kafka.Header, 0, 3)
	for _, h := range [...]struct{ k, v string }{
		{HeaderEventID, m.EventID},
		{HeaderEventType, m.EventType},
		{HeaderAggregateType, m.AggregateType},
	} {
		if h.v != "" {
			headers = append(headers, kafka.Header{Key: h.k, Value: []byte(h.v)})
		}
	}
	return headers
}

// ExtractEventMeta reads the event headers. Messages from producers that set no event_id are identified
// by their log position, since keys repeat (a user id keys every change of that user's calendar).
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:       HeaderValue(msg.Headers, HeaderEventID),
		EventType:     HeaderValue(msg.Headers, HeaderEventType),
		AggregateType: HeaderValue(msg.Headers, HeaderAggregateType),
		AggregateID:   string(msg.Key),
	}
	if meta.EventID == "" {
		meta.EventID = msg.Topic + "/" + strconv.Itoa(msg.Partition) + "/" + strconv.FormatInt(msg.Offset, 10)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
