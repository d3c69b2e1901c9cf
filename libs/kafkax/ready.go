package kafkax

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReadyCheck passes when any broker accepts a connection. It returns nil when no brokers are configured,
// which readiness probes skip: messaging is optional for the service.
func ReadyCheck(brokers string) func(context.Context) error {
	list := SplitBrokers(brokers)
	if len(list) == 0 {
		return nil
	}
	dialer := kafka.Dialer{Timeout: 2 * time.Second}
	return func(ctx context.Context) error {
		var errs []error
		for _, addr := range list {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err == nil {
				_ = conn.Close()
				return nil
			}
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}
}
