package transport

import (
	"time"

	"oss.mash.dev/mash/clients"
	"oss.mash.dev/mash/l3"
	"oss.mash.dev/mash/masherr"
	"oss.mash.dev/mash/messaging"
)

var logger = l3.Get()

// DefaultPublishRetry matches spec §4.1: a publish failure is retried
// exactly once before the job is considered undeliverable.
var DefaultPublishRetry = &clients.RetryInfo{MaxRetries: 1, Wait: 200}

// PublishWithRetry calls Publish, retrying up to retry.MaxRetries times
// (waiting retry.Wait milliseconds between attempts) before giving up and
// returning a masherr.TransportError wrapping the final failure.
func PublishWithRetry(manager messaging.Manager, scheme string, queue Queue, routingKey RoutingKey, payload interface{}, retry *clients.RetryInfo, options ...messaging.Option) error {
	if retry == nil {
		retry = DefaultPublishRetry
	}
	var lastErr error
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.WarnF("transport: retrying publish to %s (%s) attempt %d: %v", queue, routingKey, attempt, lastErr)
			time.Sleep(time.Duration(retry.Wait) * time.Millisecond)
		}
		if err := Publish(manager, scheme, queue, routingKey, payload, options...); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return masherr.TransportError(string(queue), lastErr.Error())
}
