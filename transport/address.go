// Package transport generalizes golly's messaging.Provider/Manager
// abstraction into the addressed exchange/queue/routing-key model the
// pipeline's stage services use to talk to one another (spec §4.1, C1).
//
// It does not replace messaging.Manager: it builds typed addressing on top
// of it (every stage queue is still just a URL a messaging.Provider knows
// how to reach) and adds a routing-key header convention so a single queue
// can carry more than one logical message type, the way the real transport
// fans job_document/add_account/delete_account/etc. through one channel
// per stage.
package transport

import (
	"net/url"

	"oss.mash.dev/mash/messaging"
)

// Exchange names the logical message bus a queue lives on (e.g. "mash").
// Only used for documentation/grouping here: every provider this package
// registers is addressed by queue name alone, matching messaging.Provider's
// host-keyed addressing.
type Exchange string

// Queue is the destination a message is sent to or received from.
type Queue string

// RoutingKey disambiguates the logical message type carried on a Queue, the
// way the real transport's routing keys pick an action out of a shared
// inbox (spec §4.1).
type RoutingKey string

// RoutingKeyHeader is the message header carrying a Queue's RoutingKey.
const RoutingKeyHeader = "x-mash-routing-key"

// URL builds the address a messaging.Provider resolves a Queue through.
// scheme selects the registered provider (messaging.LocalMsgScheme for
// tests, "nats" for the NATS-backed broker).
func URL(scheme string, queue Queue) *url.URL {
	return &url.URL{Scheme: scheme, Host: string(queue)}
}

// NewMessage creates a message on manager's provider for scheme, stamping
// routingKey into RoutingKeyHeader so the receiver can dispatch on it
// without a second queue per message type.
func NewMessage(manager messaging.Manager, scheme string, routingKey RoutingKey, options ...messaging.Option) (messaging.Message, error) {
	msg, err := manager.NewMessage(scheme, options...)
	if err != nil {
		return nil, err
	}
	msg.SetStrHeader(RoutingKeyHeader, string(routingKey))
	return msg, nil
}

// RoutingKeyOf reads the routing key stamped by NewMessage, "" if absent.
func RoutingKeyOf(msg messaging.Message) RoutingKey {
	v, ok := msg.GetStrHeader(RoutingKeyHeader)
	if !ok {
		return ""
	}
	return RoutingKey(v)
}

// Publish sends a JSON-encoded payload to queue on scheme's provider, with
// a routing key stamped for the receiver's dispatch.
func Publish(manager messaging.Manager, scheme string, queue Queue, routingKey RoutingKey, payload interface{}, options ...messaging.Option) error {
	msg, err := NewMessage(manager, scheme, routingKey, options...)
	if err != nil {
		return err
	}
	if err := msg.WriteJSON(payload); err != nil {
		return err
	}
	return manager.Send(URL(scheme, queue), msg, options...)
}

// Subscribe registers handler for every message arriving on queue, routed
// to handler only when its stamped routing key matches one of keys (all
// messages if keys is empty).
func Subscribe(manager messaging.Manager, scheme string, queue Queue, handler func(messaging.Message), keys ...RoutingKey) error {
	allowed := make(map[RoutingKey]bool, len(keys))
	for _, k := range keys {
		allowed[k] = true
	}
	return manager.AddListener(URL(scheme, queue), func(msg messaging.Message) {
		if len(allowed) > 0 && !allowed[RoutingKeyOf(msg)] {
			return
		}
		handler(msg)
	})
}
