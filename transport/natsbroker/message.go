package natsbroker

import (
	"github.com/nats-io/nats.go/jetstream"

	"oss.mash.dev/mash/messaging"
)

// Message wraps messaging.BaseMessage (for Header/Body storage) with the
// underlying jetstream.Msg when it arrived from a subscription, so Rsvp can
// translate the spec's accept/reject boolean into a real Ack/Nak instead of
// being a no-op the way messaging.LocalMessage's is.
type Message struct {
	*messaging.BaseMessage
	jsMsg jetstream.Msg
}

// Rsvp acknowledges (yes) or negatively-acknowledges (no) the underlying
// JetStream delivery, causing the broker to redeliver on reject. Messages
// that were never received from a subscription (locally constructed,
// outbound-only) have no delivery to acknowledge and Rsvp is a no-op.
func (m *Message) Rsvp(yes bool, _ ...messaging.Option) error {
	if m.jsMsg == nil {
		return nil
	}
	if yes {
		return m.jsMsg.Ack()
	}
	return m.jsMsg.NakWithDelay(0)
}

func decodeMessage(jsMsg jetstream.Msg) (*Message, error) {
	base, err := messaging.NewBaseMessage()
	if err != nil {
		return nil, err
	}
	msg := &Message{BaseMessage: base, jsMsg: jsMsg}
	for k, values := range jsMsg.Headers() {
		if len(values) > 0 {
			msg.SetStrHeader(k, values[0])
		}
	}
	if _, err := msg.SetBodyBytes(jsMsg.Data()); err != nil {
		return nil, err
	}
	return msg, nil
}
