// Package natsbroker implements messaging.Provider over NATS JetStream,
// registered under the "nats" scheme exactly like messaging.LocalProvider
// registers under "chan" — it is a drop-in alternative backing store for
// transport addressing, not a separate transport abstraction.
//
// Grounded on github.com/nats-io/nats.go / nats.go/jetstream usage in the
// A2Y-D5L-go-web-nats example (stream setup, durable consumers, manual
// Ack/Nak), generalized from that example's single worker-delivery stream
// to one JetStream stream per pipeline stage queue.
package natsbroker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"oss.mash.dev/mash/l3"
	"oss.mash.dev/mash/messaging"
)

const Scheme = "nats"

var logger = l3.Get()

// Provider is a messaging.Provider backed by a single NATS connection and
// JetStream context, one stream+subject per destination host.
type Provider struct {
	url string

	mutex     sync.Mutex
	conn      *nats.Conn
	js        jetstream.JetStream
	streams   map[string]jetstream.Stream
	consumers map[string]jetstream.Consumer
	cancels   []context.CancelFunc
	closed    bool
}

// New returns a Provider that will connect to serverURL on Setup.
func New(serverURL string) *Provider {
	return &Provider{url: serverURL}
}

func (p *Provider) Id() string { return "nats:" + p.url }

func (p *Provider) Schemes() []string { return []string{Scheme} }

// Setup dials the NATS server and obtains a JetStream context. Per-host
// streams are created lazily on first Send/Receive/AddListener.
func (p *Provider) Setup() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	conn, err := nats.Connect(p.url, nats.Name("mash-transport"))
	if err != nil {
		return fmt.Errorf("natsbroker: connect %s: %w", p.url, err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("natsbroker: jetstream: %w", err)
	}
	p.conn = conn
	p.js = js
	p.streams = make(map[string]jetstream.Stream)
	p.consumers = make(map[string]jetstream.Consumer)
	p.closed = false
	return nil
}

func streamName(host string) string { return "MASH_" + sanitize(host) }

func sanitize(host string) string {
	out := make([]rune, 0, len(host))
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func (p *Provider) ensureStream(host string) (jetstream.Stream, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return nil, messaging.ErrProviderClosed
	}
	if s, ok := p.streams[host]; ok {
		return s, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	name := streamName(host)
	s, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: []string{host},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("natsbroker: create stream %s: %w", name, err)
	}
	p.streams[host] = s
	return s, nil
}

func (p *Provider) NewMessage(_ string, _ ...messaging.Option) (messaging.Message, error) {
	base, err := messaging.NewBaseMessage()
	if err != nil {
		return nil, err
	}
	return &Message{BaseMessage: base}, nil
}
