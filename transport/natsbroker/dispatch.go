package natsbroker

import (
	"context"
	"net/url"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"oss.mash.dev/mash/messaging"
	"oss.mash.dev/mash/transport"
)

func (p *Provider) Send(u *url.URL, msg messaging.Message, _ ...messaging.Option) error {
	if _, err := p.ensureStream(u.Host); err != nil {
		return err
	}
	natsMsg := &nats.Msg{Subject: u.Host, Data: msg.ReadBytes(), Header: nats.Header{}}
	if v, ok := msg.GetStrHeader(transport.RoutingKeyHeader); ok {
		natsMsg.Header.Set(transport.RoutingKeyHeader, v)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := p.js.PublishMsg(ctx, natsMsg)
	return err
}

func (p *Provider) SendBatch(u *url.URL, msgs []messaging.Message, options ...messaging.Option) error {
	for _, m := range msgs {
		if err := p.Send(u, m, options...); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) consumerFor(host string) (jetstream.Consumer, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return nil, messaging.ErrProviderClosed
	}
	if c, ok := p.consumers[host]; ok {
		return c, nil
	}
	return nil, nil
}

func (p *Provider) ensureConsumer(host string) (jetstream.Consumer, error) {
	if c, _ := p.consumerFor(host); c != nil {
		return c, nil
	}
	if _, err := p.ensureStream(host); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	con, err := p.js.CreateOrUpdateConsumer(ctx, streamName(host), jetstream.ConsumerConfig{
		Durable:       "mash_" + sanitize(host),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, err
	}
	p.mutex.Lock()
	p.consumers[host] = con
	p.mutex.Unlock()
	return con, nil
}

func (p *Provider) Receive(u *url.URL, _ ...messaging.Option) (messaging.Message, error) {
	con, err := p.ensureConsumer(u.Host)
	if err != nil {
		return nil, err
	}
	jsMsg, err := con.Next(jetstream.FetchMaxWait(30 * time.Second))
	if err != nil {
		return nil, err
	}
	return decodeMessage(jsMsg)
}

func (p *Provider) ReceiveBatch(u *url.URL, options ...messaging.Option) ([]messaging.Message, error) {
	con, err := p.ensureConsumer(u.Host)
	if err != nil {
		return nil, err
	}
	batch, err := con.FetchNoWait(64)
	if err != nil {
		return nil, err
	}
	var msgs []messaging.Message
	for jsMsg := range batch.Messages() {
		m, err := decodeMessage(jsMsg)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := batch.Error(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// AddListener starts a durable push-style consume loop for host, invoking
// listener with each delivered message. The caller must call msg.Rsvp to
// ack/nak; an un-acked message redelivers after the consumer's ack wait.
func (p *Provider) AddListener(u *url.URL, listener func(msg messaging.Message), _ ...messaging.Option) error {
	con, err := p.ensureConsumer(u.Host)
	if err != nil {
		return err
	}
	consumeCtx, err := con.Consume(func(jsMsg jetstream.Msg) {
		m, err := decodeMessage(jsMsg)
		if err != nil {
			logger.ErrorF("natsbroker: failed to decode message on %s: %v", u.Host, err)
			_ = jsMsg.Nak()
			return
		}
		listener(m)
	})
	if err != nil {
		return err
	}
	p.mutex.Lock()
	p.cancels = append(p.cancels, func() { consumeCtx.Stop() })
	p.mutex.Unlock()
	return nil
}

func (p *Provider) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, cancel := range p.cancels {
		cancel()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
