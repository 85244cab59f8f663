package natsx

import (
	"context"
)

// NatsxProducer 生产端
type NatsxProducer struct{ c *NatsxClient }

func NewNatsxProducer(c *NatsxClient) *NatsxProducer { return &NatsxProducer{c: c} }

// Publish 发布到 subject。hdr 里带 Nats-Msg-Id 时下游可做幂等。
func (p *NatsxProducer) Publish(_ context.Context, subject string, data []byte, hdr map[string]string) error {
	return p.c.send(subject, data, hdr)
}
