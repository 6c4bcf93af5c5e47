// Package eventbus 把作业事件流转发到 NATS subject。
package eventbus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/John-Robertt/sirala/internal/domain"
)

// Publisher 是 Sink 需要的最小发布能力；*Client 实现它，测试可以替换。
type Publisher interface {
	PublishJSON(subject string, v any) error
}

type Client struct{ nc *nats.Conn }

func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("sirala"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc}, nil
}

// Close 先 Drain 再关闭，保证已发布的事件送达。
func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// Sink 把事件发布到 <Subject>.<kind>，如 sirala.events.progress。
type Sink struct {
	Pub     Publisher
	Subject string
}

func NewSink(pub Publisher, subject string) *Sink {
	return &Sink{Pub: pub, Subject: subject}
}

func (s *Sink) Handle(ev domain.Event) error {
	return s.Pub.PublishJSON(SubjectFor(s.Subject, ev.Kind), ev)
}

func SubjectFor(base string, kind domain.EventKind) string {
	if base == "" {
		return string(kind)
	}
	return base + "." + string(kind)
}
