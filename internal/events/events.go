// Package events publishes procurement request lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects.
const (
	SubjectRequestSubmitted = "procurement.request.submitted"
	SubjectRequestUpdated   = "procurement.request.updated"
)

// RequestEvent describes a persisted procurement request.
type RequestEvent struct {
	Document           string `json:"document"`
	Project            string `json:"project,omitempty"`
	WorkPackage        string `json:"work_package"`
	RequestedBy        string `json:"requested_by"`
	RequesterName      string `json:"requester_name"`
	ItemCount          int    `json:"item_count"`
	RequestedItemCount int    `json:"requested_item_count"`
}

// Publisher sends raw messages to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// PublishRequest encodes ev and publishes it on subject.
func PublishRequest(ctx context.Context, p Publisher, subject string, ev RequestEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := p.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// NopPublisher drops every message.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, []byte) error { return nil }

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("procura-api"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, subject string, data []byte) error {
	return p.conn.Publish(subject, data)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	err := p.conn.Flush()
	p.conn.Close()
	return err
}

// HandlerFunc handles one decoded request event.
type HandlerFunc func(ctx context.Context, subject string, ev RequestEvent) error

type NATSSubscriber struct {
	conn *nats.Conn
}

func NewNATSSubscriber(url string) (*NATSSubscriber, error) {
	conn, err := nats.Connect(url, nats.Name("procura-subscriber"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSubscriber{conn: conn}, nil
}

// Subscribe delivers request events on subject (wildcards allowed) to
// handler until ctx is done. Undecodable messages are passed to onError.
func (s *NATSSubscriber) Subscribe(ctx context.Context, subject string, handler HandlerFunc, onError func(error)) error {
	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		var ev RequestEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			onError(fmt.Errorf("decode %s: %w", msg.Subject, err))
			return
		}
		if err := handler(ctx, msg.Subject, ev); err != nil {
			onError(err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
