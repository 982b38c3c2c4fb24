package publish

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// natsConn is the part of *nats.Conn the publisher uses
type natsConn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSPublisher publishes flagged batches on a NATS subject
type NATSPublisher struct {
	conn    natsConn
	subject string
}

// NewNATSPublisher connects to url and publishes on subject
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("trust-ring-detector"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NATSPublisher{conn: nc, subject: subject}, nil
}

// Publish sends the batch and waits for the server to acknowledge the flush
func (p *NATSPublisher) Publish(ctx context.Context, batch FlaggedBatch) error {
	data, err := encode(EventFlaggedBatch, batch)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("nats publish failed: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush failed: %w", err)
	}
	return nil
}

// Close closes the connection
func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
