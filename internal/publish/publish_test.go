package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/richxcame/trust-ring-detector/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var generatedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func rows(n int) [][2]int64 {
	out := make([][2]int64, n)
	for i := range out {
		out[i] = [2]int64{int64(i + 1), 50}
	}
	return out
}

func TestBatches(t *testing.T) {
	tests := []struct {
		name  string
		rows  int
		size  int
		sizes []int
	}{
		{"empty", 0, 10, nil},
		{"exact", 20, 10, []int{10, 10}},
		{"remainder", 25, 10, []int{10, 10, 5}},
		{"default size", 150, 0, []int{100, 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := Batches("run-1", 30, generatedAt, rows(tt.rows), tt.size)
			require.Len(t, batches, len(tt.sizes))
			for i, b := range batches {
				assert.Len(t, b.Profiles, tt.sizes[i])
				assert.Equal(t, i+1, b.Batch)
				assert.Equal(t, len(tt.sizes), b.Batches)
				assert.Equal(t, "run-1", b.RunID)
			}
		})
	}
}

type fakeConn struct {
	subjects []string
	payloads [][]byte
	pubErr   error
	closed   bool
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) FlushWithContext(ctx context.Context) error { return ctx.Err() }
func (f *fakeConn) Close()                                     { f.closed = true }

func TestNATSPublisher_Publish(t *testing.T) {
	conn := &fakeConn{}
	p := &NATSPublisher{conn: conn, subject: "trust.flagged"}

	batch := Batches("run-1", 30, generatedAt, [][2]int64{{9, 88}}, 10)[0]
	require.NoError(t, p.Publish(context.Background(), batch))
	require.NoError(t, p.Close())

	assert.Equal(t, []string{"trust.flagged"}, conn.subjects)
	assert.True(t, conn.closed)

	var env Envelope
	require.NoError(t, json.Unmarshal(conn.payloads[0], &env))
	assert.Equal(t, EventFlaggedBatch, env.Type)
	assert.NotZero(t, env.TS)

	var got FlaggedBatch
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, [][2]int64{{9, 88}}, got.Profiles)
	assert.Equal(t, 30.0, got.Threshold)
}

func TestNATSPublisher_PublishError(t *testing.T) {
	p := &NATSPublisher{conn: &fakeConn{pubErr: errors.New("no responders")}, subject: "s"}

	err := p.Publish(context.Background(), FlaggedBatch{RunID: "r"})
	assert.ErrorContains(t, err, "nats publish failed")
}

func TestKafkaPublisher_Publish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "run-7" {
			return errors.New("unexpected key " + string(key))
		}
		if msg.Topic != "trust-flagged" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		return nil
	})

	p := newKafkaPublisher(sp, "trust-flagged")
	require.NoError(t, p.Publish(context.Background(), FlaggedBatch{RunID: "run-7", Profiles: [][2]int64{{1, 99}}}))
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_SendFails(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newKafkaPublisher(sp, "trust-flagged")
	err := p.Publish(context.Background(), FlaggedBatch{RunID: "r"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_CancelledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := newKafkaPublisher(sp, "trust-flagged")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, FlaggedBatch{}), context.Canceled)
	require.NoError(t, p.Close())
}

type countingPublisher struct {
	failures int
	calls    int
	closeErr error
}

func (c *countingPublisher) Publish(ctx context.Context, batch FlaggedBatch) error {
	c.calls++
	if c.calls <= c.failures {
		return errors.New("transient")
	}
	return nil
}

func (c *countingPublisher) Close() error { return c.closeErr }

func TestPublishAll_Retries(t *testing.T) {
	p := &countingPublisher{failures: 1}
	cfg := resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffMultiplier: 1}

	batches := Batches("r", 30, generatedAt, rows(3), 2)
	require.NoError(t, PublishAll(context.Background(), p, batches, cfg))
	assert.Equal(t, 3, p.calls)
}

func TestPublishAll_GivesUp(t *testing.T) {
	p := &countingPublisher{failures: 10}
	cfg := resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, BackoffMultiplier: 1}

	err := PublishAll(context.Background(), p, Batches("r", 30, generatedAt, rows(1), 1), cfg)
	assert.ErrorContains(t, err, "failed to publish batch 1/1")
	assert.Equal(t, 2, p.calls)
}

func TestMulti(t *testing.T) {
	ok := &countingPublisher{}
	bad := &countingPublisher{failures: 1, closeErr: errors.New("close")}
	m := Multi{ok, bad}

	err := m.Publish(context.Background(), FlaggedBatch{})
	assert.ErrorContains(t, err, "transient")
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, bad.calls)

	assert.ErrorContains(t, m.Close(), "close")
}
