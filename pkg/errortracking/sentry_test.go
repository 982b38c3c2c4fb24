package errortracking

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/richxcame/trust-ring-detector/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyDSN(t *testing.T) {
	flush, err := Init(Config{})
	require.NoError(t, err)
	assert.NotPanics(t, flush)
}

func TestCaptureError_TagsRunID(t *testing.T) {
	var events []*sentry.Event
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn: "https://public@sentry.example.com/1",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			events = append(events, event)
			return nil
		},
	})
	require.NoError(t, err)

	hub := sentry.NewHub(client, sentry.NewScope())
	ctx := sentry.SetHubOnContext(context.Background(), hub)
	ctx = logger.ContextWithRunID(ctx, "run-42")

	CaptureError(ctx, errors.New("ring search failed"))
	CaptureError(ctx, nil)

	require.Len(t, events, 1)
	assert.Equal(t, "run-42", events[0].Tags["run_id"])
	require.NotEmpty(t, events[0].Exception)
	assert.Equal(t, "ring search failed", events[0].Exception[0].Value)
}
