package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	messages []Message
}

func (c *captureNotifier) Notify(ctx context.Context, msg Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

func TestLogNotifierWritesToLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	err := NewLogNotifier(logger).Notify(context.Background(), Message{
		Type:    "log",
		Subject: "workflow finished",
		Body:    "3 articles summarized",
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "workflow finished")
	assert.Contains(t, buf.String(), "3 articles summarized")
}

func TestRegistryRoutesByType(t *testing.T) {
	registry := NewRegistry(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	email := &captureNotifier{}
	registry.Register("email", email)

	msg := Message{Type: "email", Recipients: []string{"ops@example.com"}, Subject: "done"}
	require.NoError(t, registry.Notify(context.Background(), msg))
	require.Len(t, email.messages, 1)
	assert.Equal(t, []string{"ops@example.com"}, email.messages[0].Recipients)
}

func TestRegistryFallsBackToLogTransport(t *testing.T) {
	var buf bytes.Buffer
	registry := NewRegistry(slog.New(slog.NewTextHandler(&buf, nil)))

	// email is not registered; the message still lands in the log.
	err := registry.Notify(context.Background(), Message{Type: "email", Subject: "approval needed"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "approval needed")
}
