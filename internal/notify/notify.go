// Package notify dispatches notification steps. The core ships a log
// transport; the email transport lives outside and is wired in through
// the Notifier interface.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Message is one notification to deliver.
type Message struct {
	// Type selects the transport: "email" or "log".
	Type string `json:"type" mapstructure:"type"`

	// Recipients applies to the email transport.
	Recipients []string `json:"recipients,omitempty" mapstructure:"recipients"`

	Subject string `json:"subject,omitempty" mapstructure:"subject"`
	Body    string `json:"body,omitempty" mapstructure:"body"`
}

// Notifier delivers messages over one transport.
type Notifier interface {
	// Notify delivers msg. Failures are reported but treated as
	// non-fatal by the step dispatcher.
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the structured log. It is the
// default transport and the fallback when no email transport is
// registered.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the message.
func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "notification",
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}

// Registry routes messages to the transport their Type names.
type Registry struct {
	transports map[string]Notifier
	fallback   Notifier
}

// NewRegistry creates a Registry with a log transport registered and
// set as fallback.
func NewRegistry(logger *slog.Logger) *Registry {
	logNotifier := NewLogNotifier(logger)
	return &Registry{
		transports: map[string]Notifier{"log": logNotifier},
		fallback:   logNotifier,
	}
}

// Register adds or replaces the transport for a type.
func (r *Registry) Register(transportType string, n Notifier) {
	r.transports[transportType] = n
}

// Notify dispatches msg by its Type. Unknown or unregistered types fall
// back to the log transport.
func (r *Registry) Notify(ctx context.Context, msg Message) error {
	transport, ok := r.transports[msg.Type]
	if !ok {
		if r.fallback == nil {
			return fmt.Errorf("no transport registered for notification type %q", msg.Type)
		}
		transport = r.fallback
	}
	return transport.Notify(ctx, msg)
}
