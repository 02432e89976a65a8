package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Grade event types.
const (
	TypeSubmissionGraded = "submission.graded"
	TypeQuizAttempt      = "quiz.attempt"
	TypeOverride         = "grade.override"
)

// GradeEvent notifies downstream consumers that a student's grade changed.
type GradeEvent struct {
	Type         string    `json:"type"`
	UserID       string    `json:"user_id"`
	AssignmentID string    `json:"assignment_id"`
	Score        *float64  `json:"score,omitempty"`
	Actor        string    `json:"actor,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher delivers grade events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event GradeEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, GradeEvent) error { return nil }

// NATSPublisher publishes JSON events on "<prefix>.grades".
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// Connect dials NATS and returns a publisher. An empty url yields a NopPublisher.
func Connect(url, prefix string, logger zerolog.Logger) (Publisher, func(), error) {
	if strings.TrimSpace(url) == "" {
		return NopPublisher{}, func() {}, nil
	}

	conn, err := nats.Connect(url, nats.Name("csharp-course-api"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}

	return NewNATSPublisher(conn, prefix, logger), conn.Close, nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn *nats.Conn, prefix string, logger zerolog.Logger) *NATSPublisher {
	prefix = strings.Trim(strings.ReplaceAll(prefix, ":", "."), ".")
	if prefix == "" {
		prefix = "course"
	}
	return &NATSPublisher{
		conn:    conn,
		subject: prefix + ".grades",
		logger:  logger.With().Str("component", "nats_publisher").Logger(),
	}
}

// Subject returns the subject events are published on.
func (p *NATSPublisher) Subject() string {
	return p.subject
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, event GradeEvent) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode grade event: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish grade event: %w", err)
	}
	p.logger.Debug().Str("type", event.Type).Str("user_id", event.UserID).Msg("grade event published")
	return nil
}
