package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yuns-backend/apiserver/types"
)

// Channel names for question lifecycle events.
const (
	ChannelQuestionCreated = "question.created"
	ChannelQuestionDeleted = "question.deleted"
)

// Publisher defines the broker-agnostic publish operations used by the app.
// This server only produces events; consumption happens in external workers.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// QuestionEvent is the payload published on question lifecycle channels.
type QuestionEvent struct {
	QuestionID    int       `json:"question_id"`
	StudentNumber string    `json:"student_number"`
	Title         string    `json:"title"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Emitter publishes typed lifecycle events through a backend.
type Emitter struct {
	backend Publisher
}

// NewEmitter constructs an Emitter for the provided backend.
func NewEmitter(backend Publisher) *Emitter {
	return &Emitter{backend: backend}
}

// QuestionCreated publishes a creation event for the given question.
func (e *Emitter) QuestionCreated(ctx context.Context, question types.Question) error {
	return e.publish(ctx, ChannelQuestionCreated, question)
}

// QuestionDeleted publishes a deletion event for the given question.
func (e *Emitter) QuestionDeleted(ctx context.Context, question types.Question) error {
	return e.publish(ctx, ChannelQuestionDeleted, question)
}

// Close closes the underlying backend.
func (e *Emitter) Close() error {
	return e.backend.Close()
}

func (e *Emitter) publish(ctx context.Context, channel string, question types.Question) error {
	payload, err := json.Marshal(QuestionEvent{
		QuestionID:    question.ID,
		StudentNumber: question.StudentNumber,
		Title:         question.Title,
		OccurredAt:    time.Now(),
	})
	if err != nil {
		return err
	}
	_, err = e.backend.Publish(ctx, channel, payload, map[string]string{
		"content-type": "application/json",
	})
	return err
}
