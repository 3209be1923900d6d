package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Skyrin/go-deploy/e"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	ECode060201 = e.Code0602 + "01"
	ECode060202 = e.Code0602 + "02"
	ECode060203 = e.Code0602 + "03"

	// StatusSuccess the deployment run completed
	StatusSuccess = "success"
	// StatusFailed the deployment run failed
	StatusFailed = "failed"
)

// Event the message published when a deployment run finishes
type Event struct {
	Schema       string    `json:"schema"`
	MigrationRan bool      `json:"migrationRan"`
	BatchID      *int      `json:"batchId"`
	Versions     []string  `json:"versions"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	FinishedOn   time.Time `json:"finishedOn"`
}

// MessageWriter the subset of *kafka.Writer used by the publisher
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes deployment events to a topic
type Publisher struct {
	w     MessageWriter
	topic string
}

// NewPublisher initializes a new publisher using the connection's writer
func NewPublisher(c *Connection, topic string) (p *Publisher) {
	return NewPublisherWithWriter(c.NewWriter(topic), topic)
}

// NewPublisherWithWriter initializes a new publisher with the writer
func NewPublisherWithWriter(w MessageWriter, topic string) (p *Publisher) {
	return &Publisher{
		w:     w,
		topic: topic,
	}
}

// Publish writes the event, keyed by schema so events of a schema stay in order
func (p *Publisher) Publish(ctx context.Context, ev *Event) (err error) {
	if ev.Versions == nil {
		ev.Versions = []string{}
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return e.W(err, ECode060201)
	}

	if err := p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Schema),
		Value: b,
	}); err != nil {
		return e.W(err, ECode060202, p.topic)
	}

	log.Info().Msgf("published %s event for schema %s to %s", ev.Status, ev.Schema, p.topic)

	return nil
}

// Close flushes and closes the writer
func (p *Publisher) Close() (err error) {
	if err := p.w.Close(); err != nil {
		return e.W(err, ECode060203)
	}

	return nil
}
