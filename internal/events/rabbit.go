package events

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type EventType string

const (
	InviteCreated  EventType = "invite.created"
	InviteAccepted EventType = "invite.accepted"
	InviteDeclined EventType = "invite.declined"
	InviteCanceled EventType = "invite.canceled"
)

// Event is the invite lifecycle notification other Planboard services
// consume. Publishing is always best-effort.
type Event struct {
	Type        EventType `json:"type"`
	Token       string    `json:"token"`
	WorkspaceID string    `json:"workspace_id"`
	Email       string    `json:"email"`
	At          time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type rabbitPublisher struct {
	conn *amqp.Connection
	q    amqp.Queue
}

// NewRabbitPublisher connects to RabbitMQ and declares a durable queue with
// the given name.
func NewRabbitPublisher(url, queueName string) (Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	// close channel; a fresh channel is opened per publish
	ch.Close()
	return &rabbitPublisher{conn: conn, q: q}, nil
}

func (r *rabbitPublisher) Publish(ctx context.Context, ev Event) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx,
		"", r.q.Name, false, false,
		amqp.Publishing{ContentType: "application/json", Body: body},
	)
}

func (r *rabbitPublisher) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
