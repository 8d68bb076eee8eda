package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"cortex/internal/model"
)

// PersistPublisher enqueues writes that the persist worker applies later.
type PersistPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewPersistPublisher(conn *amqp.Connection, queueName string) *PersistPublisher {
	return &PersistPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *PersistPublisher) PublishMessage(ctx context.Context, msg model.Message) error {
	return p.publish(ctx, model.PersistEvent{Kind: model.PersistKindMessage, Message: &msg})
}

func (p *PersistPublisher) PublishAuditLog(ctx context.Context, entry model.AuditLog) error {
	return p.publish(ctx, model.PersistEvent{Kind: model.PersistKindAuditLog, AuditLog: &entry})
}

func (p *PersistPublisher) publish(ctx context.Context, event model.PersistEvent) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event failed: %w", event.Kind, err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         event.Kind,
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish %s event failed: %w", event.Kind, err)
	}
	return nil
}
