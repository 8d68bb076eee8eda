package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"cortex/internal/model"
	rabbitmqClient "cortex/internal/platform/rabbitmq"
)

var errUnknownKind = errors.New("unknown persist event kind")

type MessageWriter interface {
	Create(message *model.Message) error
}

type AuditLogWriter interface {
	Create(entry *model.AuditLog) error
}

// HistoryInvalidator drops cached replay history once a new message lands.
type HistoryInvalidator interface {
	DeleteHistory(ctx context.Context, conversationID uint) error
}

type PersistWorker struct {
	conn      *amqp.Connection
	messages  MessageWriter
	auditLogs AuditLogWriter
	history   HistoryInvalidator
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPersistWorker(
	conn *amqp.Connection,
	messages MessageWriter,
	auditLogs AuditLogWriter,
	history HistoryInvalidator,
	queueName string,
) *PersistWorker {
	return &PersistWorker{
		conn:      conn,
		messages:  messages,
		auditLogs: auditLogs,
		history:   history,
		queueName: queueName,
	}
}

func (w *PersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmqClient.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					log.Printf("persist worker dropped delivery: %v", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *PersistWorker) handle(ctx context.Context, body []byte) error {
	var event model.PersistEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode persist event: %w", err)
	}

	switch event.Kind {
	case model.PersistKindMessage:
		if event.Message == nil {
			return fmt.Errorf("message event without payload")
		}
		if err := w.messages.Create(event.Message); err != nil {
			return err
		}
		if w.history != nil {
			if err := w.history.DeleteHistory(ctx, event.Message.ConversationID); err != nil {
				log.Printf("persist worker invalidate history %d failed: %v", event.Message.ConversationID, err)
			}
		}
		return nil
	case model.PersistKindAuditLog:
		if event.AuditLog == nil {
			return fmt.Errorf("audit event without payload")
		}
		return w.auditLogs.Create(event.AuditLog)
	default:
		return fmt.Errorf("%w: %q", errUnknownKind, event.Kind)
	}
}

func (w *PersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
