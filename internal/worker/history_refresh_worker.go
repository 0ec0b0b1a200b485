package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"chatrelay/internal/model"
)

// MessageLister is the slice of the message repository the worker reads.
type MessageLister interface {
	ListByChatID(ctx context.Context, chatID uuid.UUID) ([]model.Message, error)
}

// HistoryStore is the slice of the history cache the worker writes.
type HistoryStore interface {
	SetHistory(ctx context.Context, chatID uuid.UUID, messages []model.Message) error
	DeleteHistory(ctx context.Context, chatID uuid.UUID) error
}

// HistoryRefreshWorker consumes chat events and keeps the Redis history
// cache in step with the database: after an appended turn it re-reads the
// chat's messages and repopulates the cache, after a deletion it drops the
// cached entry.
type HistoryRefreshWorker struct {
	conn         *amqp.Connection
	messageRepo  MessageLister
	historyCache HistoryStore
	queueName    string
	logger       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHistoryRefreshWorker(
	conn *amqp.Connection,
	messageRepo MessageLister,
	historyCache HistoryStore,
	queueName string,
	logger *zap.Logger,
) *HistoryRefreshWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryRefreshWorker{
		conn:         conn,
		messageRepo:  messageRepo,
		historyCache: historyCache,
		queueName:    queueName,
		logger:       logger,
	}
}

func (w *HistoryRefreshWorker) Start(ctx context.Context) error {
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

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
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

				var event model.ChatEvent
				if err := json.Unmarshal(d.Body, &event); err != nil {
					w.logger.Error("worker decode chat event failed", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				if err := w.handle(workerCtx, event); err != nil {
					w.logger.Error("worker handle chat event failed",
						zap.String("type", event.Type),
						zap.String("chat_id", event.ChatID.String()),
						zap.Error(err))
					// transient failures get one redelivery; after that the
					// event is dropped - the write path already invalidated
					// the cached entry, so readers fall back to the database
					_ = d.Nack(false, !d.Redelivered)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *HistoryRefreshWorker) handle(ctx context.Context, event model.ChatEvent) error {
	switch event.Type {
	case model.EventTurnAppended:
		messages, err := w.messageRepo.ListByChatID(ctx, event.ChatID)
		if err != nil {
			return err
		}
		return w.historyCache.SetHistory(ctx, event.ChatID, messages)
	case model.EventChatDeleted:
		return w.historyCache.DeleteHistory(ctx, event.ChatID)
	default:
		w.logger.Warn("worker skipping unknown chat event", zap.String("type", event.Type))
		return nil
	}
}

func (w *HistoryRefreshWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
