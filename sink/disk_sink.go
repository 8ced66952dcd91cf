package sink

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// DiskSink persists room messages in the background.
// Consume never blocks the router: when the buffer is full the message is dropped.
type DiskSink struct {
	repository repositories.IMessageRepository
	log        *slog.Logger
	queue      chan domain.Message
}

func NewDiskSink(repository repositories.IMessageRepository, log *slog.Logger, bufferSize int) *DiskSink {
	return &DiskSink{repository: repository, log: log, queue: make(chan domain.Message, bufferSize)}
}

func (d *DiskSink) Consume(_ context.Context, message domain.Message) error {
	if message.Private {
		return nil
	}
	select {
	case d.queue <- message:
		return nil
	default:
		return fmt.Errorf("disk sink, message %s: %w", message.ID, errors.ErrOutboxFull)
	}
}

// Run writes queued messages until ctx is done, then flushes what is left.
func (d *DiskSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return nil
		case message := <-d.queue:
			d.store(message)
		}
	}
}

func (d *DiskSink) drain() {
	for {
		select {
		case message := <-d.queue:
			d.store(message)
		default:
			return
		}
	}
}

func (d *DiskSink) store(message domain.Message) {
	diskMessage, err := toDiskMessage(message)
	if err != nil {
		d.log.Warn("Message not persisted", "message_id", message.ID, "error", err)
		return
	}
	if err := d.repository.StoreMessage(diskMessage); err != nil {
		d.log.Error("Failed to store message", "message_id", message.ID, "error", err)
	}
}

func toDiskMessage(message domain.Message) (repositories.DiskMessage, error) {
	id, err := uuid.Parse(message.ID)
	if err != nil {
		return repositories.DiskMessage{}, err
	}
	return repositories.DiskMessage{
		ID:       id,
		Room:     message.Room,
		SenderID: message.SenderID,
		Author:   message.SenderName,
		Content:  message.Content,
		Lang:     message.Lang,
		At:       message.CreatedAt,
	}, nil
}
