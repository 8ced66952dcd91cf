package sink_test

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/repositories"
	"chat-relay/sink"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func message(room domain.RoomName, text string) domain.Message {
	return domain.Message{
		ID:         uuid.NewString(),
		SenderID:   "alice",
		SenderName: "Alice",
		Content:    text,
		Room:       room,
		Lang:       "en",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestDiskSink_Stores_Room_Messages(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repository := mocks.NewMockIMessageRepository(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	msg := message(domain.GlobalRoom, "hello")
	stored := make(chan repositories.DiskMessage, 1)
	repository.EXPECT().
		StoreMessage(gomock.Any()).
		DoAndReturn(func(dm repositories.DiskMessage) error {
			stored <- dm
			return nil
		})

	s := sink.NewDiskSink(repository, logger, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	// When a room message is consumed
	req.NoError(s.Consume(ctx, msg))

	// Then it reaches the repository with its identity intact
	select {
	case dm := <-stored:
		req.Equal(msg.ID, dm.ID.String())
		req.Equal(domain.GlobalRoom, dm.Room)
		req.Equal("Alice", dm.Author)
		req.Equal("alice", dm.SenderID)
		req.Equal("hello", dm.Content)
		req.Equal(msg.CreatedAt, dm.At)
	case <-time.After(time.Second):
		req.Fail("message was not stored")
	}
}

func TestDiskSink_Skips_Private_Messages(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repository := mocks.NewMockIMessageRepository(ctrl)

	s := sink.NewDiskSink(repository, slog.Default(), 1)
	msg := message(domain.PrivateRoomKey("alice", "bob"), "secret")
	msg.Private = true

	// Then nothing is queued, the buffer of one stays free
	req.NoError(s.Consume(context.Background(), msg))
	req.NoError(s.Consume(context.Background(), message(domain.GlobalRoom, "public")))
}

func TestDiskSink_Full_Buffer_Drops(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repository := mocks.NewMockIMessageRepository(ctrl)

	// Given a sink that is not running
	s := sink.NewDiskSink(repository, slog.Default(), 1)
	req.NoError(s.Consume(context.Background(), message(domain.GlobalRoom, "first")))

	// When the buffer is full
	err := s.Consume(context.Background(), message(domain.GlobalRoom, "second"))

	// Then the message is refused without blocking
	req.ErrorIs(err, errors.ErrOutboxFull)
}

func TestDiskSink_Flushes_On_Shutdown(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repository := mocks.NewMockIMessageRepository(ctrl)
	repository.EXPECT().StoreMessage(gomock.Any()).Return(nil).Times(3)

	s := sink.NewDiskSink(repository, slog.Default(), 10)
	for _, text := range []string{"a", "b", "c"} {
		req.NoError(s.Consume(context.Background(), message(domain.GlobalRoom, text)))
	}

	// When the worker starts with an already canceled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Then every queued message is still written
	req.NoError(s.Run(ctx))
}

func TestDiskSink_Repository_Error_Is_Not_Fatal(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repository := mocks.NewMockIMessageRepository(ctrl)
	repository.EXPECT().StoreMessage(gomock.Any()).Return(errors.ErrNotFound)

	s := sink.NewDiskSink(repository, slog.Default(), 10)
	req.NoError(s.Consume(context.Background(), message(domain.GlobalRoom, "a")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req.NoError(s.Run(ctx))
}
