package dispatcher

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		expected domain.Command
		err      error
	}{
		{
			name:     "Join room",
			frame:    `{"event":"joinRoom","data":{"roomName":"global"}}`,
			expected: domain.JoinRoom{RoomName: domain.GlobalRoom},
		},
		{
			name:  "Client supplied id is ignored",
			frame: `{"event":"sendMessage","data":{"id":"mine","senderId":"alice","senderName":"Alice","text":"hi","room":"global"}}`,
			expected: domain.SendMessage{
				SenderID: "alice", SenderName: "Alice", Text: "hi", Room: domain.GlobalRoom,
			},
		},
		{
			name:     "Stop typing",
			frame:    `{"event":"stopTyping","data":{"userId":"alice","username":"Alice","room":"global"}}`,
			expected: domain.Typing{UserID: "alice", Username: "Alice", Room: domain.GlobalRoom, Stopped: true},
		},
		{
			name:     "Reaction",
			frame:    `{"event":"messageReaction","data":{"messageId":"m1","reaction":"👍","reactorId":"bob","reactorName":"Bob"}}`,
			expected: domain.MessageReaction{MessageID: "m1", Reaction: "👍", ReactorID: "bob", ReactorName: "Bob"},
		},
		{
			name:     "Diagnostic message",
			frame:    `{"event":"test_message","data":"ping"}`,
			expected: domain.TestMessage{Text: "ping"},
		},
		{
			name:  "Missing text",
			frame: `{"event":"sendMessage","data":{"room":"global"}}`,
			err:   errors.ErrInvalidPayload,
		},
		{
			name:  "Missing recipient",
			frame: `{"event":"privateMessage","data":{"text":"hi"}}`,
			err:   errors.ErrInvalidPayload,
		},
		{
			name:  "Missing data",
			frame: `{"event":"readReceipt"}`,
			err:   errors.ErrInvalidPayload,
		},
		{
			name:  "Not json",
			frame: `hello`,
			err:   errors.ErrInvalidPayload,
		},
		{
			name:  "Connect cannot come from the wire",
			frame: `{"event":"connect","data":{"participantId":"alice","displayName":"Alice"}}`,
			err:   errors.ErrUnknownEvent,
		},
		{
			name:  "Unknown event",
			frame: `{"event":"selfDestruct","data":{}}`,
			err:   errors.ErrUnknownEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			cmd, err := Decode([]byte(tt.frame))
			if tt.err != nil {
				req.ErrorIs(err, tt.err)
				return
			}
			req.NoError(err)
			req.Equal(tt.expected, cmd)
		})
	}
}

func TestDispatcher_Emit_Isolates_Failing_Outbox(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	slow := mocks.NewMockOutbox(ctrl)
	healthy := mocks.NewMockOutbox(ctrl)
	d := New(log, 10)
	d.Attach("slow", slow)
	d.Attach("healthy", healthy)
	d.Process(context.Background(), domain.Envelope{Handle: "slow", Command: domain.Connect{}})
	d.Process(context.Background(), domain.Envelope{Handle: "healthy", Command: domain.Connect{}})

	// Given the slow peer's outbox is full
	slow.EXPECT().Send(gomock.Any()).Return(errors.ErrOutboxFull).Times(1)

	var received []byte
	healthy.EXPECT().Send(gomock.Any()).DoAndReturn(func(frame []byte) error {
		received = frame
		return nil
	}).Times(1)

	// When an event is broadcast
	d.Broadcast("userOnline", map[string]string{"userId": "alice"})

	// Then the healthy peer still got it
	var frame Frame
	req.NoError(json.Unmarshal(received, &frame))
	req.Equal("userOnline", frame.Event)
	req.JSONEq(`{"userId":"alice"}`, string(frame.Data))
}

func TestDispatcher_Emit_To_Detached_Connection(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	d := New(log, 10)

	// Then nothing happens
	d.Emit("ghost", "message", nil)
}

func TestDispatcher_Process_Recovers_From_Panic(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	d := New(log, 10)
	ctx := context.Background()

	calls := 0
	d.On(domain.EventJoinRoom, func(context.Context, domain.ConnectionHandle, domain.Command) error {
		calls++
		panic("boom")
	})
	d.On(domain.EventLeaveRoom, func(context.Context, domain.ConnectionHandle, domain.Command) error {
		calls++
		return errors.ErrNotFound
	})

	// When a handler panics
	d.Process(ctx, domain.Envelope{Handle: "a", Command: domain.JoinRoom{RoomName: "global"}})

	// Then the next event is still handled
	d.Process(ctx, domain.Envelope{Handle: "a", Command: domain.LeaveRoom{RoomName: "global"}})
	req.Equal(2, calls)
}

func TestDispatcher_Disconnect_Detaches_Outbox(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	outbox := mocks.NewMockOutbox(ctrl)
	d := New(log, 10)
	d.Attach("a", outbox)

	// Given the disconnect handler can still emit to the leaving connection
	d.On(domain.EventDisconnect, func(_ context.Context, handle domain.ConnectionHandle, _ domain.Command) error {
		d.Emit(handle, "bye", nil)
		return nil
	})
	outbox.EXPECT().Send(gomock.Any()).Return(nil).Times(1)
	outbox.EXPECT().Close().Times(1)

	d.Process(context.Background(), domain.Envelope{Handle: "a", Command: domain.Disconnect{}})

	req.Zero(d.Connections())
}

func TestDispatcher_Connect_Handler_Reply_Comes_First(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	d := New(log, 10)
	ctx := context.Background()

	var received []string
	record := func(frame []byte) error {
		var f Frame
		req.NoError(json.Unmarshal(frame, &f))
		received = append(received, f.Event)
		return nil
	}
	ctrl := gomock.NewController(t)
	outbox := mocks.NewMockOutbox(ctrl)
	outbox.EXPECT().Send(gomock.Any()).DoAndReturn(record).AnyTimes()

	// Given the connect handler broadcasts first, then replies to the newcomer
	d.On(domain.EventConnect, func(_ context.Context, handle domain.ConnectionHandle, _ domain.Command) error {
		d.Broadcast("userOnline", nil)
		d.Emit(handle, "onlineUsers", nil)
		return nil
	})

	// When a connection is attached
	d.Attach("a", outbox)

	// Then broadcasts skip it until its connect is handled
	d.Broadcast("message", nil)
	req.Zero(d.Connections())

	d.Process(ctx, domain.Envelope{Handle: "a", Command: domain.Connect{}})
	req.Equal([]string{"onlineUsers"}, received)
	req.Equal(1, d.Connections())

	// And it is reachable by broadcasts afterwards
	d.Broadcast("message", nil)
	req.Equal([]string{"onlineUsers", "message"}, received)
}

func TestDispatcher_Detach_Pending_Connection(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	outbox := mocks.NewMockOutbox(ctrl)
	d := New(log, 10)

	// Given a connection whose connect never made it to the loop
	d.Attach("a", outbox)
	outbox.EXPECT().Close().Times(1)

	// When it is detached
	d.Detach("a")

	// Then it is gone and emits to it are dropped
	d.Emit("a", "message", nil)
	d.Process(context.Background(), domain.Envelope{Handle: "a", Command: domain.Connect{}})
	req.Zero(d.Connections())
}

func TestDispatcher_Run_Keeps_Arrival_Order(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	d := New(log, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var rooms []domain.RoomName
	done := make(chan struct{})
	d.On(domain.EventJoinRoom, func(_ context.Context, _ domain.ConnectionHandle, cmd domain.Command) error {
		mu.Lock()
		defer mu.Unlock()
		rooms = append(rooms, cmd.(domain.JoinRoom).RoomName)
		if len(rooms) == 3 {
			close(done)
		}
		return nil
	})

	go func() { _ = d.Run(ctx) }()

	// When three frames arrive on the same connection
	for _, frame := range []string{
		`{"event":"joinRoom","data":{"roomName":"one"}}`,
		`{"event":"joinRoom","data":{"roomName":"two"}}`,
		`{"event":"joinRoom","data":{"roomName":"three"}}`,
	} {
		req.NoError(d.Dispatch(ctx, "a", []byte(frame)))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("events were not processed in time")
	}

	mu.Lock()
	defer mu.Unlock()
	req.Equal([]domain.RoomName{"one", "two", "three"}, rooms)
}

func TestDispatcher_Submit_Honours_Context(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	d := New(log, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// When nobody consumes the queue
	err := d.Submit(ctx, domain.Envelope{Handle: "a", Command: domain.Disconnect{}})

	// Then the caller is released
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestDispatcher_Pending(t *testing.T) {
	req := require.New(t)
	d := New(logs.GetLoggerFromLevel(slog.LevelDebug), 4)

	req.NoError(d.Submit(context.Background(), domain.Envelope{Handle: "a", Command: domain.Disconnect{}}))

	queued, capacity := d.Pending()
	req.Equal(1, queued)
	req.Equal(4, capacity)
}
