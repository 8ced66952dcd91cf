package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type routerFixture struct {
	registry *Registry
	rooms    *Rooms
	emitter  *mocks.MockEmitter
	sink     *mocks.MockMessageSink
	router   *Router
}

func newRouterFixture(t *testing.T, maxTracked int) routerFixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	f := routerFixture{
		registry: NewRegistry(),
		rooms:    NewRooms(),
		emitter:  mocks.NewMockEmitter(ctrl),
		sink:     mocks.NewMockMessageSink(ctrl),
	}
	f.router = NewRouter(log, f.registry, f.rooms, f.emitter, maxTracked, WithSink(f.sink))
	return f
}

func (f routerFixture) connect(t *testing.T, participantID, displayName string) domain.ConnectionHandle {
	handle := newHandle()
	_, err := f.registry.Register(handle, participantID, displayName)
	require.NoError(t, err)
	return handle
}

func TestRouter_SendMessage_Broadcast_To_Room(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 100)
	alice := f.connect(t, "alice", "Alice")
	bob := f.connect(t, "bob", "Bob")
	f.rooms.Join(alice, domain.GlobalRoom)
	f.rooms.Join(bob, domain.GlobalRoom)

	// Given both members receive the same stamped message
	var delivered []event.MessagePayload
	f.emitter.EXPECT().Emit(gomock.Any(), event.Message, gomock.Any()).
		Do(func(_ domain.ConnectionHandle, _ string, payload any) {
			delivered = append(delivered, payload.(event.MessagePayload))
		}).Times(2)
	f.sink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	// When alice sends "hi" pretending to have an id of her own
	msg, err := f.router.SendMessage(context.Background(), alice, domain.SendMessage{
		SenderID: "alice", SenderName: "Alice", Text: "hi", Room: domain.GlobalRoom,
	})
	req.NoError(err)

	// Then the id is server assigned
	_, err = uuid.Parse(msg.ID)
	req.NoError(err)
	req.Len(delivered, 2)
	for _, payload := range delivered {
		req.Equal(msg.ID, payload.ID)
		req.Equal("hi", payload.Text)
		req.Equal("Alice", payload.SenderName)
		req.Empty(payload.ReadBy)
	}
	req.Equal(1, f.router.Tracked())
}

func TestRouter_SendMessage_Defaults_To_Global(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 100)
	alice := f.connect(t, "alice", "Alice")
	f.rooms.Join(alice, domain.GlobalRoom)

	f.emitter.EXPECT().Emit(alice, event.Message, gomock.Any()).Times(1)
	f.sink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	msg, err := f.router.SendMessage(context.Background(), alice, domain.SendMessage{Text: "hello"})
	req.NoError(err)
	req.Equal(domain.GlobalRoom, msg.Room)
}

func TestRouter_Identity_Comes_From_Registry(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 100)
	alice := f.connect(t, "alice", "Alice")
	f.rooms.Join(alice, domain.GlobalRoom)

	f.emitter.EXPECT().Emit(alice, event.Message, gomock.Any()).Times(1)
	f.sink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(errors.ErrOutboxFull).Times(1)

	// When alice claims to be bob
	msg, err := f.router.SendMessage(context.Background(), alice, domain.SendMessage{
		SenderID: "bob", SenderName: "Bob", Text: "hi",
	})

	// Then the message is still hers, and a persistence failure doesn't fail the send
	req.NoError(err)
	req.Equal("alice", msg.SenderID)
	req.Equal("Alice", msg.SenderName)
}

func TestRouter_Unauthenticated_Send_Emits_Nothing(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 100)
	anonymous := newHandle()
	f.rooms.Join(anonymous, domain.GlobalRoom)

	// Given no emission is expected at all
	ctx := context.Background()

	_, err := f.router.SendMessage(ctx, anonymous, domain.SendMessage{Text: "hi"})
	req.ErrorIs(err, errors.ErrUnauthenticatedSend)

	_, err = f.router.PrivateMessage(ctx, anonymous, domain.PrivateMessage{Text: "hi", RecipientID: "bob"})
	req.ErrorIs(err, errors.ErrUnauthenticatedSend)

	req.ErrorIs(f.router.Typing(anonymous, domain.Typing{Room: domain.GlobalRoom}), errors.ErrUnauthenticatedSend)
	req.ErrorIs(f.router.ReadReceipt(anonymous, domain.ReadReceipt{MessageID: "m"}), errors.ErrUnauthenticatedSend)
	req.ErrorIs(f.router.React(anonymous, domain.MessageReaction{MessageID: "m", Reaction: "👍"}), errors.ErrUnauthenticatedSend)
	req.Zero(f.router.Tracked())
}

func TestRouter_PrivateMessage_Recipient_Unreachable(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 100)
	alice := f.connect(t, "alice", "Alice")
	bob := f.connect(t, "bob", "Bob")
	f.rooms.Join(alice, domain.GlobalRoom)
	f.rooms.Join(bob, domain.GlobalRoom)

	// Given only alice receives her own echo
	f.emitter.EXPECT().Emit(alice, event.PrivateMessage, gomock.Any()).Times(1)

	// When alice writes to clara who never connected
	msg, err := f.router.PrivateMessage(context.Background(), alice, domain.PrivateMessage{
		Text: "are you there?", RecipientID: "clara",
	})

	// Then the caller learns about it
	req.ErrorIs(err, errors.ErrRecipientUnreachable)
	req.True(msg.Private)
	req.Equal(domain.PrivateRoomKey("alice", "clara"), msg.Room)
	req.NotEmpty(msg.ID)
}

func TestRouter_PrivateMessage_Delivered_To_Both_Sides(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 100)
	alice := f.connect(t, "alice", "Alice")
	bob := f.connect(t, "bob", "Bob")
	clara := f.connect(t, "clara", "Clara")
	room := domain.PrivateRoomKey("bob", "alice")
	// alice has the conversation open, bob does not
	f.rooms.Join(alice, room)
	f.rooms.Join(bob, domain.GlobalRoom)
	f.rooms.Join(clara, domain.GlobalRoom)

	// Then alice gets a single copy and bob gets his
	f.emitter.EXPECT().Emit(alice, event.PrivateMessage, gomock.Any()).Times(1)
	f.emitter.EXPECT().Emit(bob, event.PrivateMessage, gomock.Any()).Times(1)

	msg, err := f.router.PrivateMessage(context.Background(), alice, domain.PrivateMessage{
		Text: "psst", RecipientID: "bob",
	})
	req.NoError(err)
	req.Equal("bob", msg.RecipientID)
	req.Equal(room, msg.Room)
}

func TestRouter_PrivateMessage_Reaches_Every_Bound_Connection(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 100)
	aliceOld := f.connect(t, "alice", "Alice")
	aliceNew := f.connect(t, "alice", "Alice")
	bobOld := f.connect(t, "bob", "Bob")
	bobNew := f.connect(t, "bob", "Bob")

	// Then every connection of both participants gets one copy
	for _, h := range []domain.ConnectionHandle{aliceOld, aliceNew, bobOld, bobNew} {
		f.emitter.EXPECT().Emit(h, event.PrivateMessage, gomock.Any()).Times(1)
	}

	// When alice writes from her superseded connection
	_, err := f.router.PrivateMessage(context.Background(), aliceOld, domain.PrivateMessage{
		Text: "from the old tab", RecipientID: "bob",
	})
	req.NoError(err)
}

func TestRouter_Private_Room_Rejects_Outsider(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 100)
	bob := f.connect(t, "bob", "Bob")
	eve := f.connect(t, "eve", "Eve")
	room := domain.PrivateRoomKey("alice", "bob")
	f.rooms.Join(bob, room)

	// When eve posts and types in alice and bob's room
	_, err := f.router.SendMessage(context.Background(), eve, domain.SendMessage{Text: "hi bob", Room: room})

	// Then nothing is emitted, tracked or persisted
	req.ErrorIs(err, errors.ErrRoomForbidden)
	req.ErrorIs(f.router.Typing(eve, domain.Typing{Room: room}), errors.ErrRoomForbidden)
	req.Zero(f.router.Tracked())
}

func TestRouter_Typing_Not_Echoed(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 100)
	alice := f.connect(t, "alice", "Alice")
	aliceOtherTab := f.connect(t, "alice", "Alice")
	bob := f.connect(t, "bob", "Bob")
	for _, h := range []domain.ConnectionHandle{alice, aliceOtherTab, bob} {
		f.rooms.Join(h, domain.GlobalRoom)
	}

	// Then only bob hears alice typing
	payload := event.TypingPayload{UserID: "alice", Username: "Alice", Room: domain.GlobalRoom}
	f.emitter.EXPECT().Emit(bob, event.Typing, payload).Times(1)
	f.emitter.EXPECT().Emit(bob, event.StopTyping, payload).Times(1)

	req.NoError(f.router.Typing(alice, domain.Typing{Room: domain.GlobalRoom}))
	req.NoError(f.router.Typing(alice, domain.Typing{Room: domain.GlobalRoom, Stopped: true}))
}

func TestRouter_ReadReceipt_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 100)
	alice := f.connect(t, "alice", "Alice")
	bob := f.connect(t, "bob", "Bob")
	f.rooms.Join(alice, domain.GlobalRoom)

	f.emitter.EXPECT().Emit(gomock.Any(), event.Message, gomock.Any()).AnyTimes()
	f.sink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	msg, err := f.router.SendMessage(context.Background(), alice, domain.SendMessage{Text: "hi"})
	req.NoError(err)

	// Given both receipts are relayed to everyone
	expected := event.ReadReceiptPayload{MessageID: msg.ID, ReaderID: "bob", ReaderName: "Bob", ReadBy: []string{"bob"}}
	f.emitter.EXPECT().Broadcast(event.ReadReceipt, expected).Times(2)

	// When bob acknowledges twice
	receipt := domain.ReadReceipt{MessageID: msg.ID, ReaderID: "bob", ReaderName: "Bob"}
	req.NoError(f.router.ReadReceipt(bob, receipt))
	req.NoError(f.router.ReadReceipt(bob, receipt))

	// Then bob is listed once
	stored, err := f.router.Message(msg.ID)
	req.NoError(err)
	req.Equal([]string{"bob"}, stored.ReadBy)
}

func TestRouter_Reactions_Dedup_Per_Kind(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 100)
	alice := f.connect(t, "alice", "Alice")
	bob := f.connect(t, "bob", "Bob")
	f.rooms.Join(alice, domain.GlobalRoom)

	f.emitter.EXPECT().Emit(gomock.Any(), event.Message, gomock.Any()).AnyTimes()
	f.sink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	msg, err := f.router.SendMessage(context.Background(), alice, domain.SendMessage{Text: "hi"})
	req.NoError(err)

	f.emitter.EXPECT().Broadcast(event.MessageReaction, gomock.Any()).Times(3)

	// When bob reacts 👍 twice then ❤️
	req.NoError(f.router.React(bob, domain.MessageReaction{MessageID: msg.ID, Reaction: "👍"}))
	req.NoError(f.router.React(bob, domain.MessageReaction{MessageID: msg.ID, Reaction: "👍"}))
	req.NoError(f.router.React(bob, domain.MessageReaction{MessageID: msg.ID, Reaction: "❤️"}))

	// Then he appears once under each kind
	stored, err := f.router.Message(msg.ID)
	req.NoError(err)
	req.Equal(map[string][]string{"👍": {"Bob"}, "❤️": {"Bob"}}, stored.Reactions)
}

func TestRouter_Receipt_For_Unknown_Message_Is_Relayed(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 100)
	bob := f.connect(t, "bob", "Bob")

	f.emitter.EXPECT().
		Broadcast(event.ReadReceipt, event.ReadReceiptPayload{MessageID: "gone", ReaderID: "bob", ReaderName: "Bob"}).
		Times(1)

	req.NoError(f.router.ReadReceipt(bob, domain.ReadReceipt{MessageID: "gone"}))
	_, err := f.router.Message("gone")
	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func TestRouter_Evicts_Oldest_Messages(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 2)
	alice := f.connect(t, "alice", "Alice")

	f.sink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		msg, err := f.router.SendMessage(context.Background(), alice, domain.SendMessage{Text: text})
		req.NoError(err)
		ids = append(ids, msg.ID)
	}

	req.Equal(2, f.router.Tracked())
	_, err := f.router.Message(ids[0])
	req.ErrorIs(err, errors.ErrMessageNotFound)
	_, err = f.router.Message(ids[2])
	req.NoError(err)
}
