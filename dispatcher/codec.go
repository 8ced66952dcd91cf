package dispatcher

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Frame is the wire shape of every event in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Decode turns a raw frame into its typed command.
// connect and disconnect are synthesised by the transport and rejected here.
func Decode(raw []byte) (domain.Command, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}

	switch frame.Event {
	case domain.EventJoinRoom:
		return decodeInto[domain.JoinRoom](frame.Data)
	case domain.EventLeaveRoom:
		return decodeInto[domain.LeaveRoom](frame.Data)
	case domain.EventSendMessage:
		return decodeInto[domain.SendMessage](frame.Data)
	case domain.EventPrivateMessage:
		return decodeInto[domain.PrivateMessage](frame.Data)
	case domain.EventTyping:
		return decodeInto[domain.Typing](frame.Data)
	case domain.EventStopTyping:
		cmd, err := decodeInto[domain.Typing](frame.Data)
		if err != nil {
			return nil, err
		}
		typing := cmd.(domain.Typing)
		typing.Stopped = true
		return typing, nil
	case domain.EventReadReceipt:
		return decodeInto[domain.ReadReceipt](frame.Data)
	case domain.EventMessageReaction:
		return decodeInto[domain.MessageReaction](frame.Data)
	case domain.EventTestMessage:
		var text string
		if err := json.Unmarshal(frame.Data, &text); err != nil {
			text = string(frame.Data)
		}
		return domain.TestMessage{Text: text}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, frame.Event)
	}
}

func decodeInto[T domain.Command](data json.RawMessage) (domain.Command, error) {
	var cmd T
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", errors.ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return cmd, nil
}

// Encode builds the outbound frame for one event.
func Encode(eventName string, payload any) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: eventName, Data: payload})
}
