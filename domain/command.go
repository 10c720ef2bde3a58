package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	cherrors "chat-sync/errors"
)

// CommandKind tags the user-initiated intent variants.
type CommandKind string

const (
	KindCreateRoom  CommandKind = "create_room"
	KindJoinRoom    CommandKind = "join_room"
	KindLeaveRoom   CommandKind = "leave_room"
	KindSendMessage CommandKind = "send_message"
	KindMarkRead    CommandKind = "mark_read"
)

// Command is the closed set of user intents handled by the dispatcher.
// Each variant validates itself; a command that fails validation must never
// reach the backend.
type Command interface {
	Kind() CommandKind
	Validate() error
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Room names and descriptions must not carry markup-significant characters.
	_ = v.RegisterValidation("markupfree", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), `<>"'`)
	})
	return v
}

func wrapValidation(err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", cherrors.ErrValidation, err)
	}
	return nil
}

type CreateRoom struct {
	Name        string `validate:"required,min=2,max=100,markupfree"`
	Description string `validate:"max=500,markupfree"`
	CreatorID   string `validate:"required"`
}

func (c CreateRoom) Kind() CommandKind { return KindCreateRoom }

func (c CreateRoom) Validate() error {
	return wrapValidation(validate.Struct(c))
}

type JoinRoom struct {
	RoomID string `validate:"required"`
	UserID string `validate:"required"`
}

func (c JoinRoom) Kind() CommandKind { return KindJoinRoom }

func (c JoinRoom) Validate() error {
	return wrapValidation(validate.Struct(c))
}

type LeaveRoom struct {
	RoomID string `validate:"required"`
	UserID string `validate:"required"`
}

func (c LeaveRoom) Kind() CommandKind { return KindLeaveRoom }

func (c LeaveRoom) Validate() error {
	return wrapValidation(validate.Struct(c))
}

type SendMessage struct {
	RoomID   string `validate:"required"`
	SenderID string `validate:"required"`
	Content  string `validate:"required"`
	Type     MessageType
}

func (c SendMessage) Kind() CommandKind { return KindSendMessage }

// Validate applies the per-type content rules. Text is bounded at 1000
// characters; image and file carry an opaque URL or path token. Unknown
// types are rejected here even though remote decoding is lenient: local
// input is held to the strict contract.
func (c SendMessage) Validate() error {
	if err := validate.Struct(c); err != nil {
		return wrapValidation(err)
	}
	switch c.Type {
	case TypeText:
		if len([]rune(c.Content)) > 1000 {
			return cherrors.Validation("text content exceeds 1000 characters")
		}
	case TypeImage, TypeFile:
		if strings.TrimSpace(c.Content) == "" {
			return cherrors.Validation("%s content must be a URL or path token", c.Type)
		}
	default:
		return cherrors.Validation("unknown message type %q", c.Type)
	}
	return nil
}

type MarkRead struct {
	RoomID    string `validate:"required"`
	MessageID string `validate:"required"`
	UserID    string `validate:"required"`
}

func (c MarkRead) Kind() CommandKind { return KindMarkRead }

func (c MarkRead) Validate() error {
	return wrapValidation(validate.Struct(c))
}
