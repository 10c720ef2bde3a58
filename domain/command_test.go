package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	cherrors "chat-sync/errors"
)

func Test_CreateRoom_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cmd     CreateRoom
		wantErr bool
	}{
		{
			name: "valid",
			cmd:  CreateRoom{Name: "war room", Description: "planning", CreatorID: "u1"},
		},
		{
			name:    "empty name",
			cmd:     CreateRoom{Name: "", CreatorID: "u1"},
			wantErr: true,
		},
		{
			name:    "name too short",
			cmd:     CreateRoom{Name: "a", CreatorID: "u1"},
			wantErr: true,
		},
		{
			name:    "name too long",
			cmd:     CreateRoom{Name: strings.Repeat("a", 101), CreatorID: "u1"},
			wantErr: true,
		},
		{
			name:    "markup characters rejected",
			cmd:     CreateRoom{Name: `<script>`, CreatorID: "u1"},
			wantErr: true,
		},
		{
			name:    "quote in description rejected",
			cmd:     CreateRoom{Name: "war room", Description: `it's`, CreatorID: "u1"},
			wantErr: true,
		},
		{
			name:    "missing creator",
			cmd:     CreateRoom{Name: "war room"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			err := tt.cmd.Validate()
			if tt.wantErr {
				req.ErrorIs(err, cherrors.ErrValidation)
				return
			}
			req.NoError(err)
		})
	}
}

func Test_SendMessage_Validation_Per_Type(t *testing.T) {
	tests := []struct {
		name    string
		cmd     SendMessage
		wantErr bool
	}{
		{
			name: "text within bounds",
			cmd:  SendMessage{RoomID: "r1", SenderID: "u1", Content: "hello", Type: TypeText},
		},
		{
			name:    "text too long",
			cmd:     SendMessage{RoomID: "r1", SenderID: "u1", Content: strings.Repeat("x", 1001), Type: TypeText},
			wantErr: true,
		},
		{
			name: "image token",
			cmd:  SendMessage{RoomID: "r1", SenderID: "u1", Content: "https://cdn/img.png", Type: TypeImage},
		},
		{
			name:    "file token blank",
			cmd:     SendMessage{RoomID: "r1", SenderID: "u1", Content: "   ", Type: TypeFile},
			wantErr: true,
		},
		{
			name:    "unknown type rejected locally",
			cmd:     SendMessage{RoomID: "r1", SenderID: "u1", Content: "x", Type: MessageType("video")},
			wantErr: true,
		},
		{
			name:    "missing room",
			cmd:     SendMessage{SenderID: "u1", Content: "x", Type: TypeText},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			err := tt.cmd.Validate()
			if tt.wantErr {
				req.ErrorIs(err, cherrors.ErrValidation)
				return
			}
			req.NoError(err)
		})
	}
}

func Test_MarkRead_Requires_All_Ids(t *testing.T) {
	req := require.New(t)
	req.NoError(MarkRead{RoomID: "r1", MessageID: "m1", UserID: "u1"}.Validate())
	req.ErrorIs(MarkRead{RoomID: "r1", MessageID: "m1"}.Validate(), cherrors.ErrValidation)
}
