package services

import (
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"chat-sync/domain"
	cherrors "chat-sync/errors"
)

// ClassifyAttachment sniffs a local file's MIME type and maps it to the
// message type the wire contract knows: image/* becomes image, everything
// else file.
func ClassifyAttachment(path string) (domain.MessageType, error) {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return "", cherrors.Validation("cannot read attachment %s: %v", path, err)
	}
	if strings.HasPrefix(mime.String(), "image/") {
		return domain.TypeImage, nil
	}
	return domain.TypeFile, nil
}

// SendAttachment classifies the file at path and dispatches a SendMessage
// whose content is the path token. Upload of the bytes themselves is the
// storage collaborator's concern, not this core's.
func (d *Dispatcher) SendAttachment(ctx context.Context, roomID, senderID, path string) (Receipt, error) {
	msgType, err := ClassifyAttachment(path)
	if err != nil {
		return Receipt{}, err
	}
	return d.Do(ctx, domain.SendMessage{
		RoomID:   roomID,
		SenderID: senderID,
		Content:  path,
		Type:     msgType,
	})
}
