package backend

import (
	"github.com/samber/lo"

	"chat-sync/domain"
)

// Decoding is deliberately lenient: unknown enum tokens collapse to the
// most conservative value (type text, status sent) instead of failing, so
// one corrupt remote document never stalls a batch.

func DecodeRoom(doc RoomDocument) domain.Room {
	return domain.Room{
		ID:              doc.ID,
		Name:            doc.Name,
		Description:     doc.Description,
		CreatedBy:       doc.CreatedBy,
		CreatedAt:       doc.CreatedAt.UTC(),
		Participants:    doc.Participants,
		LastMessageID:   doc.LastMessageID,
		LastMessageTime: doc.LastMessageTime.UTC(),
	}
}

func DecodeMessage(doc MessageDocument) domain.Message {
	return domain.Message{
		ID:        doc.ID,
		RoomID:    doc.RoomID,
		SenderID:  doc.SenderID,
		Content:   doc.Content,
		Type:      domain.ParseMessageType(doc.Type),
		CreatedAt: doc.Timestamp.UTC(),
		Status:    domain.ParseMessageStatus(doc.Status),
		ReadBy:    doc.ReadBy,
	}
}

func DecodeRooms(docs []RoomDocument) []domain.Room {
	return lo.Map(docs, func(doc RoomDocument, _ int) domain.Room {
		return DecodeRoom(doc)
	})
}

func DecodeMessages(docs []MessageDocument) []domain.Message {
	return lo.Map(docs, func(doc MessageDocument, _ int) domain.Message {
		return DecodeMessage(doc)
	})
}
