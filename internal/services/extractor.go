package services

import (
	"context"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/nimbuscrm/nimbus-backend/internal/models"
)

// LIDResolver maps an opaque @lid identity to its phone JID when the
// mapping is already known. Backed by the session's sqlstore LID map.
type LIDResolver interface {
	GetPNForLID(ctx context.Context, lid types.JID) (types.JID, error)
}

// MessageExtractor is the pure transform from a raw protocol envelope to a
// CanonicalMessage. System envelopes come back as nil and never reach the
// webhook consumer.
type MessageExtractor struct {
	lids LIDResolver
}

// NewMessageExtractor creates an extractor. lids may be nil; identities
// then pass through unresolved.
func NewMessageExtractor(lids LIDResolver) *MessageExtractor {
	return &MessageExtractor{lids: lids}
}

// Extract classifies one inbound envelope. Returns nil for
// protocol-control, reaction, key-distribution, ephemeral/view-once and
// device-sync envelopes.
func (x *MessageExtractor) Extract(ctx context.Context, evt *events.Message) *models.CanonicalMessage {
	msg := evt.Message
	if msg == nil || isSystemEnvelope(msg) {
		return nil
	}

	chat := x.resolveLID(ctx, evt.Info.Chat)
	sender := x.resolveLID(ctx, evt.Info.Sender)
	isGroup := chat.Server == types.GroupServer

	cm := &models.CanonicalMessage{
		MessageID:         evt.Info.ID,
		RemoteIdentity:    chat.ToNonAD().String(),
		FromSelf:          evt.Info.IsFromMe,
		SenderDisplayName: evt.Info.PushName,
		Timestamp:         evt.Info.Timestamp,
		IsGroup:           isGroup,
	}
	if isGroup {
		// The chat identifies the group; the sender is the participant.
		cm.SenderIdentity = sender.ToNonAD().String()
	}

	cm.Kind, cm.Text = classify(msg)
	return cm
}

// resolveLID normalizes @lid identities to phone JIDs when the mapping is
// already known; unknown aliases pass through untouched.
func (x *MessageExtractor) resolveLID(ctx context.Context, jid types.JID) types.JID {
	if x.lids == nil || jid.Server != types.HiddenUserServer {
		return jid
	}
	if pn, err := x.lids.GetPNForLID(ctx, jid.ToNonAD()); err == nil && !pn.IsEmpty() {
		return pn
	}
	return jid
}

// classify maps the envelope discriminant to a kind. Undeclared
// discriminants map to unknown with a nil text instead of leaking raw
// protocol type names.
func classify(msg *waE2E.Message) (models.MessageKind, *string) {
	switch {
	case msg.GetConversation() != "":
		return models.KindText, strPtr(msg.GetConversation())
	case msg.GetExtendedTextMessage() != nil:
		return models.KindText, strPtr(msg.GetExtendedTextMessage().GetText())
	case msg.GetImageMessage() != nil:
		return models.KindImage, captionPtr(msg.GetImageMessage().GetCaption())
	case msg.GetVideoMessage() != nil:
		return models.KindVideo, captionPtr(msg.GetVideoMessage().GetCaption())
	case msg.GetAudioMessage() != nil:
		if msg.GetAudioMessage().GetPTT() {
			return models.KindVoiceNote, nil
		}
		return models.KindAudio, nil
	case msg.GetDocumentMessage() != nil:
		return models.KindDocument, captionPtr(msg.GetDocumentMessage().GetCaption())
	case msg.GetStickerMessage() != nil:
		return models.KindSticker, nil
	case msg.GetLocationMessage() != nil:
		return models.KindLocation, captionPtr(msg.GetLocationMessage().GetName())
	case msg.GetContactMessage() != nil:
		return models.KindContact, captionPtr(msg.GetContactMessage().GetDisplayName())
	case msg.GetContactsArrayMessage() != nil:
		return models.KindContactList, captionPtr(msg.GetContactsArrayMessage().GetDisplayName())
	default:
		return models.KindUnknown, nil
	}
}

// isSystemEnvelope reports whether the envelope carries no user-visible
// content: protocol control, reactions, ephemeral/view-once wrappers,
// device sync, or a key distribution message travelling alone.
func isSystemEnvelope(msg *waE2E.Message) bool {
	switch {
	case msg.GetProtocolMessage() != nil,
		msg.GetReactionMessage() != nil,
		msg.GetEphemeralMessage() != nil,
		msg.GetViewOnceMessage() != nil,
		msg.GetDeviceSentMessage() != nil:
		return true
	}
	if msg.GetSenderKeyDistributionMessage() != nil && !hasContent(msg) {
		return true
	}
	return false
}

func hasContent(msg *waE2E.Message) bool {
	return msg.GetConversation() != "" ||
		msg.GetExtendedTextMessage() != nil ||
		msg.GetImageMessage() != nil ||
		msg.GetVideoMessage() != nil ||
		msg.GetAudioMessage() != nil ||
		msg.GetDocumentMessage() != nil ||
		msg.GetStickerMessage() != nil ||
		msg.GetLocationMessage() != nil ||
		msg.GetContactMessage() != nil ||
		msg.GetContactsArrayMessage() != nil
}

func strPtr(s string) *string {
	return &s
}

func captionPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
