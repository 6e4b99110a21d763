package models

import "time"

// MessageKind classifies the user-visible content of a chat message.
type MessageKind string

const (
	KindText        MessageKind = "text"
	KindImage       MessageKind = "image"
	KindVideo       MessageKind = "video"
	KindAudio       MessageKind = "audio"
	KindVoiceNote   MessageKind = "voice-note"
	KindDocument    MessageKind = "document"
	KindSticker     MessageKind = "sticker"
	KindLocation    MessageKind = "location"
	KindContact     MessageKind = "contact"
	KindContactList MessageKind = "contact-list"
	KindUnknown     MessageKind = "unknown"
)

// CanonicalMessage is the normalized message record delivered to the
// webhook consumer. It is built once by the extractor, enriched with media
// and profile data, and never persisted by the gateway.
type CanonicalMessage struct {
	MessageID         string      `json:"messageId"`
	RemoteIdentity    string      `json:"remoteJid"`
	FromSelf          bool        `json:"fromMe"`
	SenderIdentity    string      `json:"senderJid,omitempty"`
	SenderDisplayName string      `json:"senderName,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
	Kind              MessageKind `json:"kind"`
	Text              *string     `json:"text"`
	Media             *MediaAsset `json:"media"`
	IsGroup           bool        `json:"isGroup"`
	GroupDisplayName  *string     `json:"groupName,omitempty"`
}

// MediaAsset describes one downloaded attachment in content-addressed
// storage. ContentHash is derived from the message id, so retried deliveries
// of the same message always resolve to the same asset.
type MediaAsset struct {
	ContentHash      string `json:"contentHash"`
	StorageKey       string `json:"storageKey"`
	MimeType         string `json:"mimeType"`
	OriginalFilename string `json:"originalFilename,omitempty"`
	SizeBytes        int64  `json:"sizeBytes"`
}

// MessageStatus values reported through message_status events.
const (
	StatusError     = "error"
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)
