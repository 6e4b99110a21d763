package models

import "time"

// SessionStatus is the lifecycle state of one connection to the chat network.
type SessionStatus string

const (
	StatusConnecting   SessionStatus = "connecting"
	StatusQRCode       SessionStatus = "qr_code"
	StatusConnected    SessionStatus = "connected"
	StatusReconnecting SessionStatus = "reconnecting"
	StatusDisconnected SessionStatus = "disconnected"
	StatusLoggedOut    SessionStatus = "logged_out"
)

// SessionInfo is a point-in-time snapshot of a session, safe to hand to
// handlers without holding controller locks.
type SessionInfo struct {
	SessionID   string        `json:"sessionId"`
	NumberID    string        `json:"numberId,omitempty"`
	TenantID    string        `json:"tenantId"`
	Status      SessionStatus `json:"status"`
	QRCode      string        `json:"qrCode,omitempty"`
	PhoneNumber string        `json:"phoneNumber,omitempty"`
	DisplayName string        `json:"pushName,omitempty"`
	ConnectedAt *time.Time    `json:"connectedAt,omitempty"`
}

// SessionMeta is persisted next to a session's credential store so that
// restoration after a restart does not depend on the relational database.
type SessionMeta struct {
	NumberID    string `json:"numberId"`
	TenantID    string `json:"tenantId"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}
