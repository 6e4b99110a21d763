package models

import (
	"time"

	"gorm.io/gorm"
)

// Number is one WhatsApp identity registered by a tenant. The live
// connection state lives in the session registry; this row is the CRM-side
// record that survives restarts.
type Number struct {
	gorm.Model
	NumberID    string `json:"numberId" gorm:"uniqueIndex"`
	TenantID    string `json:"tenantId" gorm:"index"`
	PhoneNumber string `json:"phoneNumber"`
	Label       string `json:"label"`
}

// NumberCreateRequest is the create() payload on the control surface.
type NumberCreateRequest struct {
	NumberID    string `json:"numberId"`
	TenantID    string `json:"tenantId"`
	PhoneNumber string `json:"phoneNumber"`
	Label       string `json:"label"`
}

// SendTextRequest is the send() payload on the control surface.
type SendTextRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// SendMediaRequest is the sendMedia() payload on the control surface.
// Media is base64 encoded.
type SendMediaRequest struct {
	To       string `json:"to"`
	Kind     string `json:"kind"`
	Media    string `json:"media"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
}

// NumberStatus is one entry in the list() response: the registered number
// plus its live session state.
type NumberStatus struct {
	NumberID    string        `json:"numberId"`
	TenantID    string        `json:"tenantId"`
	PhoneNumber string        `json:"phoneNumber"`
	Label       string        `json:"label,omitempty"`
	Status      SessionStatus `json:"status"`
	DisplayName string        `json:"pushName,omitempty"`
	ConnectedAt *time.Time    `json:"connectedAt,omitempty"`
}
