package models

import "time"

// Notification methods a trust-circle member can prefer for emergencies.
const (
	MethodPush     = "push"
	MethodSMS      = "sms"
	MethodTelegram = "telegram"
)

// ContactRef identifies one eligible emergency recipient resolved from the
// originator's trust circle, with enough detail to deliver through any channel.
type ContactRef struct {
	UserID         int64  `json:"user_id"`
	Name           string `json:"name"`
	Phone          string `json:"phone,omitempty"`
	Relationship   string `json:"relationship,omitempty"`
	Method         string `json:"method"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
}

// TrustCircleMember is the stored membership row. Only members with
// IsEmergencyContact set are resolved into ContactRefs.
type TrustCircleMember struct {
	OwnerID            int64     `json:"owner_id"`
	MemberID           int64     `json:"member_id"`
	Name               string    `json:"name"`
	Phone              string    `json:"phone,omitempty"`
	Relationship       string    `json:"relationship,omitempty"`
	IsEmergencyContact bool      `json:"is_emergency_contact"`
	PreferredMethod    string    `json:"preferred_method"`
	TelegramChatID     int64     `json:"telegram_chat_id,omitempty"`
	AddedAt            time.Time `json:"added_at"`
}
