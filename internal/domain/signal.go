package domain

import "time"

// Messenger represents the contact channel attached to a signal.
type Messenger string

// Supported messengers.
const (
	MessengerTelegram Messenger = "telegram"
	MessengerWhatsApp Messenger = "whatsapp"
	MessengerViber    Messenger = "viber"
)

// IsValid checks if the messenger is supported.
func (m Messenger) IsValid() bool {
	return m == MessengerTelegram || m == MessengerWhatsApp || m == MessengerViber
}

// ContactLink returns the deep link for contacting a user on the given messenger.
func (m Messenger) ContactLink(contact string) string {
	switch m {
	case MessengerTelegram:
		return "https://t.me/" + contact
	case MessengerWhatsApp:
		return "https://wa.me/" + contact
	case MessengerViber:
		return "viber://chat?number=" + contact
	}
	return "#"
}

// Signal represents a time-limited, location-tagged post advertising a
// user's availability. All fields except IsActive are immutable after creation.
type Signal struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Intent      string    `json:"intent"`
	PhotoURL    string    `json:"photo_url"`
	Messenger   Messenger `json:"messenger"`
	ContactInfo string    `json:"contact_info"`
	Gender      string    `json:"gender"`
	HasPlace    bool      `json:"has_place"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	IsActive    bool      `json:"is_active"`
}

// VisibleAt reports whether the signal should be returned by queries at the
// given instant: flagged active and not yet past its expiry timestamp.
func (s *Signal) VisibleAt(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}

// ExpiredAt reports whether the signal's lifetime has passed, regardless of
// the active flag. Expired signals are purged from the in-memory store.
func (s *Signal) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
