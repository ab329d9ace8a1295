package entity

import "time"

// Notification is an inbox entry for one user. It doubles as the outbox row
// the relay worker publishes to the external transport.
type Notification struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Link        string            `json:"link,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	IsRead      bool              `json:"is_read"`
	Attempts    int               `json:"-"`
	DeliveredAt *time.Time        `json:"delivered_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NotificationPage is one page of a user's inbox
type NotificationPage struct {
	Total         int             `json:"total"`
	Notifications []*Notification `json:"notifications"`
	Page          int             `json:"page"`
	Limit         int             `json:"limit"`
}
