package domain

import "time"

const (
	VariantDefault     = "default"
	VariantDestructive = "destructive"
)

// Notice is a user-visible notification raised by the core, e.g. on session expiry.
type Notice struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Variant     string    `json:"variant"`
	CreatedAt   time.Time `json:"created_at"`
}
