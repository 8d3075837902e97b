package models

import (
	"time"
)

// Note is a single rich-text note. Content holds HTML as produced by the editor.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Same reports whether both notes carry the same identity.
func (n *Note) Same(other *Note) bool {
	if n == nil || other == nil {
		return false
	}
	return n.ID == other.ID
}
