// Package model defines the data structures shared by the account and
// snippet layers.
package model

import "time"

// Snippet is a piece of source code a user saved for later.
// Snippets are private: every read and write is scoped to UserID.
type Snippet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SnippetPatch is a partial update. Nil fields are left unchanged.
type SnippetPatch struct {
	Title *string `json:"title"`
	Code  *string `json:"code"`
}
