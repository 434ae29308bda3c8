package model

import "time"

// User is an account. It is created either by registering a username and
// password, or on first GitHub login.
//
// WHY TWO IDENTITIES?
// Password accounts are identified by Username. GitHub accounts are
// identified by GitHubID, which survives a rename on GitHub. A GitHub
// account still gets a Username (its login) so snippets and logs can show
// a human-readable owner.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`                  // empty for GitHub-only accounts
	GitHubID     int64     `json:"githubId,omitempty"` // 0 when not linked
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
