package events

import (
	"time"
)

const (
	IdentityRegistered    = "identity.registered"
	IdentityAvatarChanged = "identity.avatar_changed"
	IdentityRoleChanged   = "identity.role_changed"
	IdentityDeleted       = "identity.deleted"
	PostCreated           = "post.created"
	PostDeleted           = "post.deleted"
	PostLikeToggled       = "post.like_toggled"
	PostLikesDrifted      = "post.likes_drifted"
)

// Event payloads
type IdentityRegisteredEvent struct {
	IdentityID string    `json:"identity_id"`
	Handle     string    `json:"handle"`
	Timestamp  time.Time `json:"timestamp"`
}

type IdentityAvatarChangedEvent struct {
	IdentityID   string    `json:"identity_id"`
	AvatarURL    string    `json:"avatar_url"`
	PostsUpdated int       `json:"posts_updated"`
	PostsSkipped int       `json:"posts_skipped"`
	PostsFailed  int       `json:"posts_failed"`
	Timestamp    time.Time `json:"timestamp"`
}

type IdentityRoleChangedEvent struct {
	IdentityID string    `json:"identity_id"`
	Role       string    `json:"role"`
	ChangedBy  string    `json:"changed_by"`
	Timestamp  time.Time `json:"timestamp"`
}

type IdentityDeletedEvent struct {
	IdentityID string    `json:"identity_id"`
	DeletedBy  string    `json:"deleted_by"`
	Timestamp  time.Time `json:"timestamp"`
}

type PostCreatedEvent struct {
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type PostDeletedEvent struct {
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Timestamp time.Time `json:"timestamp"`
}

type PostLikeToggledEvent struct {
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	Liked     bool      `json:"liked"`
	Timestamp time.Time `json:"timestamp"`
}

// PostLikesDriftedEvent reports a like record change whose counter update
// did not land.
type PostLikesDriftedEvent struct {
	PostID    string    `json:"post_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
