package models

import (
	"time"
)

// Post is stored at posts/{id}. AuthorHandle and AvatarURL are copies of
// the author's identity taken at write time.
type Post struct {
	ID           string    `json:"id"`
	AuthorID     string    `json:"authorId"`
	AuthorHandle string    `json:"authorHandle"`
	Content      string    `json:"content"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	LikeCount    int64     `json:"likeCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

type PostWithLikeStatus struct {
	Post
	LikedByViewer bool `json:"likedByViewer"`
}

// Like is stored at posts/{postId}/likes/{userId}.
type Like struct {
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}
