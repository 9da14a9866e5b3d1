package api

import (
	"time"

	models "github.com/mathewtroy/candle/model"
)

type Empty struct{}

type Image struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

type RegisterRequest struct {
	Handle   string `json:"handle"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Avatar   *Image `json:"avatar,omitempty"`
}

type IdentityResponse struct {
	Identity *models.Identity `json:"identity"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Identity  *models.Identity `json:"identity"`
}

type SuggestRequest struct {
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit,omitempty"`
}

type SuggestResponse struct {
	Handles []string `json:"handles"`
}

type FindIdentityRequest struct {
	Handle string `json:"handle"`
}

type ChangeAvatarRequest struct {
	Image Image `json:"image"`
}

type ChangeAvatarResponse struct {
	URL     string `json:"url"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

type CreatePostRequest struct {
	Content string `json:"content"`
}

type PostResponse struct {
	Post *models.Post `json:"post"`
}

type DeletePostRequest struct {
	PostID string `json:"postId"`
}

type ToggleLikeRequest struct {
	PostID string `json:"postId"`
}

type ToggleLikeResponse struct {
	Liked bool `json:"liked"`
}

type ListIdentitiesResponse struct {
	Identities []*models.Identity `json:"identities"`
}

type SetRoleRequest struct {
	IdentityID string `json:"identityId"`
	Role       string `json:"role"`
}

type DeleteIdentityRequest struct {
	IdentityID string `json:"identityId"`
}

type DeleteIdentityResponse struct {
	PostsDeleted int `json:"postsDeleted"`
	PostsFailed  int `json:"postsFailed"`
}

// ReconcileLikesRequest recounts one post when PostID is set and every
// post otherwise.
type ReconcileLikesRequest struct {
	PostID string `json:"postId,omitempty"`
}

type ReconcileLikesResponse struct {
	Checked   int   `json:"checked"`
	Fixed     int   `json:"fixed"`
	Failed    int   `json:"failed"`
	LikeCount int64 `json:"likeCount,omitempty"`
}

type SubscribeFeedRequest struct {
	Handle string `json:"handle"`
}

type FeedUpdate struct {
	Posts []models.PostWithLikeStatus `json:"posts"`
}
