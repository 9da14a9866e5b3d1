package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mathewtroy/candle/docstore/memory"
	"github.com/mathewtroy/candle/identity"
	models "github.com/mathewtroy/candle/model"
	"github.com/mathewtroy/candle/repository"
	"github.com/mathewtroy/candle/upload"
)

type testEnv struct {
	store      *memory.Store
	identities repository.IdentityRepository
	posts      repository.PostRepository
	likes      repository.LikeRepository
	provider   *fakeProvider
	uploader   *fakeUploader
	events     *recordingPublisher
	images     *ImagePipeline
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	uploader := &fakeUploader{}
	return &testEnv{
		store:      store,
		identities: repository.NewIdentityRepository(store),
		posts:      repository.NewPostRepository(store),
		likes:      repository.NewLikeRepository(store),
		provider:   newFakeProvider(),
		uploader:   uploader,
		events:     &recordingPublisher{},
		images: NewImagePipeline(uploader, upload.CompressOptions{
			MaxBytes:     200 * 1024,
			MaxDimension: 300,
		}, 2*1024*1024),
	}
}

func (e *testEnv) registrar() *Registrar {
	return NewRegistrar(e.identities, e.provider, e.images, e.events)
}

func (e *testEnv) search() *Search {
	return NewSearch(e.identities)
}

func (e *testEnv) postService() *PostService {
	return NewPostService(e.identities, e.posts, e.likes, e.events)
}

func (e *testEnv) seedIdentity(t *testing.T, id, handle string, role models.Role) *models.Identity {
	t.Helper()
	ident := &models.Identity{
		ID:          id,
		Handle:      handle,
		HandleLower: FoldHandle(handle),
		Email:       strings.ToLower(handle) + "@example.com",
		Role:        role,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, e.identities.Create(context.Background(), ident))
	require.NoError(t, e.identities.ReserveHandle(context.Background(), ident.HandleLower, id))
	return ident
}

func (e *testEnv) seedPost(t *testing.T, id, authorID string, at time.Time) *models.Post {
	t.Helper()
	post := &models.Post{
		ID:        id,
		AuthorID:  authorID,
		Content:   "post " + id,
		CreatedAt: at,
	}
	require.NoError(t, e.posts.Create(context.Background(), post))
	return post
}

func pngImage(t *testing.T, w, h int) ImageFile {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return ImageFile{Name: "avatar.png", ContentType: "image/png", Data: buf.Bytes()}
}

type fakeUploader struct {
	mu      sync.Mutex
	err     error
	uploads []string
}

func (u *fakeUploader) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.uploads = append(u.uploads, filename)
	return fmt.Sprintf("https://img.example.com/%d/%s", len(u.uploads), filename), nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) published(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

type fakeProvider struct {
	mu        sync.Mutex
	accounts  map[string]*identity.Account
	passwords map[string]string
	sessions  map[string]*models.Session
	nextID    int

	createErr error
	updateErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		accounts:  make(map[string]*identity.Account),
		passwords: make(map[string]string),
		sessions:  make(map[string]*models.Session),
	}
}

func (p *fakeProvider) CreateAccount(ctx context.Context, email, password string) (*identity.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	for _, a := range p.accounts {
		if strings.EqualFold(a.Email, email) {
			return nil, identity.ErrEmailExists
		}
	}
	p.nextID++
	account := &identity.Account{ID: fmt.Sprintf("uid-%d", p.nextID), Email: email}
	p.accounts[account.ID] = account
	p.passwords[account.ID] = password
	return account, nil
}

func (p *fakeProvider) UpdateProfile(ctx context.Context, accountID string, update identity.ProfileUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return p.updateErr
	}
	account, ok := p.accounts[accountID]
	if !ok {
		return identity.ErrAccountNotFound
	}
	if update.DisplayName != nil {
		account.DisplayName = *update.DisplayName
	}
	if update.PhotoURL != nil {
		account.PhotoURL = *update.PhotoURL
	}
	return nil
}

func (p *fakeProvider) DeleteAccount(ctx context.Context, accountID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[accountID]; !ok {
		return identity.ErrAccountNotFound
	}
	delete(p.accounts, accountID)
	for token, s := range p.sessions {
		if s.UserID == accountID {
			delete(p.sessions, token)
		}
	}
	return nil
}

func (p *fakeProvider) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, a := range p.accounts {
		if strings.EqualFold(a.Email, email) && p.passwords[id] == password {
			s := &models.Session{
				ID:          "sess-" + id,
				UserID:      id,
				Email:       a.Email,
				DisplayName: a.DisplayName,
				Token:       "token-" + id,
				ExpiresAt:   time.Now().Add(time.Hour),
			}
			p.sessions[s.Token] = s
			return s, nil
		}
	}
	return nil, identity.ErrInvalidCredentials
}

func (p *fakeProvider) SignOut(ctx context.Context, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[token]; !ok {
		return identity.ErrInvalidSession
	}
	delete(p.sessions, token)
	return nil
}

func (p *fakeProvider) CurrentSession(ctx context.Context, token string) (*models.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[token]
	if !ok {
		return nil, identity.ErrInvalidSession
	}
	return s, nil
}

func (p *fakeProvider) accountCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.accounts)
}

func (p *fakeProvider) account(id string) (identity.Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[id]
	if !ok {
		return identity.Account{}, false
	}
	return *a, true
}

var errBoom = errors.New("boom")
