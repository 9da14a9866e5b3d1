package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/mathewtroy/candle/docstore"
	"github.com/mathewtroy/candle/events"
	"github.com/mathewtroy/candle/identity"
	models "github.com/mathewtroy/candle/model"
	"github.com/mathewtroy/candle/repository"
)

type RegisterInput struct {
	Handle   string
	Email    string
	Password string
	Avatar   *ImageFile
}

// Registrar creates identities with a unique case-insensitive handle.
type Registrar struct {
	identities repository.IdentityRepository
	provider   identity.Provider
	images     *ImagePipeline
	events     EventPublisher
}

func NewRegistrar(identities repository.IdentityRepository, provider identity.Provider, images *ImagePipeline, events EventPublisher) *Registrar {
	return &Registrar{
		identities: identities,
		provider:   provider,
		images:     images,
		events:     events,
	}
}

func (r *Registrar) Register(ctx context.Context, in RegisterInput) (*models.Identity, error) {
	handle, err := NormalizeHandle(in.Handle)
	if err != nil {
		return nil, err
	}
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, ErrMissingPassword
	}
	handleLower := FoldHandle(handle)
	emailLower := strings.ToLower(email)

	if err := r.checkAvailable(ctx, handleLower, email); err != nil {
		return nil, err
	}

	var avatarURL string
	if in.Avatar != nil {
		avatarURL, err = r.images.Process(ctx, *in.Avatar)
		if err != nil {
			return nil, err
		}
	}

	account, err := r.provider.CreateAccount(ctx, email, in.Password)
	if errors.Is(err, identity.ErrEmailExists) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		log.Printf("Failed to create account for %s: %v", handle, err)
		return nil, ErrRegistrationFailed
	}

	rb := &rollback{provider: r.provider, identities: r.identities, accountID: account.ID}

	if err := r.identities.ReserveHandle(ctx, handleLower, account.ID); err != nil {
		rb.run(ctx)
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return nil, ErrHandleTaken
		}
		log.Printf("Failed to reserve handle %s: %v", handleLower, err)
		return nil, ErrRegistrationFailed
	}
	rb.handleLower = handleLower

	if err := r.identities.ReserveEmail(ctx, emailLower, account.ID); err != nil {
		rb.run(ctx)
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return nil, ErrEmailTaken
		}
		log.Printf("Failed to reserve email for %s: %v", handleLower, err)
		return nil, ErrRegistrationFailed
	}
	rb.emailLower = emailLower

	profile := identity.ProfileUpdate{DisplayName: &handle}
	if avatarURL != "" {
		profile.PhotoURL = &avatarURL
	}
	if err := r.provider.UpdateProfile(ctx, account.ID, profile); err != nil {
		log.Printf("Failed to update profile of %s: %v", account.ID, err)
		rb.run(ctx)
		return nil, ErrRegistrationFailed
	}

	ident := &models.Identity{
		ID:          account.ID,
		Handle:      handle,
		HandleLower: handleLower,
		Email:       email,
		AvatarURL:   avatarURL,
		Role:        models.RoleUser,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.identities.Create(ctx, ident); err != nil {
		log.Printf("Failed to write identity %s: %v", account.ID, err)
		rb.run(ctx)
		return nil, ErrRegistrationFailed
	}

	publish(r.events, events.IdentityRegistered, events.IdentityRegisteredEvent{
		IdentityID: ident.ID,
		Handle:     ident.Handle,
		Timestamp:  ident.CreatedAt,
	})

	return ident, nil
}

func (r *Registrar) checkAvailable(ctx context.Context, handleLower, email string) error {
	_, err := r.identities.FindByHandleLower(ctx, handleLower)
	if err == nil {
		return ErrHandleTaken
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return storeErr("check handle", err)
	}

	_, err = r.identities.FindByEmail(ctx, email)
	if err == nil {
		return ErrEmailTaken
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return storeErr("check email", err)
	}
	return nil
}

// rollback undoes the partial effects of a failed registration.
type rollback struct {
	provider    identity.Provider
	identities  repository.IdentityRepository
	accountID   string
	handleLower string
	emailLower  string
}

func (rb *rollback) run(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	if rb.emailLower != "" {
		if err := rb.identities.ReleaseEmail(ctx, rb.emailLower); err != nil {
			log.Printf("Failed to release email reservation: %v", err)
		}
	}
	if rb.handleLower != "" {
		if err := rb.identities.ReleaseHandle(ctx, rb.handleLower); err != nil {
			log.Printf("Failed to release handle %s: %v", rb.handleLower, err)
		}
	}
	if err := rb.provider.DeleteAccount(ctx, rb.accountID); err != nil {
		log.Printf("Failed to delete account %s after failed registration: %v", rb.accountID, err)
	}
}
