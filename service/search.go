package service

import (
	"context"
	"errors"
	"strings"

	"github.com/mathewtroy/candle/docstore"
	models "github.com/mathewtroy/candle/model"
	"github.com/mathewtroy/candle/repository"
)

const DefaultSuggestLimit = 5

type Search struct {
	identities repository.IdentityRepository
}

func NewSearch(identities repository.IdentityRepository) *Search {
	return &Search{identities: identities}
}

// Suggest returns up to limit display handles starting with prefix,
// ignoring case, ordered by their lowercase form.
func (s *Search) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = FoldHandle(strings.TrimSpace(prefix))
	if prefix == "" {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}

	found, err := s.identities.SuggestByPrefix(ctx, prefix, limit)
	if err != nil {
		return nil, storeErr("suggest handles", err)
	}

	handles := make([]string, 0, len(found))
	for _, ident := range found {
		handles = append(handles, ident.Handle)
	}
	return handles, nil
}

// FindExact resolves a handle to its identity, ignoring case.
func (s *Search) FindExact(ctx context.Context, handle string) (*models.Identity, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, ErrNotFound
	}

	ident, err := s.identities.FindByHandleLower(ctx, FoldHandle(handle))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("find handle", err)
	}
	return ident, nil
}
