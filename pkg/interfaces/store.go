package interfaces

import (
	"context"

	"flickpick/pkg/types"
)

// SessionPatch is a partial session update. Nil fields are left untouched;
// each applied field is its own atomic row-level update from the caller's
// point of view. Multi-field consistency across separate UpdateSession
// calls is not guaranteed.
type SessionPatch struct {
	Participants *[]string
	CreatedBy    *string
	Active       *bool
}

// Store is the persistence contract the coordinator consumes. It is the
// source of truth for roster, catalog, votes and leadership; the registry
// holds only ephemeral presence.
type Store interface {
	CreateSession(ctx context.Context, session *types.Session) error
	GetSessionByCode(ctx context.Context, code string) (*types.Session, error)
	UpdateSession(ctx context.Context, sessionID string, patch SessionPatch) error

	AddFilm(ctx context.Context, film *types.Film) error
	GetFilm(ctx context.Context, filmID string) (*types.Film, error)
	ListFilms(ctx context.Context, sessionID string) ([]*types.Film, error)
	DeleteFilm(ctx context.Context, filmID string) error
	DeleteFilmsBySession(ctx context.Context, sessionID string) error

	AddVotes(ctx context.Context, votes []*types.Vote) error
	ListVotes(ctx context.Context, sessionID string) ([]*types.Vote, error)
	DeleteVotesBySession(ctx context.Context, sessionID string) error

	HealthCheck(ctx context.Context) error
	Close() error
}
