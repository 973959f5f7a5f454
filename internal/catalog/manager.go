package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"flickpick/pkg/interfaces"
	"flickpick/pkg/types"
)

// Manager handles add and remove operations on a session's film catalog.
type Manager struct {
	store interfaces.Store
	rooms interfaces.Broadcaster
	log   zerolog.Logger
}

// NewManager creates a catalog manager.
func NewManager(store interfaces.Store, rooms interfaces.Broadcaster) *Manager {
	return &Manager{
		store: store,
		rooms: rooms,
		log:   log.With().Str("module", "catalog.manager").Logger(),
	}
}

// AddFilm persists a film and broadcasts film-added to the room. The
// broadcast carries films == nil, telling clients to merge the one film
// rather than replace their list. A duplicate external id within the
// session surfaces as ErrFilmAlreadyAdded.
func (m *Manager) AddFilm(ctx context.Context, code string, input types.FilmInput, addedBy string) error {
	if input.ExternalID <= 0 {
		return ErrInvalidExternalID
	}

	sess, err := m.store.GetSessionByCode(ctx, code)
	if err != nil {
		return err
	}

	film := &types.Film{
		ID:          uuid.New().String(),
		SessionID:   sess.ID,
		ExternalID:  input.ExternalID,
		Title:       input.Title,
		Year:        input.Year,
		Poster:      input.Poster,
		Description: input.Description,
		Rating:      input.Rating,
		AddedBy:     addedBy,
		AddedAt:     time.Now(),
	}

	if err := m.store.AddFilm(ctx, film); err != nil {
		return err
	}

	m.rooms.ToRoom(code, types.Event{
		Type:    types.EventFilmAdded,
		Payload: types.FilmAddedPayload{Film: *film, Films: nil},
	})

	m.log.Info().Str("session", code).Int64("external_id", film.ExternalID).Str("added_by", addedBy).Msg("film added")
	return nil
}

// RemoveFilm deletes a film and broadcasts film-removed. Only the
// participant who added the film may remove it.
func (m *Manager) RemoveFilm(ctx context.Context, code, filmID, requester string) error {
	sess, err := m.store.GetSessionByCode(ctx, code)
	if err != nil {
		return err
	}

	film, err := m.store.GetFilm(ctx, filmID)
	if err != nil {
		return err
	}
	if film.SessionID != sess.ID {
		return interfaces.ErrFilmNotFound
	}
	if film.AddedBy != requester {
		return interfaces.ErrUnauthorized
	}

	if err := m.store.DeleteFilm(ctx, filmID); err != nil {
		return err
	}

	m.rooms.ToRoom(code, types.Event{
		Type:    types.EventFilmRemoved,
		Payload: types.FilmRemovedPayload{FilmID: filmID, Films: nil},
	})

	m.log.Info().Str("session", code).Str("film", filmID).Str("requester", requester).Msg("film removed")
	return nil
}
