package voting

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"flickpick/pkg/interfaces"
	"flickpick/pkg/types"
)

// Coordinator drives the session voting round: Idle until votes exist,
// Voting while quorum is outstanding, Completed when every rostered
// participant has voted on every catalog film, Reset back to Idle. Phase
// is derived from persisted votes and films on each operation, never
// stored.
type Coordinator struct {
	store interfaces.Store
	rooms interfaces.Broadcaster
	log   zerolog.Logger
}

// NewCoordinator creates a voting coordinator.
func NewCoordinator(store interfaces.Store, rooms interfaces.Broadcaster) *Coordinator {
	return &Coordinator{
		store: store,
		rooms: rooms,
		log:   log.With().Str("module", "voting.coordinator").Logger(),
	}
}

// Start begins the voting round. Only the effective leader may start, the
// roster needs at least two participants, and the catalog at least one
// film. Leadership is recomputed here, not taken from any earlier lookup.
// The broadcast carries the persisted catalog, not a client-supplied list.
func (c *Coordinator) Start(ctx context.Context, code, requester string) error {
	sess, err := c.store.GetSessionByCode(ctx, code)
	if err != nil {
		return err
	}

	if leader := sess.EffectiveLeader(); leader == "" || requester != leader {
		return interfaces.ErrUnauthorized
	}
	if len(sess.Participants) < minParticipants {
		return ErrNotEnoughParticipants
	}

	films, err := c.store.ListFilms(ctx, sess.ID)
	if err != nil {
		return err
	}
	if len(films) == 0 {
		return ErrNoFilms
	}

	c.rooms.ToRoom(code, types.Event{
		Type:    types.EventVotingStarted,
		Payload: types.VotingStartedPayload{Films: dereference(films)},
	})

	c.log.Info().Str("session", code).Str("requester", requester).Int("films", len(films)).Msg("voting started")
	return nil
}

// CastVote persists a participant's verdict (last-write-wins on repeat)
// and tells the rest of the room. The sender is excluded from the
// broadcast; it already reflects its own vote locally.
func (c *Coordinator) CastVote(ctx context.Context, code, senderConnID, participant, filmID string, verdict types.Verdict) error {
	sess, err := c.store.GetSessionByCode(ctx, code)
	if err != nil {
		return err
	}

	film, err := c.store.GetFilm(ctx, filmID)
	if err != nil {
		return err
	}
	if film.SessionID != sess.ID {
		return interfaces.ErrFilmNotFound
	}

	vote := &types.Vote{
		SessionID:   sess.ID,
		FilmID:      filmID,
		Participant: participant,
		Verdict:     verdict,
	}
	if err := c.store.AddVotes(ctx, []*types.Vote{vote}); err != nil {
		return err
	}

	c.rooms.ToRoomExcept(code, senderConnID, types.Event{
		Type: types.EventVoteCast,
		Payload: types.VoteCastPayload{
			Participant: participant,
			FilmID:      filmID,
			Verdict:     verdict,
		},
	})

	return nil
}

// ReportCompletion handles a participant's self-reported completion ping.
// Quorum is recomputed from the persisted votes, catalog and roster, never
// from client-supplied counts. Short of quorum it broadcasts a progress
// ping; at quorum it computes the results and broadcasts
// voting-all-completed, the only transition into Completed.
func (c *Coordinator) ReportCompletion(ctx context.Context, code, participant string) error {
	sess, err := c.store.GetSessionByCode(ctx, code)
	if err != nil {
		return err
	}

	films, err := c.store.ListFilms(ctx, sess.ID)
	if err != nil {
		return err
	}
	votes, err := c.store.ListVotes(ctx, sess.ID)
	if err != nil {
		return err
	}

	completed := completedParticipants(votes, films, sess.Participants)
	total := len(sess.Participants)

	if total == 0 || completed < total {
		c.rooms.ToRoom(code, types.Event{
			Type: types.EventVotingProgress,
			Payload: types.VotingProgressPayload{
				Participant:    participant,
				CompletedCount: completed,
				TotalCount:     total,
			},
		})
		return nil
	}

	results := ComputeResults(votes, films, sess.Participants)
	c.rooms.ToRoom(code, types.Event{
		Type:    types.EventVotingAllCompleted,
		Payload: types.VotingAllCompletedPayload{Results: results},
	})

	c.log.Info().Str("session", code).Int("participants", total).Int("films", len(films)).Msg("voting completed")
	return nil
}

// Reset clears the session's films and votes and returns the room to the
// catalog-assembly screen. The roster and creator are untouched. Only the
// effective leader may reset.
func (c *Coordinator) Reset(ctx context.Context, code, requester string) error {
	sess, err := c.store.GetSessionByCode(ctx, code)
	if err != nil {
		return err
	}

	if leader := sess.EffectiveLeader(); leader == "" || requester != leader {
		return interfaces.ErrUnauthorized
	}

	if err := c.store.DeleteVotesBySession(ctx, sess.ID); err != nil {
		return err
	}
	if err := c.store.DeleteFilmsBySession(ctx, sess.ID); err != nil {
		return err
	}

	c.rooms.ToRoom(code, types.Event{
		Type:    types.EventGroupResetDone,
		Payload: types.GroupResetPayload{Message: "The group has been reset, pick some new films"},
	})

	c.log.Info().Str("session", code).Str("requester", requester).Msg("group reset")
	return nil
}

// minParticipants is the floor for starting a vote. One person alone has
// nothing to match against.
const minParticipants = 2

func dereference(films []*types.Film) []types.Film {
	out := make([]types.Film, 0, len(films))
	for _, f := range films {
		out = append(out, *f)
	}
	return out
}
