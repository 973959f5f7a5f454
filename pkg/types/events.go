package types

import (
	"encoding/json"
)

// Client-to-server event types.
const (
	EventSessionJoin     = "session:join"
	EventSessionLeave    = "session:leave"
	EventFilmAdd         = "film:add"
	EventFilmRemove      = "film:remove"
	EventVotingStart     = "voting:start"
	EventVotingVote      = "voting:vote"
	EventVotingCompleted = "voting:completed"
	EventGroupReset      = "group:reset"
)

// Server-to-client event types.
const (
	EventParticipantJoined  = "participant-joined"
	EventParticipantLeft    = "participant-left"
	EventFilmAdded          = "film-added"
	EventFilmRemoved        = "film-removed"
	EventCatalogSnapshot    = "catalog-snapshot"
	EventVotingStarted      = "voting-started"
	EventVoteCast           = "vote-cast"
	EventVotingProgress     = "voting-completed"
	EventVotingAllCompleted = "voting-all-completed"
	EventCreatorChanged     = "creator-changed"
	EventGroupResetDone     = "group-reset"
	EventError              = "notification:error"
)

// Envelope is the wire form of an incoming event: a type tag plus a raw
// payload decoded into the matching variant at the boundary.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is an outgoing event with an already-structured payload.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Client payload variants. Each carries the full schema the server accepts
// for that event type; anything that does not decode and validate against
// the variant is rejected before it reaches a manager.

type JoinPayload struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name" validate:"required"`
}

type LeavePayload struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name"`
}

// FilmInput is the client-supplied portion of a film; the server assigns
// id, session, adder and timestamp.
type FilmInput struct {
	ExternalID  int64   `json:"externalId" validate:"required,gt=0"`
	Title       string  `json:"title" validate:"required"`
	Year        int     `json:"year"`
	Poster      string  `json:"poster"`
	Description string  `json:"description"`
	Rating      float64 `json:"rating"`
}

type FilmAddPayload struct {
	Code string    `json:"code" validate:"required"`
	Film FilmInput `json:"film" validate:"required"`
}

type FilmRemovePayload struct {
	Code   string `json:"code" validate:"required"`
	FilmID string `json:"filmId" validate:"required"`
}

// VotingStartPayload carries the films the starting client currently sees.
// The server broadcasts the persisted catalog, not this list; the field is
// accepted for wire compatibility only.
type VotingStartPayload struct {
	Code  string      `json:"code" validate:"required"`
	Films []FilmInput `json:"films"`
}

type VotePayload struct {
	Code    string  `json:"code" validate:"required"`
	FilmID  string  `json:"filmId" validate:"required"`
	Verdict Verdict `json:"verdict" validate:"required,oneof=like dislike"`
}

type CompletedPayload struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name"`
}

type ResetPayload struct {
	Code string `json:"code" validate:"required"`
}

// Server payload variants.

type ParticipantJoinedPayload struct {
	Participant  string   `json:"participant"`
	Participants []string `json:"participants"`
}

type ParticipantLeftPayload struct {
	Participant  string   `json:"participant"`
	Participants []string `json:"participants"`
}

// FilmAddedPayload and FilmRemovedPayload carry Films == nil as the
// incremental-update signal: clients merge the single change instead of
// replacing their list.
type FilmAddedPayload struct {
	Film  Film   `json:"film"`
	Films []Film `json:"films"`
}

type FilmRemovedPayload struct {
	FilmID string `json:"filmId"`
	Films  []Film `json:"films"`
}

// CatalogSnapshotPayload is the full-catalog push a joining connection
// receives to resynchronize its local state.
type CatalogSnapshotPayload struct {
	Films []Film `json:"films"`
}

type VotingStartedPayload struct {
	Films []Film `json:"films"`
}

type VoteCastPayload struct {
	Participant string  `json:"participant"`
	FilmID      string  `json:"filmId"`
	Verdict     Verdict `json:"verdict"`
}

type VotingProgressPayload struct {
	Participant    string `json:"participant"`
	CompletedCount int    `json:"completedCount"`
	TotalCount     int    `json:"totalCount"`
}

type VotingAllCompletedPayload struct {
	Results Results `json:"results"`
}

type CreatorChangedPayload struct {
	NewCreator string `json:"newCreator"`
	Message    string `json:"message"`
}

type GroupResetPayload struct {
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
