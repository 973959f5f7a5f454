package types

import (
	"time"
)

// Verdict is a participant's judgement of a single film.
type Verdict string

const (
	VerdictLike    Verdict = "like"
	VerdictDislike Verdict = "dislike"
)

// Session is one group voting round. The store owns the authoritative copy;
// coordinators read and mutate it through Store operations and never cache
// a session across requests. Participants is the persisted roster in join
// order, which doubles as the leadership tie-break.
type Session struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	CreatedBy    string    `json:"created_by"`
	Participants []string  `json:"participants"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// EffectiveLeader resolves who is authorized for leader-gated actions: the
// persisted creator while they remain on the roster, otherwise the first
// participant by join order, otherwise nobody. Callers recompute this on
// every gated action rather than caching it, because a leadership change
// triggered by a disconnect may not yet have been observed by the actor.
func (s *Session) EffectiveLeader() string {
	for _, name := range s.Participants {
		if name == s.CreatedBy {
			return s.CreatedBy
		}
	}
	if len(s.Participants) > 0 {
		return s.Participants[0]
	}
	return ""
}

// Film is one entry in a session's catalog. ExternalID is the film's
// identity in the external movie catalog and must be unique within a
// session.
type Film struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	ExternalID  int64     `json:"externalId"`
	Title       string    `json:"title"`
	Year        int       `json:"year"`
	Poster      string    `json:"poster"`
	Description string    `json:"description"`
	Rating      float64   `json:"rating"`
	AddedBy     string    `json:"addedBy"`
	AddedAt     time.Time `json:"addedAt"`
}

// Vote records one participant's verdict on one film. The (session, film,
// participant) triple is unique; a repeat vote overwrites the verdict.
type Vote struct {
	SessionID   string  `json:"session_id"`
	FilmID      string  `json:"filmId"`
	Participant string  `json:"participant"`
	Verdict     Verdict `json:"verdict"`
}

// FilmTally aggregates the votes cast for one film.
type FilmTally struct {
	Film     Film     `json:"film"`
	Likes    int      `json:"likes"`
	Dislikes int      `json:"dislikes"`
	Voters   []string `json:"voters"`
}

// Results is the deterministic outcome of a voting round. SuperMatch is the
// first film in catalog order liked by every participant with no dislikes;
// BestMatch is the film with the most likes, ties broken by catalog order.
type Results struct {
	SuperMatch        *FilmTally  `json:"superMatch"`
	BestMatch         *FilmTally  `json:"bestMatch"`
	Films             []FilmTally `json:"films"`
	TotalParticipants int         `json:"totalParticipants"`
	VotedParticipants int         `json:"votedParticipants"`
}

// Phase is the derived lifecycle state of a session's voting round. It is
// never persisted: Idle means no votes exist, Voting means votes exist but
// quorum has not been reached, Completed means every rostered participant
// has voted on every catalog film.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseVoting    Phase = "voting"
	PhaseCompleted Phase = "completed"
)
