package voting

import (
	"flickpick/pkg/types"
)

// ComputeResults derives the voting outcome from persisted state. It is a
// pure function: deterministic for a given (votes, films, participants)
// input and free of side effects.
//
// SuperMatch is the first film in catalog order with likes equal to the
// participant count and zero dislikes. BestMatch is the film with the
// greatest like count; the first film reaching the maximum wins ties and
// later equal films do not replace it. Votes referencing films no longer
// in the catalog are ignored.
func ComputeResults(votes []*types.Vote, films []*types.Film, participants []string) types.Results {
	tallies := tallyByFilm(votes, films)

	results := types.Results{
		Films:             tallies,
		TotalParticipants: len(participants),
	}

	voters := make(map[string]bool)
	for _, vote := range votes {
		voters[vote.Participant] = true
	}
	results.VotedParticipants = len(voters)

	for i := range tallies {
		if results.SuperMatch == nil &&
			tallies[i].Likes == len(participants) &&
			tallies[i].Dislikes == 0 {
			results.SuperMatch = &tallies[i]
		}
		if results.BestMatch == nil || tallies[i].Likes > results.BestMatch.Likes {
			results.BestMatch = &tallies[i]
		}
	}

	return results
}

// tallyByFilm groups votes by film in catalog order.
func tallyByFilm(votes []*types.Vote, films []*types.Film) []types.FilmTally {
	byFilm := make(map[string][]*types.Vote)
	for _, vote := range votes {
		byFilm[vote.FilmID] = append(byFilm[vote.FilmID], vote)
	}

	tallies := make([]types.FilmTally, 0, len(films))
	for _, film := range films {
		tally := types.FilmTally{Film: *film}
		for _, vote := range byFilm[film.ID] {
			switch vote.Verdict {
			case types.VerdictLike:
				tally.Likes++
			case types.VerdictDislike:
				tally.Dislikes++
			}
			tally.Voters = append(tally.Voters, vote.Participant)
		}
		tallies = append(tallies, tally)
	}
	return tallies
}

// participantComplete reports whether a participant has a vote recorded
// for every film currently in the catalog. The store holds at most one
// vote per (participant, film), so coverage equals exactly-one.
func participantComplete(votes []*types.Vote, films []*types.Film, participant string) bool {
	voted := make(map[string]bool)
	for _, vote := range votes {
		if vote.Participant == participant {
			voted[vote.FilmID] = true
		}
	}
	for _, film := range films {
		if !voted[film.ID] {
			return false
		}
	}
	return len(films) > 0
}

// completedParticipants counts the roster members who have voted on every
// catalog film.
func completedParticipants(votes []*types.Vote, films []*types.Film, participants []string) int {
	count := 0
	for _, name := range participants {
		if participantComplete(votes, films, name) {
			count++
		}
	}
	return count
}

// DerivePhase computes the non-persisted session phase: Idle while no
// votes exist, Completed once every rostered participant has voted on
// every film, Voting in between.
func DerivePhase(votes []*types.Vote, films []*types.Film, participants []string) types.Phase {
	if len(votes) == 0 {
		return types.PhaseIdle
	}
	if len(participants) > 0 && completedParticipants(votes, films, participants) == len(participants) {
		return types.PhaseCompleted
	}
	return types.PhaseVoting
}
