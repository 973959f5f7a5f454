package voting

import (
	"testing"

	"flickpick/pkg/types"
)

func filmFixture(id string) *types.Film {
	return &types.Film{ID: id, Title: "film " + id}
}

func voteFixture(filmID, participant string, verdict types.Verdict) *types.Vote {
	return &types.Vote{FilmID: filmID, Participant: participant, Verdict: verdict}
}

func TestComputeResults_SuperMatchRequiresUnanimousLikes(t *testing.T) {
	films := []*types.Film{filmFixture("f1"), filmFixture("f2")}
	participants := []string{"alice", "bob"}
	votes := []*types.Vote{
		voteFixture("f1", "alice", types.VerdictLike),
		voteFixture("f1", "bob", types.VerdictLike),
		voteFixture("f2", "alice", types.VerdictLike),
		voteFixture("f2", "bob", types.VerdictDislike),
	}

	results := ComputeResults(votes, films, participants)

	if results.SuperMatch == nil {
		t.Fatal("expected a super match")
	}
	if results.SuperMatch.Film.ID != "f1" {
		t.Errorf("expected super match f1, got %s", results.SuperMatch.Film.ID)
	}
}

func TestComputeResults_NoSuperMatchWithAnyDislike(t *testing.T) {
	films := []*types.Film{filmFixture("f1")}
	participants := []string{"alice", "bob", "carol"}
	votes := []*types.Vote{
		voteFixture("f1", "alice", types.VerdictLike),
		voteFixture("f1", "bob", types.VerdictLike),
		voteFixture("f1", "carol", types.VerdictDislike),
	}

	results := ComputeResults(votes, films, participants)

	if results.SuperMatch != nil {
		t.Errorf("expected no super match, got %s", results.SuperMatch.Film.ID)
	}
	if results.BestMatch == nil || results.BestMatch.Film.ID != "f1" {
		t.Error("best match should still be reported")
	}
}

func TestComputeResults_BestMatchTieGoesToCatalogOrder(t *testing.T) {
	films := []*types.Film{filmFixture("f1"), filmFixture("f2")}
	participants := []string{"alice", "bob"}
	// f1 and f2 both end at one like; f1 sits earlier in the catalog.
	votes := []*types.Vote{
		voteFixture("f1", "alice", types.VerdictLike),
		voteFixture("f1", "bob", types.VerdictDislike),
		voteFixture("f2", "alice", types.VerdictDislike),
		voteFixture("f2", "bob", types.VerdictLike),
	}

	results := ComputeResults(votes, films, participants)

	if results.BestMatch == nil {
		t.Fatal("expected a best match")
	}
	if results.BestMatch.Film.ID != "f1" {
		t.Errorf("tie should go to the earlier catalog entry, got %s", results.BestMatch.Film.ID)
	}
}

func TestComputeResults_Deterministic(t *testing.T) {
	films := []*types.Film{filmFixture("f1"), filmFixture("f2"), filmFixture("f3")}
	participants := []string{"alice", "bob"}
	votes := []*types.Vote{
		voteFixture("f2", "bob", types.VerdictLike),
		voteFixture("f1", "alice", types.VerdictLike),
		voteFixture("f3", "alice", types.VerdictDislike),
		voteFixture("f2", "alice", types.VerdictLike),
	}

	first := ComputeResults(votes, films, participants)
	second := ComputeResults(votes, films, participants)

	if first.BestMatch.Film.ID != second.BestMatch.Film.ID {
		t.Error("repeated computation disagreed on best match")
	}
	if len(first.Films) != len(second.Films) {
		t.Fatal("repeated computation disagreed on tally length")
	}
	for i := range first.Films {
		if first.Films[i].Film.ID != second.Films[i].Film.ID ||
			first.Films[i].Likes != second.Films[i].Likes ||
			first.Films[i].Dislikes != second.Films[i].Dislikes {
			t.Errorf("tally %d differs between runs", i)
		}
	}
}

func TestComputeResults_IgnoresVotesForRemovedFilms(t *testing.T) {
	films := []*types.Film{filmFixture("f1")}
	participants := []string{"alice"}
	votes := []*types.Vote{
		voteFixture("f1", "alice", types.VerdictLike),
		voteFixture("ghost", "alice", types.VerdictLike),
	}

	results := ComputeResults(votes, films, participants)

	if len(results.Films) != 1 {
		t.Fatalf("expected 1 tally, got %d", len(results.Films))
	}
	if results.Films[0].Likes != 1 {
		t.Errorf("expected 1 like on f1, got %d", results.Films[0].Likes)
	}
}

func TestComputeResults_VotedParticipantsCountsDistinctVoters(t *testing.T) {
	films := []*types.Film{filmFixture("f1"), filmFixture("f2")}
	participants := []string{"alice", "bob", "carol"}
	votes := []*types.Vote{
		voteFixture("f1", "alice", types.VerdictLike),
		voteFixture("f2", "alice", types.VerdictLike),
		voteFixture("f1", "bob", types.VerdictDislike),
	}

	results := ComputeResults(votes, films, participants)

	if results.VotedParticipants != 2 {
		t.Errorf("expected 2 distinct voters, got %d", results.VotedParticipants)
	}
	if results.TotalParticipants != 3 {
		t.Errorf("expected 3 total participants, got %d", results.TotalParticipants)
	}
}

func TestParticipantComplete_RequiresFullCoverage(t *testing.T) {
	films := []*types.Film{filmFixture("f1"), filmFixture("f2")}
	votes := []*types.Vote{
		voteFixture("f1", "alice", types.VerdictLike),
	}

	if participantComplete(votes, films, "alice") {
		t.Error("one vote of two films should not be complete")
	}

	votes = append(votes, voteFixture("f2", "alice", types.VerdictDislike))
	if !participantComplete(votes, films, "alice") {
		t.Error("full coverage should be complete")
	}
}

func TestParticipantComplete_EmptyCatalogIsNeverComplete(t *testing.T) {
	if participantComplete(nil, nil, "alice") {
		t.Error("an empty catalog has nothing to complete")
	}
}

func TestDerivePhase_Transitions(t *testing.T) {
	films := []*types.Film{filmFixture("f1")}
	participants := []string{"alice", "bob"}

	if phase := DerivePhase(nil, films, participants); phase != types.PhaseIdle {
		t.Errorf("no votes should be idle, got %v", phase)
	}

	votes := []*types.Vote{voteFixture("f1", "alice", types.VerdictLike)}
	if phase := DerivePhase(votes, films, participants); phase != types.PhaseVoting {
		t.Errorf("partial votes should be voting, got %v", phase)
	}

	votes = append(votes, voteFixture("f1", "bob", types.VerdictDislike))
	if phase := DerivePhase(votes, films, participants); phase != types.PhaseCompleted {
		t.Errorf("full coverage should be completed, got %v", phase)
	}
}

func TestDerivePhase_ReturnsToIdleAfterReset(t *testing.T) {
	// A reset deletes votes and films; the derived phase falls straight
	// back to idle without any stored state to clear.
	if phase := DerivePhase(nil, nil, []string{"alice"}); phase != types.PhaseIdle {
		t.Errorf("expected idle after reset, got %v", phase)
	}
}
