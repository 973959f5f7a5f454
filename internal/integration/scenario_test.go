package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"flickpick/internal/api"
	"flickpick/internal/catalog"
	"flickpick/internal/database"
	"flickpick/internal/room"
	"flickpick/internal/session"
	"flickpick/internal/voting"
	"flickpick/internal/websocket"
	"flickpick/pkg/client"
	dbconfig "flickpick/pkg/database"
	"flickpick/pkg/types"
)

// newTestStack wires the real components behind an httptest server: the
// same topology as the production entrypoint, minus the process plumbing.
func newTestStack(t *testing.T) string {
	t.Helper()

	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "integration.db")

	store, err := database.NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	registry := websocket.NewRegistry()
	rooms := room.NewBroadcaster(registry)
	sessions := session.NewManager(store, registry, rooms)
	films := catalog.NewManager(store, rooms)
	votes := voting.NewCoordinator(store, rooms)
	wsHandler := websocket.NewHandler(sessions, films, votes, nil)
	apiServer := api.NewServer(store, registry)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(registry.CloseAll)
	return srv.URL
}

func createSession(t *testing.T, baseURL, name string) *types.Session {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"name": name})
	resp, err := http.Post(baseURL+"/api/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create session request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created struct {
		Session *types.Session `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return created.Session
}

func connect(t *testing.T, baseURL, code, name string) *client.Client {
	t.Helper()

	c := client.New(baseURL, code, name, nil)
	if err := c.Connect(t.Context()); err != nil {
		t.Fatalf("%s connect failed: %v", name, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func decodeInto(t *testing.T, event *client.ReceivedEvent, dst any) {
	t.Helper()
	if err := json.Unmarshal(event.Payload, dst); err != nil {
		t.Fatalf("decode %s payload: %v", event.Type, err)
	}
}

func TestScenario_FullVotingRound(t *testing.T) {
	baseURL := newTestStack(t)
	sess := createSession(t, baseURL, "alice")

	alice := connect(t, baseURL, sess.Code, "alice")
	if _, err := alice.WaitFor(types.EventCatalogSnapshot, 2*time.Second); err != nil {
		t.Fatalf("alice never got her catalog snapshot: %v", err)
	}

	bob := connect(t, baseURL, sess.Code, "bob")
	if _, err := bob.WaitFor(types.EventCatalogSnapshot, 2*time.Second); err != nil {
		t.Fatalf("bob never got his catalog snapshot: %v", err)
	}

	// Alice sees bob arrive.
	event, err := alice.WaitFor(types.EventParticipantJoined, 2*time.Second)
	if err != nil {
		t.Fatalf("alice never saw bob join: %v", err)
	}
	var joined types.ParticipantJoinedPayload
	decodeInto(t, event, &joined)
	if joined.Participant != "bob" || len(joined.Participants) != 2 {
		t.Fatalf("unexpected join payload: %+v", joined)
	}

	// Catalog assembly: one film from each participant.
	if err := alice.AddFilm(types.FilmInput{ExternalID: 101, Title: "Heat", Year: 1995}); err != nil {
		t.Fatalf("alice AddFilm failed: %v", err)
	}
	if err := bob.AddFilm(types.FilmInput{ExternalID: 202, Title: "Ronin", Year: 1998}); err != nil {
		t.Fatalf("bob AddFilm failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := alice.WaitFor(types.EventFilmAdded, 2*time.Second); err != nil {
			t.Fatalf("alice missed film-added %d: %v", i, err)
		}
		if _, err := bob.WaitFor(types.EventFilmAdded, 2*time.Second); err != nil {
			t.Fatalf("bob missed film-added %d: %v", i, err)
		}
	}

	// A non-leader cannot open the round.
	if err := bob.StartVoting(); err != nil {
		t.Fatalf("bob StartVoting send failed: %v", err)
	}
	if _, err := bob.WaitFor(types.EventError, 2*time.Second); err != nil {
		t.Fatal("bob's start attempt should be rejected with an error notification")
	}

	// The leader opens it; everyone gets the persisted catalog.
	if err := alice.StartVoting(); err != nil {
		t.Fatalf("alice StartVoting send failed: %v", err)
	}
	event, err = bob.WaitFor(types.EventVotingStarted, 2*time.Second)
	if err != nil {
		t.Fatalf("bob missed voting-started: %v", err)
	}
	var started types.VotingStartedPayload
	decodeInto(t, event, &started)
	if len(started.Films) != 2 || started.Films[0].Title != "Heat" {
		t.Fatalf("voting-started should carry the catalog in order, got %+v", started.Films)
	}
	if _, err := alice.WaitFor(types.EventVotingStarted, 2*time.Second); err != nil {
		t.Fatalf("alice missed voting-started: %v", err)
	}

	heat, ronin := started.Films[0], started.Films[1]

	// Alice votes everything and reports done: quorum is still short.
	for _, film := range []types.Film{heat, ronin} {
		if err := alice.Vote(film.ID, types.VerdictLike); err != nil {
			t.Fatalf("alice Vote failed: %v", err)
		}
	}
	if err := alice.ReportCompleted(); err != nil {
		t.Fatalf("alice ReportCompleted failed: %v", err)
	}
	event, err = alice.WaitFor(types.EventVotingProgress, 2*time.Second)
	if err != nil {
		t.Fatalf("alice missed the progress ping: %v", err)
	}
	var progress types.VotingProgressPayload
	decodeInto(t, event, &progress)
	if progress.CompletedCount != 1 || progress.TotalCount != 2 {
		t.Fatalf("expected 1/2 completed, got %+v", progress)
	}

	// Bob's votes reach alice as vote-cast but never echo back to bob.
	if err := bob.Vote(heat.ID, types.VerdictLike); err != nil {
		t.Fatalf("bob Vote failed: %v", err)
	}
	event, err = alice.WaitFor(types.EventVoteCast, 2*time.Second)
	if err != nil {
		t.Fatalf("alice missed bob's vote: %v", err)
	}
	var cast types.VoteCastPayload
	decodeInto(t, event, &cast)
	if cast.Participant != "bob" || cast.FilmID != heat.ID {
		t.Fatalf("unexpected vote-cast payload: %+v", cast)
	}

	if err := bob.Vote(ronin.ID, types.VerdictDislike); err != nil {
		t.Fatalf("bob Vote failed: %v", err)
	}
	if err := bob.ReportCompleted(); err != nil {
		t.Fatalf("bob ReportCompleted failed: %v", err)
	}

	// Quorum reached: both receive the final results.
	for _, participant := range []*client.Client{alice, bob} {
		event, err = participant.WaitFor(types.EventVotingAllCompleted, 2*time.Second)
		if err != nil {
			t.Fatalf("missed voting-all-completed: %v", err)
		}
	}
	var final types.VotingAllCompletedPayload
	decodeInto(t, event, &final)
	if final.Results.SuperMatch == nil || final.Results.SuperMatch.Film.ID != heat.ID {
		t.Fatalf("Heat was liked unanimously and should be the super match, got %+v", final.Results.SuperMatch)
	}
	if final.Results.BestMatch == nil || final.Results.BestMatch.Film.ID != heat.ID {
		t.Fatalf("unexpected best match: %+v", final.Results.BestMatch)
	}
	if final.Results.VotedParticipants != 2 || final.Results.TotalParticipants != 2 {
		t.Fatalf("unexpected participation counts: %+v", final.Results)
	}
}

func TestScenario_LeaderFailoverAndReset(t *testing.T) {
	baseURL := newTestStack(t)
	sess := createSession(t, baseURL, "alice")

	alice := connect(t, baseURL, sess.Code, "alice")
	bob := connect(t, baseURL, sess.Code, "bob")
	if _, err := bob.WaitFor(types.EventCatalogSnapshot, 2*time.Second); err != nil {
		t.Fatalf("bob never got his catalog snapshot: %v", err)
	}

	if err := bob.AddFilm(types.FilmInput{ExternalID: 301, Title: "Thief"}); err != nil {
		t.Fatalf("bob AddFilm failed: %v", err)
	}
	if _, err := bob.WaitFor(types.EventFilmAdded, 2*time.Second); err != nil {
		t.Fatalf("bob missed film-added: %v", err)
	}

	// The creator's transport drops; leadership moves to bob.
	if err := alice.Close(); err != nil {
		t.Fatalf("alice Close failed: %v", err)
	}
	event, err := bob.WaitFor(types.EventCreatorChanged, 2*time.Second)
	if err != nil {
		t.Fatalf("bob missed creator-changed: %v", err)
	}
	var changed types.CreatorChangedPayload
	decodeInto(t, event, &changed)
	if changed.NewCreator != "bob" {
		t.Fatalf("expected bob as new creator, got %+v", changed)
	}
	if _, err := bob.WaitFor(types.EventParticipantLeft, 2*time.Second); err != nil {
		t.Fatalf("bob missed participant-left: %v", err)
	}

	// The new leader can reset the group.
	if err := bob.Reset(); err != nil {
		t.Fatalf("bob Reset failed: %v", err)
	}
	if _, err := bob.WaitFor(types.EventGroupResetDone, 2*time.Second); err != nil {
		t.Fatalf("bob missed group-reset: %v", err)
	}

	// A third participant joining now sees an empty catalog.
	carol := connect(t, baseURL, sess.Code, "carol")
	event, err = carol.WaitFor(types.EventCatalogSnapshot, 2*time.Second)
	if err != nil {
		t.Fatalf("carol never got her catalog snapshot: %v", err)
	}
	var snapshot types.CatalogSnapshotPayload
	decodeInto(t, event, &snapshot)
	if len(snapshot.Films) != 0 {
		t.Fatalf("catalog should be empty after reset, got %+v", snapshot.Films)
	}
}

func TestScenario_ReconnectResynchronizes(t *testing.T) {
	baseURL := newTestStack(t)
	sess := createSession(t, baseURL, "alice")

	alice := connect(t, baseURL, sess.Code, "alice")
	if _, err := alice.WaitFor(types.EventCatalogSnapshot, 2*time.Second); err != nil {
		t.Fatalf("alice never got her first snapshot: %v", err)
	}

	if err := alice.AddFilm(types.FilmInput{ExternalID: 401, Title: "Collateral"}); err != nil {
		t.Fatalf("AddFilm failed: %v", err)
	}
	if _, err := alice.WaitFor(types.EventFilmAdded, 2*time.Second); err != nil {
		t.Fatalf("alice missed film-added: %v", err)
	}

	// A fresh join on a new connection pulls the full catalog again.
	second := connect(t, baseURL, sess.Code, "alice")
	event, err := second.WaitFor(types.EventCatalogSnapshot, 2*time.Second)
	if err != nil {
		t.Fatalf("reconnecting client never got a snapshot: %v", err)
	}
	var snapshot types.CatalogSnapshotPayload
	decodeInto(t, event, &snapshot)
	if len(snapshot.Films) != 1 || snapshot.Films[0].Title != "Collateral" {
		t.Fatalf("snapshot should carry the persisted catalog, got %+v", snapshot.Films)
	}
}
