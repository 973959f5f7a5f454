package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"flickpick/internal/websocket"
	"flickpick/pkg/interfaces"
	"flickpick/pkg/types"
)

// Manager runs the join protocol and disconnect handling, reconciling the
// ephemeral presence registry with the persisted roster. Joins and
// departures for one session are serialized through a per-code mutex so
// that concurrent roster read-modify-writes cannot silently overwrite each
// other; events for different sessions interleave freely.
type Manager struct {
	store    interfaces.Store
	registry *websocket.Registry
	rooms    interfaces.Broadcaster

	mu    sync.Mutex
	locks map[string]*codeLock

	log zerolog.Logger
}

// codeLock is a per-session mutex with a holder count, so map entries can
// be dropped once the last holder releases instead of accumulating one
// entry per code ever joined.
type codeLock struct {
	sync.Mutex
	refs int
}

// NewManager creates a session manager.
func NewManager(store interfaces.Store, registry *websocket.Registry, rooms interfaces.Broadcaster) *Manager {
	return &Manager{
		store:    store,
		registry: registry,
		rooms:    rooms,
		locks:    make(map[string]*codeLock),
		log:      log.With().Str("module", "session.manager").Logger(),
	}
}

func (m *Manager) lock(code string) *codeLock {
	m.mu.Lock()
	l, ok := m.locks[code]
	if !ok {
		l = &codeLock{}
		m.locks[code] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return l
}

func (m *Manager) unlock(code string, l *codeLock) {
	l.Unlock()

	m.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, code)
	}
	m.mu.Unlock()
}

// Join validates and reconciles a participant's entry into a session. The
// untrusted code and name are normalized first; the persisted roster is
// the truth the registry is reconciled against. A reconnecting participant
// (already present) does not generate a join broadcast to peers, but the
// joining connection always receives a fresh roster snapshot and the full
// film catalog.
func (m *Manager) Join(ctx context.Context, conn *websocket.Connection, rawCode, rawName string) error {
	code, err := types.NormalizeCode(rawCode)
	if err != nil {
		return err
	}
	name, err := types.NormalizeName(rawName)
	if err != nil {
		return err
	}

	l := m.lock(code)
	defer m.unlock(code, l)

	sess, err := m.store.GetSessionByCode(ctx, code)
	if err != nil {
		return err
	}

	if !contains(sess.Participants, name) {
		roster := append(append([]string{}, sess.Participants...), name)
		if err := m.store.UpdateSession(ctx, sess.ID, interfaces.SessionPatch{Participants: &roster}); err != nil {
			m.log.Error().Err(err).Str("session", code).Str("participant", name).Msg("roster append failed")
			return fmt.Errorf("failed to update roster: %w", err)
		}
		sess.Participants = roster
	}

	wasAlreadyPresent := m.registry.HasPresence(code, name)
	m.registry.Register(code, name, conn)
	conn.SetIdentity(code, name)

	m.registry.Prune(code, sess.Participants)

	joined := types.Event{
		Type: types.EventParticipantJoined,
		Payload: types.ParticipantJoinedPayload{
			Participant:  name,
			Participants: sess.Participants,
		},
	}
	if !wasAlreadyPresent {
		m.rooms.ToRoomExcept(code, conn.ID(), joined)
	}
	m.rooms.ToConnection(conn.ID(), joined)

	films, err := m.store.ListFilms(ctx, sess.ID)
	if err != nil {
		m.log.Error().Err(err).Str("session", code).Msg("catalog snapshot failed")
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	m.rooms.ToConnection(conn.ID(), types.Event{
		Type:    types.EventCatalogSnapshot,
		Payload: types.CatalogSnapshotPayload{Films: dereference(films)},
	})

	m.log.Info().Str("session", code).Str("participant", name).Bool("reconnect", wasAlreadyPresent).Msg("participant joined")
	return nil
}

// Leave handles both explicit departure and transport close. The persisted
// session is re-read as the source of truth, leadership is reassigned if
// the departing participant is the persisted creator, the roster entry is
// removed, the connection is unregistered, and the remaining room members
// are told. The three persisted mutations are independent read-modify-write
// calls; a failure between them leaves a partially-updated but well-typed
// session, which is accepted rather than masked.
func (m *Manager) Leave(ctx context.Context, conn *websocket.Connection) {
	code, name, joined := conn.Identity()
	if !joined {
		return
	}
	conn.ClearIdentity()

	l := m.lock(code)
	defer m.unlock(code, l)

	sess, err := m.store.GetSessionByCode(ctx, code)
	if err != nil {
		m.registry.Unregister(code, conn.ID())
		m.log.Warn().Err(err).Str("session", code).Str("participant", name).Msg("session lookup failed during departure")
		return
	}

	m.reassignLeadership(ctx, sess, name)

	if contains(sess.Participants, name) {
		roster := remove(sess.Participants, name)
		if err := m.store.UpdateSession(ctx, sess.ID, interfaces.SessionPatch{Participants: &roster}); err != nil {
			m.log.Error().Err(err).Str("session", code).Str("participant", name).Msg("roster removal failed")
		}
	}

	m.registry.Unregister(code, conn.ID())

	updated, err := m.store.GetSessionByCode(ctx, code)
	if err != nil {
		m.log.Warn().Err(err).Str("session", code).Msg("roster re-read failed during departure")
		return
	}
	m.rooms.ToRoom(code, types.Event{
		Type: types.EventParticipantLeft,
		Payload: types.ParticipantLeftPayload{
			Participant:  name,
			Participants: updated.Participants,
		},
	})

	m.log.Info().Str("session", code).Str("participant", name).Msg("participant left")
}

// reassignLeadership transfers the creator role when the departing
// participant is the persisted creator. Reassignment authority tracks
// persisted created_by, not derived effective leadership, so a stale
// effective leader departing does not trigger a transfer.
func (m *Manager) reassignLeadership(ctx context.Context, sess *types.Session, departing string) {
	if sess.CreatedBy != departing {
		return
	}

	remaining := remove(sess.Participants, departing)
	if len(remaining) == 0 {
		return
	}

	newCreator := remaining[0]
	if err := m.store.UpdateSession(ctx, sess.ID, interfaces.SessionPatch{CreatedBy: &newCreator}); err != nil {
		m.log.Error().Err(err).Str("session", sess.Code).Str("new_creator", newCreator).Msg("leadership reassignment failed")
		return
	}
	sess.CreatedBy = newCreator

	m.rooms.ToRoom(sess.Code, types.Event{
		Type: types.EventCreatorChanged,
		Payload: types.CreatorChangedPayload{
			NewCreator: newCreator,
			Message:    fmt.Sprintf("%s is now the group leader", newCreator),
		},
	})
	m.log.Info().Str("session", sess.Code).Str("new_creator", newCreator).Msg("leadership reassigned")
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func remove(names []string, name string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func dereference(films []*types.Film) []types.Film {
	out := make([]types.Film, 0, len(films))
	for _, f := range films {
		out = append(out, *f)
	}
	return out
}
