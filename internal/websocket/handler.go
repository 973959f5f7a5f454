package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"flickpick/internal/catalog"
	"flickpick/internal/voting"
	"flickpick/pkg/interfaces"
	"flickpick/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Options tunes the per-connection heartbeat and read behavior. Zero
// fields fall back to the defaults.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
}

func (o *Options) withDefaults() Options {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32 * 1024
	}
	return opts
}

// SessionManager is the join-protocol and disconnect surface the handler
// dispatches to.
type SessionManager interface {
	Join(ctx context.Context, conn *Connection, code, name string) error
	Leave(ctx context.Context, conn *Connection)
}

// CatalogManager mediates film list mutations.
type CatalogManager interface {
	AddFilm(ctx context.Context, code string, input types.FilmInput, addedBy string) error
	RemoveFilm(ctx context.Context, code, filmID, requester string) error
}

// VotingCoordinator mediates the voting state machine.
type VotingCoordinator interface {
	Start(ctx context.Context, code, requester string) error
	CastVote(ctx context.Context, code, senderConnID, participant, filmID string, verdict types.Verdict) error
	ReportCompletion(ctx context.Context, code, participant string) error
	Reset(ctx context.Context, code, requester string) error
}

// Handler upgrades HTTP requests to WebSocket connections and dispatches
// decoded events to the managers. One goroutine per connection: events on
// a single connection are handled in transport order, while connections
// interleave freely. A failed operation notifies only its own connection.
type Handler struct {
	sessions    SessionManager
	catalog     CatalogManager
	voting      VotingCoordinator
	rateLimiter *RateLimiter
	opts        Options
	log         zerolog.Logger
}

// NewHandler creates a WebSocket event handler. A nil opts uses the
// default heartbeat tuning.
func NewHandler(sessions SessionManager, catalog CatalogManager, voting VotingCoordinator, opts *Options) *Handler {
	return &Handler{
		sessions:    sessions,
		catalog:     catalog,
		voting:      voting,
		rateLimiter: NewRateLimiter(),
		opts:        opts.withDefaults(),
		log:         log.With().Str("module", "websocket.handler").Logger(),
	}
}

// HandleWebSocket upgrades the request and runs the connection's event
// loop until the transport closes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection(wsConn)
	h.log.Debug().Str("conn", conn.ID()).Msg("connection established")

	go h.handleConnection(conn)
}

// handleConnection owns one connection's lifecycle: heartbeat, the read
// loop, and disconnect handling on exit.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.sessions.Leave(context.Background(), conn)
		h.rateLimiter.Forget(conn.ID())
		_ = conn.Close()
	}()

	conn.conn.SetReadLimit(h.opts.ReadLimit)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.opts.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Str("conn", conn.ID()).Msg("read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if !h.rateLimiter.Allow(conn.ID()) {
			h.notifyError(conn, ErrRateLimited)
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.notifyError(conn, types.ErrInvalidPayload)
			continue
		}

		if err := h.dispatch(context.Background(), conn, env); err != nil {
			h.notifyError(conn, err)
		}
	}
}

// dispatch decodes the envelope into its tagged variant and invokes the
// matching manager. Payloads that do not decode and validate are rejected
// here, before any mutation.
func (h *Handler) dispatch(ctx context.Context, conn *Connection, env types.Envelope) error {
	switch env.Type {
	case types.EventSessionJoin:
		var p types.JoinPayload
		if err := types.DecodePayload(env.Payload, &p); err != nil {
			return err
		}
		return h.sessions.Join(ctx, conn, p.Code, p.Name)

	case types.EventSessionLeave:
		var p types.LeavePayload
		if err := types.DecodePayload(env.Payload, &p); err != nil {
			return err
		}
		h.sessions.Leave(ctx, conn)
		return nil

	case types.EventFilmAdd:
		var p types.FilmAddPayload
		if err := types.DecodePayload(env.Payload, &p); err != nil {
			return err
		}
		code, name, err := h.requireJoined(conn, p.Code)
		if err != nil {
			return err
		}
		return h.catalog.AddFilm(ctx, code, p.Film, name)

	case types.EventFilmRemove:
		var p types.FilmRemovePayload
		if err := types.DecodePayload(env.Payload, &p); err != nil {
			return err
		}
		code, name, err := h.requireJoined(conn, p.Code)
		if err != nil {
			return err
		}
		return h.catalog.RemoveFilm(ctx, code, p.FilmID, name)

	case types.EventVotingStart:
		var p types.VotingStartPayload
		if err := types.DecodePayload(env.Payload, &p); err != nil {
			return err
		}
		code, name, err := h.requireJoined(conn, p.Code)
		if err != nil {
			return err
		}
		return h.voting.Start(ctx, code, name)

	case types.EventVotingVote:
		var p types.VotePayload
		if err := types.DecodePayload(env.Payload, &p); err != nil {
			return err
		}
		code, name, err := h.requireJoined(conn, p.Code)
		if err != nil {
			return err
		}
		return h.voting.CastVote(ctx, code, conn.ID(), name, p.FilmID, p.Verdict)

	case types.EventVotingCompleted:
		var p types.CompletedPayload
		if err := types.DecodePayload(env.Payload, &p); err != nil {
			return err
		}
		code, name, err := h.requireJoined(conn, p.Code)
		if err != nil {
			return err
		}
		return h.voting.ReportCompletion(ctx, code, name)

	case types.EventGroupReset:
		var p types.ResetPayload
		if err := types.DecodePayload(env.Payload, &p); err != nil {
			return err
		}
		code, name, err := h.requireJoined(conn, p.Code)
		if err != nil {
			return err
		}
		return h.voting.Reset(ctx, code, name)

	default:
		return ErrUnknownEventType
	}
}

// requireJoined resolves the acting participant from the connection's join
// state and checks the event targets the joined session.
func (h *Handler) requireJoined(conn *Connection, rawCode string) (code, name string, err error) {
	joinedCode, joinedName, joined := conn.Identity()
	if !joined {
		return "", "", ErrNotJoined
	}
	code, err = types.NormalizeCode(rawCode)
	if err != nil {
		return "", "", err
	}
	if code != joinedCode {
		return "", "", ErrSessionMismatch
	}
	return code, joinedName, nil
}

// notifyError reports a failed operation to the originating connection
// only. Taxonomy errors carry their own message; anything else is a store
// or internal failure, logged with context and flattened to a generic
// message.
func (h *Handler) notifyError(conn *Connection, opErr error) {
	message := "something went wrong, please try again"
	if isUserFacing(opErr) {
		message = opErr.Error()
	} else {
		h.log.Error().Err(opErr).Str("conn", conn.ID()).Msg("operation failed")
	}

	event := types.Event{
		Type:    types.EventError,
		Payload: types.ErrorPayload{Message: message},
	}
	if err := conn.WriteEvent(event); err != nil {
		h.log.Warn().Err(err).Str("conn", conn.ID()).Msg("error notification failed")
	}
}

func isUserFacing(err error) bool {
	for _, known := range []error{
		types.ErrInvalidCode,
		types.ErrInvalidName,
		types.ErrInvalidPayload,
		interfaces.ErrSessionNotFound,
		interfaces.ErrFilmNotFound,
		interfaces.ErrFilmAlreadyAdded,
		interfaces.ErrUnauthorized,
		catalog.ErrInvalidExternalID,
		voting.ErrNotEnoughParticipants,
		voting.ErrNoFilms,
		ErrNotJoined,
		ErrSessionMismatch,
		ErrUnknownEventType,
		ErrRateLimited,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}
