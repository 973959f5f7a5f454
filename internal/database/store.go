package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	dbconfig "flickpick/pkg/database"
	"flickpick/pkg/interfaces"
	"flickpick/pkg/types"
)

// Store implements interfaces.Store over SQLite. All writes funnel through
// a single goroutine; reads run concurrently against the pool. Each store
// call is its own atomic row-level operation: no cross-call transaction is
// offered to the coordinator.
type Store struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	log          zerolog.Logger
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens the database, applies pragmas and schema, and starts the
// writer goroutine.
func NewStore(config *dbconfig.Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := dbconfig.ApplySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		log:          log.With().Str("module", "database.store").Logger(),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop serializes all writes. Failed operations are not retried: a
// repeated non-idempotent write (a roster append, for instance) could
// duplicate side effects.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(s.db)
			if err != nil {
				s.log.Error().Err(err).Msg("database write failed")
			}
			op.result <- err

		case <-s.shutdown:
			s.log.Debug().Msg("write loop shutting down")
			return
		}
	}
}

func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errors.New("store is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return errors.New("write operation timeout")
	case <-s.shutdown:
		return errors.New("store is shutting down")
	}
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, session *types.Session) error {
	return s.executeWrite(func(db *sql.DB) error {
		participantsJSON, err := json.Marshal(session.Participants)
		if err != nil {
			return fmt.Errorf("failed to marshal participants: %w", err)
		}

		query := `
			INSERT INTO sessions (id, code, created_by, participants, active, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			session.ID,
			session.Code,
			session.CreatedBy,
			string(participantsJSON),
			session.Active,
			session.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSessionByCode retrieves a session by its 5-character code.
func (s *Store) GetSessionByCode(ctx context.Context, code string) (*types.Session, error) {
	query := `
		SELECT id, code, created_by, participants, active, created_at
		FROM sessions
		WHERE code = ?
	`
	row := s.db.QueryRowContext(ctx, query, code)

	var session types.Session
	var participantsJSON string

	err := row.Scan(
		&session.ID,
		&session.Code,
		&session.CreatedBy,
		&participantsJSON,
		&session.Active,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if err := json.Unmarshal([]byte(participantsJSON), &session.Participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}

	return &session, nil
}

// UpdateSession applies a partial update to one session row. Nil patch
// fields are left untouched.
func (s *Store) UpdateSession(ctx context.Context, sessionID string, patch interfaces.SessionPatch) error {
	return s.executeWrite(func(db *sql.DB) error {
		setClauses := make([]string, 0, 3)
		args := make([]any, 0, 4)

		if patch.Participants != nil {
			participantsJSON, err := json.Marshal(*patch.Participants)
			if err != nil {
				return fmt.Errorf("failed to marshal participants: %w", err)
			}
			setClauses = append(setClauses, "participants = ?")
			args = append(args, string(participantsJSON))
		}
		if patch.CreatedBy != nil {
			setClauses = append(setClauses, "created_by = ?")
			args = append(args, *patch.CreatedBy)
		}
		if patch.Active != nil {
			setClauses = append(setClauses, "active = ?")
			args = append(args, *patch.Active)
		}
		if len(setClauses) == 0 {
			return nil
		}

		query := "UPDATE sessions SET "
		for i, clause := range setClauses {
			if i > 0 {
				query += ", "
			}
			query += clause
		}
		query += " WHERE id = ?"
		args = append(args, sessionID)

		result, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return interfaces.ErrSessionNotFound
		}
		return nil
	})
}

// AddFilm inserts a film. A duplicate external id within the session
// surfaces as ErrFilmAlreadyAdded.
func (s *Store) AddFilm(ctx context.Context, film *types.Film) error {
	return s.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO films (id, session_id, external_id, title, year, poster, description, rating, added_by, added_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			film.ID,
			film.SessionID,
			film.ExternalID,
			film.Title,
			film.Year,
			film.Poster,
			film.Description,
			film.Rating,
			film.AddedBy,
			film.AddedAt,
		)
		if err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
				return interfaces.ErrFilmAlreadyAdded
			}
			return fmt.Errorf("failed to insert film: %w", err)
		}
		return nil
	})
}

// GetFilm retrieves one film by id.
func (s *Store) GetFilm(ctx context.Context, filmID string) (*types.Film, error) {
	query := `
		SELECT id, session_id, external_id, title, year, poster, description, rating, added_by, added_at
		FROM films
		WHERE id = ?
	`
	row := s.db.QueryRowContext(ctx, query, filmID)

	var film types.Film
	err := row.Scan(
		&film.ID,
		&film.SessionID,
		&film.ExternalID,
		&film.Title,
		&film.Year,
		&film.Poster,
		&film.Description,
		&film.Rating,
		&film.AddedBy,
		&film.AddedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrFilmNotFound
		}
		return nil, fmt.Errorf("failed to query film: %w", err)
	}
	return &film, nil
}

// ListFilms returns a session's catalog in insertion order.
func (s *Store) ListFilms(ctx context.Context, sessionID string) ([]*types.Film, error) {
	query := `
		SELECT id, session_id, external_id, title, year, poster, description, rating, added_by, added_at
		FROM films
		WHERE session_id = ?
		ORDER BY rowid ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query films: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var films []*types.Film
	for rows.Next() {
		var film types.Film
		err := rows.Scan(
			&film.ID,
			&film.SessionID,
			&film.ExternalID,
			&film.Title,
			&film.Year,
			&film.Poster,
			&film.Description,
			&film.Rating,
			&film.AddedBy,
			&film.AddedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan film row: %w", err)
		}
		films = append(films, &film)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating film rows: %w", err)
	}
	return films, nil
}

// DeleteFilm removes one film and its votes.
func (s *Store) DeleteFilm(ctx context.Context, filmID string) error {
	return s.executeWrite(func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, `DELETE FROM votes WHERE film_id = ?`, filmID); err != nil {
			return fmt.Errorf("failed to delete film votes: %w", err)
		}
		result, err := db.ExecContext(ctx, `DELETE FROM films WHERE id = ?`, filmID)
		if err != nil {
			return fmt.Errorf("failed to delete film: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return interfaces.ErrFilmNotFound
		}
		return nil
	})
}

// DeleteFilmsBySession removes a session's entire catalog.
func (s *Store) DeleteFilmsBySession(ctx context.Context, sessionID string) error {
	return s.executeWrite(func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, `DELETE FROM films WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("failed to delete films: %w", err)
		}
		return nil
	})
}

// AddVotes upserts votes. INSERT OR REPLACE over the (session, film,
// participant) primary key gives last-write-wins on repeat votes.
func (s *Store) AddVotes(ctx context.Context, votes []*types.Vote) error {
	if len(votes) == 0 {
		return nil
	}
	return s.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT OR REPLACE INTO votes (session_id, film_id, participant, verdict)
			VALUES (?, ?, ?, ?)
		`
		for _, vote := range votes {
			_, err := db.ExecContext(ctx, query,
				vote.SessionID,
				vote.FilmID,
				vote.Participant,
				string(vote.Verdict),
			)
			if err != nil {
				return fmt.Errorf("failed to insert vote: %w", err)
			}
		}
		return nil
	})
}

// ListVotes returns all votes recorded for a session.
func (s *Store) ListVotes(ctx context.Context, sessionID string) ([]*types.Vote, error) {
	query := `
		SELECT session_id, film_id, participant, verdict
		FROM votes
		WHERE session_id = ?
		ORDER BY rowid ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var votes []*types.Vote
	for rows.Next() {
		var vote types.Vote
		var verdict string
		if err := rows.Scan(&vote.SessionID, &vote.FilmID, &vote.Participant, &verdict); err != nil {
			return nil, fmt.Errorf("failed to scan vote row: %w", err)
		}
		vote.Verdict = types.Verdict(verdict)
		votes = append(votes, &vote)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vote rows: %w", err)
	}
	return votes, nil
}

// DeleteVotesBySession removes all votes for a session.
func (s *Store) DeleteVotesBySession(ctx context.Context, sessionID string) error {
	return s.executeWrite(func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, `DELETE FROM votes WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("failed to delete votes: %w", err)
		}
		return nil
	})
}

// HealthCheck validates connectivity and a basic read.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close shuts down the writer goroutine and the connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
