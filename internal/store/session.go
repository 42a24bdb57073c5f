package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/worldtx/internal/world"
)

// ErrDigestMismatch is returned when a restored snapshot does not hash to
// its recorded digest.
var ErrDigestMismatch = errors.New("snapshot digest mismatch")

// Session is one recorded run.
type Session struct {
	ID         string          `json:"id"`
	StartedSeq int64           `json:"started_seq"`
	Config     json.RawMessage `json:"config"`
}

// Snapshot is a stored world state.
type Snapshot struct {
	ID      int64  `json:"id"`
	Session string `json:"session"`
	Label   string `json:"label"`
	Seq     int64  `json:"seq"`
	Digest  string `json:"digest"`
	Body    []byte `json:"-"`
}

// WriteSession records a new session.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	cfg := string(sess.Config)
	if cfg == "" {
		cfg = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_seq, config)
		VALUES (?, ?, ?)
	`, sess.ID, sess.StartedSeq, cfg)
	if err != nil {
		return fmt.Errorf("write session %s: %w", sess.ID, err)
	}
	return nil
}

// ReadSession returns the session with the given id.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_seq, config FROM sessions WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return sess, nil
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_seq, config FROM sessions
		ORDER BY started_seq DESC, rowid DESC
		LIMIT 1
	`)
	sess, err := scanSession(row)
	if err != nil {
		return Session{}, fmt.Errorf("read latest session: %w", err)
	}
	return sess, nil
}

// ListSessions returns every session in start order.
// Returns an empty slice (not nil) for an empty database.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_seq, config FROM sessions
		ORDER BY started_seq ASC, rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var cfg string
	if err := row.Scan(&sess.ID, &sess.StartedSeq, &cfg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.Config = json.RawMessage(cfg)
	return sess, nil
}

// WriteSnapshot stores st under (session, label), replacing any earlier
// snapshot with the same label.
func (s *Store) WriteSnapshot(ctx context.Context, session, label string, seq int64, st *world.State) (Snapshot, error) {
	sn, err := st.Snapshot()
	if err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot %s/%s: %w", session, label, err)
	}
	body, err := sn.Encode()
	if err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot %s/%s: %w", session, label, err)
	}
	digest, err := st.Digest()
	if err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot %s/%s: %w", session, label, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (session, label, seq, digest, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session, label) DO UPDATE SET
			seq = excluded.seq, digest = excluded.digest, body = excluded.body
	`, session, label, seq, digest, body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot %s/%s: %w", session, label, err)
	}
	return s.ReadSnapshot(ctx, session, label)
}

// ReadSnapshot returns the snapshot stored under (session, label).
func (s *Store) ReadSnapshot(ctx context.Context, session, label string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session, label, seq, digest, body FROM snapshots
		WHERE session = ? AND label = ?
	`, session, label)

	var sn Snapshot
	if err := row.Scan(&sn.ID, &sn.Session, &sn.Label, &sn.Seq, &sn.Digest, &sn.Body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, fmt.Errorf("read snapshot %s/%s: %w", session, label, ErrNotFound)
		}
		return Snapshot{}, fmt.Errorf("read snapshot %s/%s: %w", session, label, err)
	}
	return sn, nil
}

// Restore decodes the snapshot into a state of schema and checks that it
// hashes to the recorded digest.
func (sn Snapshot) Restore(schema *world.Schema) (*world.State, error) {
	decoded, err := world.DecodeSnapshot(sn.Body)
	if err != nil {
		return nil, err
	}
	st, err := schema.Restore(decoded)
	if err != nil {
		return nil, err
	}
	digest, err := st.Digest()
	if err != nil {
		return nil, err
	}
	if digest != sn.Digest {
		return nil, fmt.Errorf("%w: %s/%s recorded %s, restored %s", ErrDigestMismatch, sn.Session, sn.Label, sn.Digest, digest)
	}
	return st, nil
}
