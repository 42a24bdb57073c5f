package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/roach88/worldtx/internal/engine"
	"github.com/roach88/worldtx/internal/world"
)

// JournalEntry is one processed action.
type JournalEntry struct {
	Seq       int64           `json:"seq"`
	Session   string          `json:"session"`
	Cascade   string          `json:"cascade"`
	Depth     int             `json:"depth"`
	Batch     int             `json:"batch"`
	Kind      string          `json:"kind"`
	Entity    world.EntityID  `json:"entity"`
	Payload   json.RawMessage `json:"payload"`
	Accepted  bool            `json:"accepted"`
	RulesRun  int             `json:"rules_run"`
	FollowOns int             `json:"follow_ons"`
	Checksum  uint64          `json:"checksum"`
}

// EntryFromRecord converts an engine trace record. The action is stored as
// JSON; kind and entity are supplied by the host, which knows the action type.
func EntryFromRecord(session string, rec engine.Record, kind string, entity world.EntityID) (JournalEntry, error) {
	payload, err := json.Marshal(rec.Action)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("marshal action seq=%d: %w", rec.Seq, err)
	}
	return JournalEntry{
		Seq:       rec.Seq,
		Session:   session,
		Cascade:   rec.Cascade,
		Depth:     rec.Depth,
		Batch:     rec.Drain,
		Kind:      kind,
		Entity:    entity,
		Payload:   payload,
		Accepted:  rec.Accepted,
		RulesRun:  rec.RulesRun,
		FollowOns: rec.FollowOns,
		Checksum:  rec.Checksum,
	}, nil
}

// AppendJournal writes entries in a single transaction.
// Either every entry is written or none is.
func (s *Store) AppendJournal(ctx context.Context, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append journal: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO journal
		(seq, session, cascade_token, depth, batch, kind, entity, payload, accepted, rules_run, follow_ons, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("append journal: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			e.Seq,
			e.Session,
			e.Cascade,
			e.Depth,
			e.Batch,
			e.Kind,
			int64(e.Entity), // SQLite integers are signed; the bits round-trip.
			string(e.Payload),
			e.Accepted,
			e.RulesRun,
			e.FollowOns,
			formatChecksum(e.Checksum),
		)
		if err != nil {
			return fmt.Errorf("append journal seq=%d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append journal: commit: %w", err)
	}
	return nil
}

// ReadJournal returns a session's entries ordered by seq. A non-empty
// cascade restricts the result to that cascade.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadJournal(ctx context.Context, session, cascade string) ([]JournalEntry, error) {
	return s.queryJournal(ctx, `
		SELECT seq, session, cascade_token, depth, batch, kind, entity, payload, accepted, rules_run, follow_ons, checksum
		FROM journal
		WHERE session = ? AND (? = '' OR cascade_token = ?)
		ORDER BY seq ASC
	`, session, cascade, cascade)
}

// RootActions returns the host-enqueued entries (depth 0) of a session,
// ordered by seq. These are what a replay re-enqueues.
func (s *Store) RootActions(ctx context.Context, session string) ([]JournalEntry, error) {
	return s.queryJournal(ctx, `
		SELECT seq, session, cascade_token, depth, batch, kind, entity, payload, accepted, rules_run, follow_ons, checksum
		FROM journal
		WHERE session = ? AND depth = 0
		ORDER BY seq ASC
	`, session)
}

func (s *Store) queryJournal(ctx context.Context, query string, args ...any) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		var e JournalEntry
		var entity int64
		var payload, checksum string
		if err := rows.Scan(&e.Seq, &e.Session, &e.Cascade, &e.Depth, &e.Batch, &e.Kind,
			&entity, &payload, &e.Accepted, &e.RulesRun, &e.FollowOns, &checksum); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		e.Entity = world.EntityID(entity)
		e.Payload = json.RawMessage(payload)
		if e.Checksum, err = parseChecksum(checksum); err != nil {
			return nil, fmt.Errorf("scan journal seq=%d: %w", e.Seq, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// CascadeSummary aggregates the journal rows of one cascade.
type CascadeSummary struct {
	Cascade  string `json:"cascade"`
	FirstSeq int64  `json:"first_seq"`
	Actions  int    `json:"actions"`
	Accepted int    `json:"accepted"`
	MaxDepth int    `json:"max_depth"`
}

// ListCascades summarizes every cascade of a session in order of first seq.
func (s *Store) ListCascades(ctx context.Context, session string) ([]CascadeSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cascade_token, MIN(seq), COUNT(*), SUM(accepted), MAX(depth)
		FROM journal
		WHERE session = ?
		GROUP BY cascade_token
		ORDER BY MIN(seq) ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query cascades: %w", err)
	}
	defer rows.Close()

	cascades := []CascadeSummary{}
	for rows.Next() {
		var c CascadeSummary
		if err := rows.Scan(&c.Cascade, &c.FirstSeq, &c.Actions, &c.Accepted, &c.MaxDepth); err != nil {
			return nil, fmt.Errorf("scan cascade: %w", err)
		}
		cascades = append(cascades, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cascades: %w", err)
	}
	return cascades, nil
}

func formatChecksum(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

func parseChecksum(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse checksum %q: %w", s, err)
	}
	return v, nil
}
