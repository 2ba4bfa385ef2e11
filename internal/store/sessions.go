package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/examdrill/internal/clock"
	"github.com/abhisek/examdrill/internal/record"
)

const sessionsTable = "practice_sessions"

// SessionCache is the local durable cache of encoded practice sessions,
// keyed by session ID. Saved blobs must be session records; the owner and
// ended flag are indexed from the record header.
type SessionCache struct {
	drv *entsql.Driver
	clk clock.Clock
}

type sessionRow struct {
	SessionID string `sql:"session_id"`
	Blob      string `sql:"blob"`
}

// Sessions returns the session cache backed by this store. clk stamps
// each save so that listings come back most recently saved first.
func (s *Store) Sessions(clk clock.Clock) *SessionCache {
	if clk == nil {
		clk = clock.Real{}
	}
	return &SessionCache{drv: s.drv, clk: clk}
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

// Put inserts or replaces the blob stored for id.
func (c *SessionCache) Put(ctx context.Context, id string, blob []byte) error {
	h, err := record.PeekHeader(blob)
	if err != nil {
		return fmt.Errorf("put session %s: %w", id, err)
	}
	if h.SessionID != id {
		return fmt.Errorf("put session %s: record is for session %s", id, h.SessionID)
	}

	ended := 0
	if h.Ended() {
		ended = 1
	}
	q, args := builder().Insert(sessionsTable).
		Columns("session_id", "owner_id", "ended", "saved_at", "blob").
		Values(id, h.OwnerID, ended, c.clk.Now().UnixNano(), string(blob)).
		OnConflict(
			entsql.ConflictColumns("session_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if err := c.drv.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("put session %s: %w", id, err)
	}
	return nil
}

// Get returns the blob stored for id. ok is false when there is none.
func (c *SessionCache) Get(ctx context.Context, id string) (blob []byte, ok bool, err error) {
	b := builder()
	sel := b.Select("session_id", "blob").
		From(b.Table(sessionsTable)).
		Where(entsql.EQ("session_id", id))

	var rows []sessionRow
	if err := c.scan(ctx, sel, &rows); err != nil {
		return nil, false, fmt.Errorf("get session %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return []byte(rows[0].Blob), true, nil
}

// Delete removes id. Deleting an absent id is not an error.
func (c *SessionCache) Delete(ctx context.Context, id string) error {
	q, args := builder().Delete(sessionsTable).
		Where(entsql.EQ("session_id", id)).
		Query()
	if err := c.drv.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// ListNotEnded returns the blobs of sessions whose local copy has not ended,
// most recently saved first.
func (c *SessionCache) ListNotEnded(ctx context.Context) ([][]byte, error) {
	b := builder()
	sel := b.Select("session_id", "blob").
		From(b.Table(sessionsTable)).
		Where(entsql.EQ("ended", 0)).
		OrderBy(entsql.Desc("saved_at"))

	var rows []sessionRow
	if err := c.scan(ctx, sel, &rows); err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	blobs := make([][]byte, len(rows))
	for i, r := range rows {
		blobs[i] = []byte(r.Blob)
	}
	return blobs, nil
}

// PruneEnded deletes all but the keep most recently saved ended sessions.
// It returns the number of rows removed.
func (c *SessionCache) PruneEnded(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	b := builder()
	newest := b.Select("session_id").
		From(b.Table(sessionsTable)).
		Where(entsql.EQ("ended", 1)).
		OrderBy(entsql.Desc("saved_at")).
		Limit(keep)

	q, args := b.Delete(sessionsTable).
		Where(entsql.And(
			entsql.EQ("ended", 1),
			entsql.NotIn("session_id", newest),
		)).
		Query()

	var res sql.Result
	if err := c.drv.Exec(ctx, q, args, &res); err != nil {
		return 0, fmt.Errorf("prune ended sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune ended sessions: %w", err)
	}
	return n, nil
}

func (c *SessionCache) scan(ctx context.Context, sel *entsql.Selector, dst any) error {
	q, args := sel.Query()
	var rows entsql.Rows
	if err := c.drv.Query(ctx, q, args, &rows); err != nil {
		return err
	}
	defer rows.Close()
	if err := entsql.ScanSlice(rows, dst); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return nil
}
