// Package score keeps the score ledger and computes standings. Ranks are
// never stored; every read derives them fresh from the rows present.
package score

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/bingo-ledger/catalog"
	"github.com/onnwee/bingo-ledger/db"
	"github.com/onnwee/bingo-ledger/player"
	"github.com/onnwee/bingo-ledger/timefmt"
)

// ProofKind says what kind of evidence backs a score. Only video proof makes
// a score rank-eligible.
type ProofKind int

const (
	ProofImage ProofKind = iota
	ProofVideo
)

func (k ProofKind) String() string {
	if k == ProofVideo {
		return "video"
	}
	return "image"
}

// Proof is the evidence attached to a submission.
type Proof struct {
	Kind ProofKind
	URL  string
}

// Score is one player's submission for one seed. Points is set on points
// seeds only; Elapsed distinguishes a finish time, an explicit DNF, and no
// time reported at all, though the latter two store identically.
type Score struct {
	SeedID      int64
	PlayerID    int64
	Points      *int
	Elapsed     timefmt.Elapsed
	Proof       *Proof
	Note        string
	SubmittedAt time.Time
}

// Entry is a score joined with its player and its computed standing. Rank is
// nil for ineligible scores: image proof, no proof, or an unnamed player.
type Entry struct {
	Score
	Player player.Player
	Rank   *int
}

// Eligible reports whether the entry ranks.
func (e Entry) Eligible() bool { return e.Rank != nil }

// Ledger reads and writes scores. Safe for concurrent use.
type Ledger struct {
	db  db.DBTX
	log *slog.Logger
}

func NewLedger(dbtx db.DBTX, log *slog.Logger) *Ledger {
	return &Ledger{db: dbtx, log: log}
}

// Upsert records the player's score for the seed, replacing any previous
// submission wholesale. Points are required on points seeds and rejected on
// timed seeds. The submission timestamp is refreshed on every write.
func (l *Ledger) Upsert(ctx context.Context, s Score) error {
	var gameType int
	err := l.db.QueryRowContext(ctx,
		`SELECT game_type FROM seeds WHERE id = ?`, s.SeedID).Scan(&gameType)
	if err != nil {
		return db.MapError(err, "lookup seed for score", "")
	}
	pointsSeed := catalog.GameType(gameType).PointsBased()
	if pointsSeed && s.Points == nil {
		return &db.ValidationError{Field: "points", Reason: "points seeds require a points value"}
	}
	if !pointsSeed && s.Points != nil {
		return &db.ValidationError{Field: "points", Reason: "only points seeds take a points value"}
	}
	if s.Points != nil && *s.Points < 0 {
		return &db.ValidationError{Field: "points", Reason: "must not be negative"}
	}
	if s.Proof != nil && strings.TrimSpace(s.Proof.URL) == "" {
		return &db.ValidationError{Field: "proof_url", Reason: "proof needs a URL"}
	}

	var points, elapsed, proofKind, proofURL any
	if s.Points != nil {
		points = *s.Points
	}
	if ms, ok := s.Elapsed.Millis(); ok {
		elapsed = ms
	}
	if s.Proof != nil {
		proofKind = int(s.Proof.Kind)
		proofURL = s.Proof.URL
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO scores(seed_id, player_id, points, elapsed_millis, proof_kind, proof_url, note, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), unixepoch())
		ON CONFLICT(seed_id, player_id) DO UPDATE SET
			points = excluded.points,
			elapsed_millis = excluded.elapsed_millis,
			proof_kind = excluded.proof_kind,
			proof_url = excluded.proof_url,
			note = excluded.note,
			submitted_at = excluded.submitted_at`,
		s.SeedID, s.PlayerID, points, elapsed, proofKind, proofURL, s.Note)
	if err != nil {
		return db.MapError(err, "upsert score", "scores")
	}
	l.log.InfoContext(ctx, "score recorded",
		"seed_id", s.SeedID, "player_id", s.PlayerID, "elapsed", timefmt.Format(s.Elapsed, true))
	return nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e           Entry
		name        sql.NullString
		points      sql.NullInt64
		elapsed     sql.NullInt64
		proofKind   sql.NullInt64
		proofURL    sql.NullString
		note        sql.NullString
		submittedAt int64
		rank        sql.NullInt64
	)
	err := rows.Scan(
		&e.SeedID, &e.Player.ID, &e.Player.ExternalID, &name,
		&points, &elapsed, &proofKind, &proofURL, &note, &submittedAt, &rank)
	if err != nil {
		return Entry{}, err
	}
	e.PlayerID = e.Player.ID
	e.Player.DisplayName = name.String
	if points.Valid {
		p := int(points.Int64)
		e.Points = &p
	}
	if elapsed.Valid {
		e.Elapsed = timefmt.FromMillis(elapsed.Int64)
	} else {
		e.Elapsed = timefmt.DNF()
	}
	if proofKind.Valid {
		e.Proof = &Proof{Kind: ProofKind(proofKind.Int64), URL: proofURL.String}
	}
	e.Note = note.String
	e.SubmittedAt = time.Unix(submittedAt, 0)
	if rank.Valid {
		r := int(rank.Int64)
		e.Rank = &r
	}
	return e, nil
}

// rankCase computes the standing of the row aliased s against every other
// eligible score on the same seed. NULL for ineligible rows. The recap
// aggregates reuse it, so it must stay valid wherever scores s, players p,
// and seeds sd are joined.
const rankCase = `CASE WHEN s.proof_kind = 1 AND p.display_name IS NOT NULL THEN (
			SELECT COUNT(*) + 1
			FROM scores o
			JOIN players op ON op.id = o.player_id
			WHERE o.seed_id = s.seed_id
			  AND o.player_id <> s.player_id
			  AND o.proof_kind = 1
			  AND op.display_name IS NOT NULL
			  AND CASE WHEN sd.game_type = 6 THEN
					COALESCE(o.points, -1) > COALESCE(s.points, -1)
					OR (COALESCE(o.points, -1) = COALESCE(s.points, -1)
						AND o.elapsed_millis IS NOT NULL
						AND (s.elapsed_millis IS NULL OR o.elapsed_millis < s.elapsed_millis))
				  ELSE
					o.elapsed_millis IS NOT NULL
					AND (s.elapsed_millis IS NULL OR o.elapsed_millis < s.elapsed_millis)
				  END
		) END`

const entrySelect = `
	SELECT s.seed_id, p.id, p.external_id, p.display_name,
		s.points, s.elapsed_millis, s.proof_kind, s.proof_url, s.note, s.submitted_at,
		` + rankCase + ` AS rank
	FROM scores s
	JOIN players p ON p.id = s.player_id
	JOIN seeds sd ON sd.id = s.seed_id`

// Leaderboard returns the seed's submissions with computed standings, at most
// limit rows (non-positive means all). Rows are ordered by the seed's measure:
// points descending, then a present elapsed before an absent one, then the
// smaller elapsed. Ineligible entries interleave by their measure but carry a
// nil rank. Ties on the deciding measure share a standing. An empty board is
// not an error.
func (l *Ledger) Leaderboard(ctx context.Context, seedID int64, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, entrySelect+`
		WHERE s.seed_id = ?
		ORDER BY COALESCE(s.points, -1) DESC,
			s.elapsed_millis IS NULL,
			s.elapsed_millis,
			s.submitted_at, p.id
		LIMIT ?`, seedID, noLimit(limit))
	if err != nil {
		return nil, db.MapError(err, "leaderboard", "")
	}
	defer rows.Close()
	return collectEntries(rows)
}

// Get returns the player's submission for the seed, standing included.
func (l *Ledger) Get(ctx context.Context, seedID, playerID int64) (Entry, error) {
	rows, err := l.db.QueryContext(ctx, entrySelect+`
		WHERE s.seed_id = ? AND s.player_id = ?`, seedID, playerID)
	if err != nil {
		return Entry{}, db.MapError(err, "get score", "")
	}
	defer rows.Close()
	entries, err := collectEntries(rows)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, db.ErrNotFound
	}
	return entries[0], nil
}

// Delete removes the player's submission for the seed.
func (l *Ledger) Delete(ctx context.Context, seedID, playerID int64) error {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM scores WHERE seed_id = ? AND player_id = ?`, seedID, playerID)
	if err != nil {
		return db.MapError(err, "delete score", "")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &db.StorageError{Op: "delete score", Err: err}
	}
	if n == 0 {
		return db.ErrNotFound
	}
	l.log.InfoContext(ctx, "score deleted", "seed_id", seedID, "player_id", playerID)
	return nil
}

// ByPlayer lists the player's submissions across all seeds, newest first, at
// most limit rows (non-positive means all).
func (l *Ledger) ByPlayer(ctx context.Context, playerID int64, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, entrySelect+`
		WHERE s.player_id = ?
		ORDER BY s.submitted_at DESC, s.seed_id DESC
		LIMIT ?`, playerID, noLimit(limit))
	if err != nil {
		return nil, db.MapError(err, "scores by player", "")
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ByPlayerAndWeek lists the player's submissions within one week, in the
// week's seed order, at most limit rows (non-positive means all).
func (l *Ledger) ByPlayerAndWeek(ctx context.Context, playerID, weekID int64, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, entrySelect+`
		WHERE s.player_id = ? AND sd.week_id = ?
		ORDER BY sd.practiced, sd.game_type, sd.seed_number
		LIMIT ?`, playerID, weekID, noLimit(limit))
	if err != nil {
		return nil, db.MapError(err, "scores by player and week", "")
	}
	defer rows.Close()
	return collectEntries(rows)
}

// noLimit maps "no limit requested" onto sqlite's LIMIT -1.
func noLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, &db.StorageError{Op: "scan score", Err: err}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.StorageError{Op: "collect scores", Err: err}
	}
	return out, nil
}
