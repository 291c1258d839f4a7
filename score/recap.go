package score

import (
	"context"
	"database/sql"

	"github.com/onnwee/bingo-ledger/catalog"
	"github.com/onnwee/bingo-ledger/db"
	"github.com/onnwee/bingo-ledger/player"
)

// Overview summarizes a week's participation.
type Overview struct {
	Players     int // distinct players who submitted anything
	Submissions int
	Finishes    int // submissions carrying an elapsed time
}

// SeedRecap is the per-seed slice of a week recap.
type SeedRecap struct {
	SeedID      int64
	SeedNumber  int64
	Submissions int
	Finishes    int
}

// YearOverview summarizes one player's activity over a year of weeks.
type YearOverview struct {
	Seeds    int  // seeds submitted to
	Weeks    int  // distinct weeks played
	BestRank *int // best standing reached, nil if never rank-eligible
}

// ModeRecap aggregates one player's year within a single game type and
// practiced flag. Averages skip rows where the measure is absent and are nil
// when no row carries it at all.
type ModeRecap struct {
	GameType  catalog.GameType
	Practiced bool
	Plays     int
	AvgPoints *float64
	AvgMillis *float64
	AvgRank   *float64
}

// Recap years follow the week's publish date, not when a score arrived. A
// late submission to December's seed still counts toward that year.
const yearClause = `CAST(strftime('%Y', w.published_at_unix_millis / 1000, 'unixepoch') AS INTEGER) = ?`

// WeekPlayers lists the display names of named players who submitted a
// score in the week, alphabetically. Unnamed players are counted by
// WeekOverview but have no name to show here.
func (l *Ledger) WeekPlayers(ctx context.Context, weekID int64) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT DISTINCT p.display_name
		FROM scores s
		JOIN players p ON p.id = s.player_id
		JOIN seeds sd ON sd.id = s.seed_id
		WHERE sd.week_id = ? AND p.display_name IS NOT NULL
		ORDER BY p.display_name`, weekID)
	if err != nil {
		return nil, db.MapError(err, "week players", "")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &db.StorageError{Op: "scan week player", Err: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.StorageError{Op: "week players", Err: err}
	}
	return names, nil
}

// WeekOverview totals the week's participation.
func (l *Ledger) WeekOverview(ctx context.Context, weekID int64) (Overview, error) {
	var o Overview
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT s.player_id),
			COUNT(*),
			COUNT(s.elapsed_millis)
		FROM scores s
		JOIN seeds sd ON sd.id = s.seed_id
		WHERE sd.week_id = ?`, weekID).
		Scan(&o.Players, &o.Submissions, &o.Finishes)
	if err != nil {
		return Overview{}, db.MapError(err, "week overview", "")
	}
	return o, nil
}

// WeekSeeds breaks the week down per seed in announcement order. Seeds with
// no submissions appear with zero counts.
func (l *Ledger) WeekSeeds(ctx context.Context, weekID int64) ([]SeedRecap, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT sd.id, sd.seed_number,
			COUNT(s.player_id),
			COUNT(s.elapsed_millis)
		FROM seeds sd
		LEFT JOIN scores s ON s.seed_id = sd.id
		WHERE sd.week_id = ?
		GROUP BY sd.id
		ORDER BY sd.practiced, sd.game_type, sd.seed_number`, weekID)
	if err != nil {
		return nil, db.MapError(err, "week seed recap", "")
	}
	defer rows.Close()

	var out []SeedRecap
	for rows.Next() {
		var r SeedRecap
		if err := rows.Scan(&r.SeedID, &r.SeedNumber, &r.Submissions, &r.Finishes); err != nil {
			return nil, &db.StorageError{Op: "scan seed recap", Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.StorageError{Op: "week seed recap", Err: err}
	}
	return out, nil
}

// Best returns the seed's top-ranked entry, or ErrNotFound when nothing on
// the board is rank-eligible.
func (l *Ledger) Best(ctx context.Context, seedID int64) (Entry, error) {
	entries, err := l.Leaderboard(ctx, seedID, 0)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.Eligible() && *e.Rank == 1 {
			return e, nil
		}
	}
	return Entry{}, db.ErrNotFound
}

// RecapPlayers lists every player who submitted at least one score during the
// year, named players first alphabetically.
func (l *Ledger) RecapPlayers(ctx context.Context, year int) ([]player.Player, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT DISTINCT p.id, p.external_id, p.display_name
		FROM scores s
		JOIN players p ON p.id = s.player_id
		JOIN seeds sd ON sd.id = s.seed_id
		JOIN weeks w ON w.id = sd.week_id
		WHERE `+yearClause+`
		ORDER BY p.display_name IS NULL, p.display_name, p.external_id`, year)
	if err != nil {
		return nil, db.MapError(err, "recap players", "")
	}
	defer rows.Close()

	var out []player.Player
	for rows.Next() {
		var (
			p    player.Player
			name sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.ExternalID, &name); err != nil {
			return nil, &db.StorageError{Op: "scan recap player", Err: err}
		}
		p.DisplayName = name.String
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.StorageError{Op: "recap players", Err: err}
	}
	return out, nil
}

// RecapOverview totals one player's year: seeds played, distinct weeks, and
// the best standing reached on any board.
func (l *Ledger) RecapOverview(ctx context.Context, playerID int64, year int) (YearOverview, error) {
	var (
		o    YearOverview
		best sql.NullInt64
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT sd.week_id), MIN(`+rankCase+`)
		FROM scores s
		JOIN players p ON p.id = s.player_id
		JOIN seeds sd ON sd.id = s.seed_id
		JOIN weeks w ON w.id = sd.week_id
		WHERE s.player_id = ? AND `+yearClause,
		playerID, year).Scan(&o.Seeds, &o.Weeks, &best)
	if err != nil {
		return YearOverview{}, db.MapError(err, "recap overview", "")
	}
	if best.Valid {
		r := int(best.Int64)
		o.BestRank = &r
	}
	return o, nil
}

// RecapModeOverview breaks one player's year down per game type and practiced
// flag, with averages over the measures each mode carries.
func (l *Ledger) RecapModeOverview(ctx context.Context, playerID int64, year int) ([]ModeRecap, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT sd.game_type, sd.practiced, COUNT(*),
			AVG(s.points), AVG(s.elapsed_millis), AVG(`+rankCase+`)
		FROM scores s
		JOIN players p ON p.id = s.player_id
		JOIN seeds sd ON sd.id = s.seed_id
		JOIN weeks w ON w.id = sd.week_id
		WHERE s.player_id = ? AND `+yearClause+`
		GROUP BY sd.game_type, sd.practiced
		ORDER BY sd.practiced, sd.game_type`,
		playerID, year)
	if err != nil {
		return nil, db.MapError(err, "recap mode overview", "")
	}
	defer rows.Close()

	var out []ModeRecap
	for rows.Next() {
		var (
			r         ModeRecap
			gameType  int
			practiced int
			avgPoints sql.NullFloat64
			avgMillis sql.NullFloat64
			avgRank   sql.NullFloat64
		)
		err := rows.Scan(&gameType, &practiced, &r.Plays, &avgPoints, &avgMillis, &avgRank)
		if err != nil {
			return nil, &db.StorageError{Op: "scan mode recap", Err: err}
		}
		r.GameType = catalog.GameType(gameType)
		r.Practiced = practiced != 0
		if avgPoints.Valid {
			r.AvgPoints = &avgPoints.Float64
		}
		if avgMillis.Valid {
			r.AvgMillis = &avgMillis.Float64
		}
		if avgRank.Valid {
			r.AvgRank = &avgRank.Float64
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.StorageError{Op: "recap mode overview", Err: err}
	}
	return out, nil
}

// RecapModeBest returns the player's strongest submission of the year within
// one game type and practiced flag: highest points first, then a present
// elapsed beats an absent one, then the smaller time. ErrNotFound when the
// player never played that mode that year.
func (l *Ledger) RecapModeBest(ctx context.Context, playerID int64, gameType catalog.GameType, practiced bool, year int) (Entry, error) {
	practicedInt := 0
	if practiced {
		practicedInt = 1
	}
	rows, err := l.db.QueryContext(ctx, entrySelect+`
		JOIN weeks w ON w.id = sd.week_id
		WHERE s.player_id = ? AND sd.game_type = ? AND sd.practiced = ? AND `+yearClause+`
		ORDER BY COALESCE(s.points, -1) DESC,
			s.elapsed_millis IS NULL,
			s.elapsed_millis
		LIMIT 1`,
		playerID, int(gameType), practicedInt, year)
	if err != nil {
		return Entry{}, db.MapError(err, "recap mode best", "")
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
