package score

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/bingo-ledger/catalog"
	"github.com/onnwee/bingo-ledger/db"
	"github.com/onnwee/bingo-ledger/player"
	"github.com/onnwee/bingo-ledger/semver"
	"github.com/onnwee/bingo-ledger/testutil"
	"github.com/onnwee/bingo-ledger/timefmt"
)

type fixture struct {
	db      *sql.DB
	ledger  *Ledger
	catalog *catalog.Catalog
	players *player.Directory
	week    catalog.Week
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := testutil.SetupTestDB(t)
	log := testutil.Logger()
	f := &fixture{
		db:      database,
		ledger:  NewLedger(database, log),
		catalog: catalog.New(database, log),
		players: player.NewDirectory(database, log),
	}
	week, err := f.catalog.CreateWeek(context.Background(), catalog.CreateWeekParams{
		Version:     semver.Version{Major: 5, Minor: 1},
		GameVersion: semver.Version{Major: 1, Minor: 21, Patch: 4},
	})
	if err != nil {
		t.Fatalf("create week: %v", err)
	}
	f.week = week
	return f
}

func (f *fixture) seed(t *testing.T, number int64, mode catalog.Mode) catalog.Seed {
	t.Helper()
	s, err := f.catalog.CreateSeed(context.Background(), f.week.ID, number, mode, "")
	if err != nil {
		t.Fatalf("create seed %d: %v", number, err)
	}
	return s
}

func (f *fixture) player(t *testing.T, externalID, displayName string) player.Player {
	t.Helper()
	p, err := f.players.GetOrCreate(context.Background(), externalID)
	if err != nil {
		t.Fatalf("register %s: %v", externalID, err)
	}
	if displayName != "" {
		p, err = f.players.SetDisplayName(context.Background(), p.ID, displayName)
		if err != nil {
			t.Fatalf("name %s: %v", externalID, err)
		}
	}
	return p
}

func (f *fixture) submit(t *testing.T, s Score) {
	t.Helper()
	if err := f.ledger.Upsert(context.Background(), s); err != nil {
		t.Fatalf("upsert seed=%d player=%d: %v", s.SeedID, s.PlayerID, err)
	}
}

func intp(n int) *int { return &n }

func video(url string) *Proof { return &Proof{Kind: ProofVideo, URL: url} }

// wantRanks checks the board's (external id -> rank) assignment; 0 means nil.
func wantRanks(t *testing.T, entries []Entry, want map[string]int) {
	t.Helper()
	if len(entries) != len(want) {
		t.Fatalf("board size = %d, want %d", len(entries), len(want))
	}
	for _, e := range entries {
		expected, ok := want[e.Player.ExternalID]
		if !ok {
			t.Errorf("unexpected entry for %s", e.Player.ExternalID)
			continue
		}
		switch {
		case expected == 0 && e.Rank != nil:
			t.Errorf("%s rank = %d, want none", e.Player.ExternalID, *e.Rank)
		case expected != 0 && e.Rank == nil:
			t.Errorf("%s rank = none, want %d", e.Player.ExternalID, expected)
		case expected != 0 && *e.Rank != expected:
			t.Errorf("%s rank = %d, want %d", e.Player.ExternalID, *e.Rank, expected)
		}
	}
}

// wantOrder checks the board's row order by external id.
func wantOrder(t *testing.T, entries []Entry, want ...string) {
	t.Helper()
	if len(entries) != len(want) {
		t.Fatalf("board size = %d, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Player.ExternalID != want[i] {
			t.Errorf("board[%d] = %s, want %s", i, e.Player.ExternalID, want[i])
		}
	}
}

func TestPointsSeedRanking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed := f.seed(t, 100, catalog.PointsMode(20))

	a := f.player(t, "ext-a", "Alpha")
	b := f.player(t, "ext-b", "Bravo")
	c := f.player(t, "ext-c", "Charlie")
	d := f.player(t, "ext-d", "Delta")

	f.submit(t, Score{SeedID: seed.ID, PlayerID: a.ID, Points: intp(20),
		Elapsed: timefmt.FromMillis(300000), Proof: video("https://v/a")})

	board, err := f.ledger.Leaderboard(ctx, seed.ID, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	wantRanks(t, board, map[string]int{"ext-a": 1})

	// Equal points, faster time wins.
	f.submit(t, Score{SeedID: seed.ID, PlayerID: b.ID, Points: intp(20),
		Elapsed: timefmt.FromMillis(250000), Proof: video("https://v/b")})
	board, _ = f.ledger.Leaderboard(ctx, seed.ID, 0)
	wantRanks(t, board, map[string]int{"ext-b": 1, "ext-a": 2})

	// Higher points win outright, even without a time.
	f.submit(t, Score{SeedID: seed.ID, PlayerID: c.ID, Points: intp(25),
		Elapsed: timefmt.DNF(), Proof: video("https://v/c")})
	board, _ = f.ledger.Leaderboard(ctx, seed.ID, 0)
	wantRanks(t, board, map[string]int{"ext-c": 1, "ext-b": 2, "ext-a": 3})

	// Image proof never ranks, and does not displace anyone who does.
	f.submit(t, Score{SeedID: seed.ID, PlayerID: d.ID, Points: intp(25),
		Elapsed: timefmt.FromMillis(200000), Proof: &Proof{Kind: ProofImage, URL: "https://i/d"}})
	board, _ = f.ledger.Leaderboard(ctx, seed.ID, 0)
	wantRanks(t, board, map[string]int{"ext-c": 1, "ext-b": 2, "ext-a": 3, "ext-d": 0})

	// The board follows the measure: 25 points with a time beats 25 with a
	// DNF, even though the image-proof entry holds no rank.
	wantOrder(t, board, "ext-d", "ext-c", "ext-b", "ext-a")
}

func TestLeaderboardLimitFollowsMeasure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed := f.seed(t, 150, catalog.PointsMode(20))

	a := f.player(t, "ext-a", "Alpha")
	b := f.player(t, "ext-b", "Bravo")
	c := f.player(t, "ext-c", "Charlie")
	d := f.player(t, "ext-d", "Delta")

	f.submit(t, Score{SeedID: seed.ID, PlayerID: a.ID, Points: intp(20),
		Elapsed: timefmt.FromMillis(300000), Proof: video("https://v/a")})
	f.submit(t, Score{SeedID: seed.ID, PlayerID: b.ID, Points: intp(20),
		Elapsed: timefmt.FromMillis(250000), Proof: video("https://v/b")})
	f.submit(t, Score{SeedID: seed.ID, PlayerID: c.ID, Points: intp(25),
		Elapsed: timefmt.DNF(), Proof: video("https://v/c")})
	f.submit(t, Score{SeedID: seed.ID, PlayerID: d.ID, Points: intp(25),
		Elapsed: timefmt.FromMillis(200000), Proof: &Proof{Kind: ProofImage, URL: "https://i/d"}})

	// A truncated board keeps the top of the measure order, so the unranked
	// image-proof 25 stays in and the slowest 20 falls off.
	board, err := f.ledger.Leaderboard(ctx, seed.ID, 3)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	wantOrder(t, board, "ext-d", "ext-c", "ext-b")
	wantRanks(t, board, map[string]int{"ext-d": 0, "ext-c": 1, "ext-b": 2})
}

func TestTimedSeedRanking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed := f.seed(t, 200, catalog.PlainMode(catalog.GameBingo))

	fast := f.player(t, "ext-fast", "Fast")
	slow := f.player(t, "ext-slow", "Slow")
	dnf := f.player(t, "ext-dnf", "Quit")
	anon := f.player(t, "ext-anon", "")

	f.submit(t, Score{SeedID: seed.ID, PlayerID: slow.ID,
		Elapsed: timefmt.FromMillis(1500000), Proof: video("https://v/slow")})
	f.submit(t, Score{SeedID: seed.ID, PlayerID: fast.ID,
		Elapsed: timefmt.FromMillis(900000), Proof: video("https://v/fast")})
	f.submit(t, Score{SeedID: seed.ID, PlayerID: dnf.ID,
		Elapsed: timefmt.DNF(), Proof: video("https://v/dnf")})
	// An unnamed player stays off the standings even with video proof.
	f.submit(t, Score{SeedID: seed.ID, PlayerID: anon.ID,
		Elapsed: timefmt.FromMillis(100), Proof: video("https://v/anon")})

	board, err := f.ledger.Leaderboard(ctx, seed.ID, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	wantRanks(t, board, map[string]int{
		"ext-fast": 1, "ext-slow": 2, "ext-dnf": 3, "ext-anon": 0,
	})
}

func TestTimedSeedTieSharesStanding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed := f.seed(t, 300, catalog.PlainMode(catalog.GameBlackout))

	one := f.player(t, "ext-1", "One")
	two := f.player(t, "ext-2", "Two")
	three := f.player(t, "ext-3", "Three")

	f.submit(t, Score{SeedID: seed.ID, PlayerID: one.ID,
		Elapsed: timefmt.FromMillis(600000), Proof: video("https://v/1")})
	f.submit(t, Score{SeedID: seed.ID, PlayerID: two.ID,
		Elapsed: timefmt.FromMillis(600000), Proof: video("https://v/2")})
	f.submit(t, Score{SeedID: seed.ID, PlayerID: three.ID,
		Elapsed: timefmt.FromMillis(700000), Proof: video("https://v/3")})

	board, err := f.ledger.Leaderboard(ctx, seed.ID, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	wantRanks(t, board, map[string]int{"ext-1": 1, "ext-2": 1, "ext-3": 3})

	top, err := f.ledger.Leaderboard(ctx, seed.ID, 2)
	if err != nil {
		t.Fatalf("limited leaderboard: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("limited board size = %d, want 2", len(top))
	}
}

func TestUpsertReplacesSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed := f.seed(t, 400, catalog.PlainMode(catalog.GameBingo))
	p := f.player(t, "ext-p", "Player")

	f.submit(t, Score{SeedID: seed.ID, PlayerID: p.ID,
		Elapsed: timefmt.FromMillis(500000), Proof: video("https://v/1"), Note: "first try"})
	f.submit(t, Score{SeedID: seed.ID, PlayerID: p.ID,
		Elapsed: timefmt.FromMillis(450000), Proof: video("https://v/2")})

	got, err := f.ledger.Get(ctx, seed.ID, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	ms, ok := got.Elapsed.Millis()
	if !ok || ms != 450000 {
		t.Fatalf("elapsed after replace = %v", got.Elapsed)
	}
	if got.Proof == nil || got.Proof.URL != "https://v/2" {
		t.Fatalf("proof after replace = %+v", got.Proof)
	}
	// The replacement is wholesale; the old note is gone.
	if got.Note != "" {
		t.Fatalf("note after replace = %q, want empty", got.Note)
	}

	board, _ := f.ledger.Leaderboard(ctx, seed.ID, 0)
	if len(board) != 1 {
		t.Fatalf("board size after replace = %d, want 1", len(board))
	}
}

func TestUpsertValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	points := f.seed(t, 500, catalog.PointsMode(20))
	timed := f.seed(t, 501, catalog.PlainMode(catalog.GameBingo))
	p := f.player(t, "ext-p", "Player")

	var ve *db.ValidationError
	err := f.ledger.Upsert(ctx, Score{SeedID: points.ID, PlayerID: p.ID,
		Elapsed: timefmt.FromMillis(1000)})
	if !errors.As(err, &ve) {
		t.Fatalf("points seed without points = %v, want ValidationError", err)
	}
	err = f.ledger.Upsert(ctx, Score{SeedID: timed.ID, PlayerID: p.ID, Points: intp(5),
		Elapsed: timefmt.FromMillis(1000)})
	if !errors.As(err, &ve) {
		t.Fatalf("timed seed with points = %v, want ValidationError", err)
	}
	err = f.ledger.Upsert(ctx, Score{SeedID: timed.ID, PlayerID: p.ID,
		Elapsed: timefmt.FromMillis(1000), Proof: &Proof{Kind: ProofVideo}})
	if !errors.As(err, &ve) {
		t.Fatalf("proof without URL = %v, want ValidationError", err)
	}
	err = f.ledger.Upsert(ctx, Score{SeedID: 9999, PlayerID: p.ID,
		Elapsed: timefmt.FromMillis(1000)})
	if !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("unknown seed = %v, want ErrNotFound", err)
	}
}

func TestDeleteScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed := f.seed(t, 600, catalog.PlainMode(catalog.GameBingo))
	p := f.player(t, "ext-p", "Player")

	f.submit(t, Score{SeedID: seed.ID, PlayerID: p.ID,
		Elapsed: timefmt.FromMillis(1000)})
	if err := f.ledger.Delete(ctx, seed.ID, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.ledger.Get(ctx, seed.ID, p.ID); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
	if err := f.ledger.Delete(ctx, seed.ID, p.ID); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("double delete = %v, want ErrNotFound", err)
	}
}

func TestDeleteSeedEmptiesBoard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed := f.seed(t, 700, catalog.PlainMode(catalog.GameBingo))
	p := f.player(t, "ext-p", "Player")

	f.submit(t, Score{SeedID: seed.ID, PlayerID: p.ID,
		Elapsed: timefmt.FromMillis(1000), Proof: video("https://v/p")})
	if err := f.catalog.DeleteSeed(ctx, seed.ID); err != nil {
		t.Fatalf("delete seed: %v", err)
	}

	board, err := f.ledger.Leaderboard(ctx, seed.ID, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 0 {
		t.Fatalf("board after seed delete = %d entries, want 0", len(board))
	}
}

func TestByPlayerAndWeek(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s1 := f.seed(t, 800, catalog.PlainMode(catalog.GameBingo))
	s2 := f.seed(t, 801, catalog.PointsMode(20))
	p := f.player(t, "ext-p", "Player")

	f.submit(t, Score{SeedID: s1.ID, PlayerID: p.ID,
		Elapsed: timefmt.FromMillis(1000)})
	f.submit(t, Score{SeedID: s2.ID, PlayerID: p.ID, Points: intp(12),
		Elapsed: timefmt.DNF()})

	all, err := f.ledger.ByPlayer(ctx, p.ID, 0)
	if err != nil {
		t.Fatalf("by player: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("by player = %d entries, want 2", len(all))
	}

	week, err := f.ledger.ByPlayerAndWeek(ctx, p.ID, f.week.ID, 0)
	if err != nil {
		t.Fatalf("by player and week: %v", err)
	}
	if len(week) != 2 {
		t.Fatalf("by player and week = %d entries, want 2", len(week))
	}
	// Week listing follows the week's seed order: blind bingo before points.
	if week[0].SeedID != s1.ID || week[1].SeedID != s2.ID {
		t.Fatalf("week order = [%d %d], want [%d %d]", week[0].SeedID, week[1].SeedID, s1.ID, s2.ID)
	}
	if week[1].Points == nil || *week[1].Points != 12 {
		t.Fatalf("points entry = %+v", week[1])
	}
}

func TestWeekRecap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s1 := f.seed(t, 900, catalog.PlainMode(catalog.GameBingo))
	s2 := f.seed(t, 901, catalog.PointsMode(20))

	a := f.player(t, "ext-a", "Alpha")
	b := f.player(t, "ext-b", "Bravo")
	anon := f.player(t, "ext-anon", "")

	f.submit(t, Score{SeedID: s1.ID, PlayerID: a.ID,
		Elapsed: timefmt.FromMillis(900000), Proof: video("https://v/a")})
	f.submit(t, Score{SeedID: s1.ID, PlayerID: b.ID,
		Elapsed: timefmt.DNF(), Proof: video("https://v/b")})
	f.submit(t, Score{SeedID: s1.ID, PlayerID: anon.ID,
		Elapsed: timefmt.FromMillis(800000)})

	names, err := f.ledger.WeekPlayers(ctx, f.week.ID)
	if err != nil {
		t.Fatalf("week players: %v", err)
	}
	if len(names) != 2 || names[0] != "Alpha" || names[1] != "Bravo" {
		t.Fatalf("week players = %v, want [Alpha Bravo]", names)
	}

	overview, err := f.ledger.WeekOverview(ctx, f.week.ID)
	if err != nil {
		t.Fatalf("week overview: %v", err)
	}
	if overview.Players != 3 || overview.Submissions != 3 || overview.Finishes != 2 {
		t.Fatalf("overview = %+v", overview)
	}

	seeds, err := f.ledger.WeekSeeds(ctx, f.week.ID)
	if err != nil {
		t.Fatalf("week seeds: %v", err)
	}
	if len(seeds) != 2 {
		t.Fatalf("recap seeds = %d, want 2", len(seeds))
	}
	if seeds[0].SeedID != s1.ID || seeds[0].Submissions != 3 || seeds[0].Finishes != 2 {
		t.Fatalf("seed recap = %+v", seeds[0])
	}
	if seeds[1].SeedID != s2.ID || seeds[1].Submissions != 0 {
		t.Fatalf("empty seed recap = %+v", seeds[1])
	}

	best, err := f.ledger.Best(ctx, s1.ID)
	if err != nil {
		t.Fatalf("best: %v", err)
	}
	if best.Player.ExternalID != "ext-a" {
		t.Fatalf("best = %s, want ext-a", best.Player.ExternalID)
	}
	if _, err := f.ledger.Best(ctx, s2.ID); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("best of empty seed = %v, want ErrNotFound", err)
	}
}

func TestYearRecap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s1 := f.seed(t, 910, catalog.PlainMode(catalog.GameBingo))
	s2 := f.seed(t, 911, catalog.PointsMode(20))
	s3 := f.seed(t, 912, catalog.PlainMode(catalog.GameBingo))
	if _, err := f.catalog.PublishWeek(ctx, f.week.ID, "msg-910"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	year := time.Now().Year()

	a := f.player(t, "ext-a", "Alpha")
	anon := f.player(t, "ext-anon", "")

	f.submit(t, Score{SeedID: s1.ID, PlayerID: a.ID,
		Elapsed: timefmt.FromMillis(600000), Proof: video("https://v/1")})
	f.submit(t, Score{SeedID: s2.ID, PlayerID: a.ID, Points: intp(15),
		Elapsed: timefmt.DNF(), Proof: video("https://v/2")})
	f.submit(t, Score{SeedID: s3.ID, PlayerID: a.ID,
		Elapsed: timefmt.FromMillis(700000), Proof: video("https://v/3")})
	f.submit(t, Score{SeedID: s1.ID, PlayerID: anon.ID,
		Elapsed: timefmt.FromMillis(500000)})

	players, err := f.ledger.RecapPlayers(ctx, year)
	if err != nil {
		t.Fatalf("recap players: %v", err)
	}
	if len(players) != 2 || players[0].DisplayName != "Alpha" || players[1].ExternalID != "ext-anon" {
		t.Fatalf("recap players = %+v", players)
	}
	if empty, err := f.ledger.RecapPlayers(ctx, year-1); err != nil || len(empty) != 0 {
		t.Fatalf("previous year = %+v, %v", empty, err)
	}

	overview, err := f.ledger.RecapOverview(ctx, a.ID, year)
	if err != nil {
		t.Fatalf("recap overview: %v", err)
	}
	if overview.Seeds != 3 || overview.Weeks != 1 {
		t.Fatalf("overview = %+v", overview)
	}
	if overview.BestRank == nil || *overview.BestRank != 1 {
		t.Fatalf("best rank = %v, want 1", overview.BestRank)
	}

	// The anonymous player's score counts as played but never ranks.
	anonOverview, err := f.ledger.RecapOverview(ctx, anon.ID, year)
	if err != nil {
		t.Fatalf("anon overview: %v", err)
	}
	if anonOverview.Seeds != 1 || anonOverview.BestRank != nil {
		t.Fatalf("anon overview = %+v", anonOverview)
	}

	modes, err := f.ledger.RecapModeOverview(ctx, a.ID, year)
	if err != nil {
		t.Fatalf("mode overview: %v", err)
	}
	if len(modes) != 2 {
		t.Fatalf("mode overview = %+v", modes)
	}
	bingo, points := modes[0], modes[1]
	if bingo.GameType != catalog.GameBingo || bingo.Plays != 2 {
		t.Fatalf("bingo recap = %+v", bingo)
	}
	if bingo.AvgPoints != nil || bingo.AvgMillis == nil || *bingo.AvgMillis != 650000 {
		t.Fatalf("bingo averages = %+v", bingo)
	}
	if points.GameType != catalog.GamePoints || points.Plays != 1 {
		t.Fatalf("points recap = %+v", points)
	}
	if points.AvgPoints == nil || *points.AvgPoints != 15 || points.AvgMillis != nil {
		t.Fatalf("points averages = %+v", points)
	}
	if points.AvgRank == nil || *points.AvgRank != 1 {
		t.Fatalf("points avg rank = %+v", points.AvgRank)
	}

	best, err := f.ledger.RecapModeBest(ctx, a.ID, catalog.GameBingo, false, year)
	if err != nil {
		t.Fatalf("mode best: %v", err)
	}
	if best.SeedID != s1.ID {
		t.Fatalf("mode best seed = %d, want %d", best.SeedID, s1.ID)
	}
	if _, err := f.ledger.RecapModeBest(ctx, a.ID, catalog.GameBingo, true, year); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("unplayed mode best = %v, want ErrNotFound", err)
	}
}
