// Package submit orchestrates score submissions: identity resolution, elapsed
// time parsing, input validation, ledger writes, and the short-lived retry
// cache that lets a player fix a rejected submission without retyping
// everything.
package submit

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/onnwee/bingo-ledger/catalog"
	"github.com/onnwee/bingo-ledger/db"
	"github.com/onnwee/bingo-ledger/expiring"
	"github.com/onnwee/bingo-ledger/player"
	"github.com/onnwee/bingo-ledger/score"
	"github.com/onnwee/bingo-ledger/telemetry"
	"github.com/onnwee/bingo-ledger/timefmt"
)

// DefaultRetryTTL is how long a rejected submission stays reclaimable.
const DefaultRetryTTL = 300 * time.Second

// DefaultMaxPoints bounds the points value accepted on points seeds.
const DefaultMaxPoints = 1000

// Request is one submission as the player typed it. RawElapsed is kept
// verbatim so a rejected request can be handed back for correction.
type Request struct {
	SeedID     int64
	ExternalID string
	RawElapsed string
	Points     *int
	Proof      *score.Proof
	Note       string
}

type pendingKey struct {
	seedID     int64
	externalID string
}

// Service runs the submission workflow. Safe for concurrent use.
type Service struct {
	ledger    *score.Ledger
	players   *player.Directory
	catalog   *catalog.Catalog
	pending   *expiring.Map[pendingKey, Request]
	maxPoints int
	log       *slog.Logger
}

// NewService wires the workflow. Non-positive ttl and maxPoints fall back to
// the defaults.
func NewService(ledger *score.Ledger, players *player.Directory, cat *catalog.Catalog, ttl time.Duration, maxPoints int, log *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultRetryTTL
	}
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	s := &Service{ledger: ledger, players: players, catalog: cat, maxPoints: maxPoints, log: log}
	s.pending = expiring.NewWithEvict(ttl, func(k pendingKey, _ Request) {
		if telemetry.RetryCacheEvictions != nil {
			telemetry.RetryCacheEvictions.Inc()
		}
		telemetry.SetRetryCacheSize(s.pending.Len())
		log.Debug("pending submission expired", "seed_id", k.seedID, "external_id", k.externalID)
	})
	return s
}

// Close releases the retry cache's timers. Pending entries are dropped
// without eviction callbacks.
func (s *Service) Close() { s.pending.Stop() }

// Submit runs the request through the workflow. The player is registered on
// first contact. The seed must belong to the current week; points must be
// within range on points seeds; proof links must be https. A rejected request
// is stashed in the retry cache under its (seed, player) key and the error
// returned; a successful write clears any stashed request for that key and
// returns the recorded entry with its standing.
func (s *Service) Submit(ctx context.Context, req Request) (score.Entry, error) {
	var entry score.Entry
	var err error
	telemetry.TimeFunc(telemetry.SubmitDuration, func() {
		entry, err = s.submit(ctx, req)
	})
	return entry, err
}

func (s *Service) submit(ctx context.Context, req Request) (score.Entry, error) {
	p, err := s.players.GetOrCreate(ctx, req.ExternalID)
	if err != nil {
		return score.Entry{}, err
	}
	key := pendingKey{seedID: req.SeedID, externalID: p.ExternalID}

	reject := func(err error) (score.Entry, error) {
		s.stash(key, req)
		return score.Entry{}, err
	}

	if _, err := s.currentWeekSeed(ctx, req.SeedID); err != nil {
		return reject(err)
	}
	if req.Points != nil && (*req.Points < 0 || *req.Points > s.maxPoints) {
		return reject(&db.ValidationError{Field: "points", Reason: "out of range"})
	}
	if req.Proof != nil {
		if err := checkProofURL(req.Proof.URL); err != nil {
			return reject(err)
		}
	}
	elapsed, err := timefmt.Parse(req.RawElapsed)
	if err != nil {
		return reject(err)
	}

	err = s.ledger.Upsert(ctx, score.Score{
		SeedID:   req.SeedID,
		PlayerID: p.ID,
		Points:   req.Points,
		Elapsed:  elapsed,
		Proof:    req.Proof,
		Note:     req.Note,
	})
	if err != nil {
		var ve *db.ValidationError
		if errors.As(err, &ve) || errors.Is(err, db.ErrNotFound) {
			s.stash(key, req)
		}
		return score.Entry{}, err
	}

	// Success invalidates any stashed retry for this key.
	if _, had := s.pending.Take(key); had {
		telemetry.SetRetryCacheSize(s.pending.Len())
	}
	if telemetry.SubmissionsAccepted != nil {
		telemetry.SubmissionsAccepted.Inc()
	}
	return s.ledger.Get(ctx, req.SeedID, p.ID)
}

// Remove withdraws the player's submission for the seed. Like Submit it only
// operates on the current week's board.
func (s *Service) Remove(ctx context.Context, externalID string, seedID int64) error {
	p, err := s.players.GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if _, err := s.currentWeekSeed(ctx, seedID); err != nil {
		return err
	}
	return s.ledger.Delete(ctx, seedID, p.ID)
}

// currentWeekSeed resolves the seed and checks it belongs to the current
// (most recently published) week.
func (s *Service) currentWeekSeed(ctx context.Context, seedID int64) (catalog.Seed, error) {
	seed, err := s.catalog.GetSeed(ctx, seedID)
	if err != nil {
		return catalog.Seed{}, err
	}
	week, err := s.catalog.GetCurrentWeek(ctx)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return catalog.Seed{}, &db.ValidationError{Field: "seed", Reason: "no published week to submit against"}
		}
		return catalog.Seed{}, err
	}
	if seed.WeekID != week.ID {
		return catalog.Seed{}, &db.ValidationError{Field: "seed", Reason: "seed is not part of the current week"}
	}
	return seed, nil
}

func checkProofURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return &db.ValidationError{Field: "proof_url", Reason: "must be a valid https link"}
	}
	return nil
}

func (s *Service) stash(key pendingKey, req Request) {
	s.pending.Put(key, req)
	telemetry.SetRetryCacheSize(s.pending.Len())
	if telemetry.SubmissionsRejected != nil {
		telemetry.SubmissionsRejected.Inc()
	}
	s.log.Info("submission rejected, retry window open",
		"seed_id", key.seedID, "external_id", key.externalID)
}

// Reclaim removes and returns the stashed request for the (seed, player)
// key, if its retry window is still open. The caller pre-fills the retry
// from it; a second reclaim misses.
func (s *Service) Reclaim(seedID int64, externalID string) (Request, bool) {
	req, ok := s.pending.Take(pendingKey{seedID: seedID, externalID: externalID})
	if ok {
		telemetry.SetRetryCacheSize(s.pending.Len())
		if telemetry.SubmissionsRetried != nil {
			telemetry.SubmissionsRetried.Inc()
		}
	}
	return req, ok
}

// PendingCount reports how many rejected submissions are still reclaimable.
func (s *Service) PendingCount() int { return s.pending.Len() }
