package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/bingo-ledger/catalog"
	"github.com/onnwee/bingo-ledger/db"
	"github.com/onnwee/bingo-ledger/score"
	"github.com/onnwee/bingo-ledger/semver"
	"github.com/onnwee/bingo-ledger/submit"
	"github.com/onnwee/bingo-ledger/telemetry"
	"github.com/onnwee/bingo-ledger/timefmt"
)

// Handlers holds the dependencies shared by the HTTP handlers.
type Handlers struct {
	deps Deps
}

func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

type weekJSON struct {
	ID             int64   `json:"id"`
	Number         int     `json:"number"`
	Version        string  `json:"version"`
	GameVersion    string  `json:"game_version"`
	MaxVersion     *string `json:"max_version,omitempty"`
	MaxGameVersion *string `json:"max_game_version,omitempty"`
	Description    string  `json:"description,omitempty"`
	Published      bool    `json:"published"`
	PublishedAt    string  `json:"published_at,omitempty"`
	MessageRef     string  `json:"message_ref,omitempty"`
}

func renderWeek(w catalog.Week) weekJSON {
	out := weekJSON{
		ID:          w.ID,
		Number:      w.Number,
		Version:     w.Version.String(),
		GameVersion: w.GameVersion.String(),
		Description: w.Description,
		Published:   w.Published(),
		MessageRef:  w.MessageRef,
	}
	if w.MaxVersion != nil {
		s := w.MaxVersion.String()
		out.MaxVersion = &s
	}
	if w.MaxGameVersion != nil {
		s := w.MaxGameVersion.String()
		out.MaxGameVersion = &s
	}
	if w.Published() {
		out.PublishedAt = w.PublishedAt.UTC().Format(time.RFC3339)
	}
	return out
}

type seedJSON struct {
	ID             int64  `json:"id"`
	WeekID         int64  `json:"week_id"`
	Number         int64  `json:"number"`
	GameType       string `json:"game_type"`
	Practiced      bool   `json:"practiced"`
	TimeBoxMinutes int    `json:"time_box_minutes,omitempty"`
	Label          string `json:"label"`
	Description    string `json:"description,omitempty"`
	MessageRef     string `json:"message_ref,omitempty"`
}

func renderSeed(s catalog.Seed) seedJSON {
	return seedJSON{
		ID:             s.ID,
		WeekID:         s.WeekID,
		Number:         s.Number,
		GameType:       s.Mode.Type.String(),
		Practiced:      s.Mode.Practiced,
		TimeBoxMinutes: s.Mode.TimeBoxMinutes,
		Label:          s.Label(),
		Description:    s.Description,
		MessageRef:     s.MessageRef,
	}
}

type entryJSON struct {
	PlayerID    int64  `json:"player_id"`
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name,omitempty"`
	Points      *int   `json:"points,omitempty"`
	Elapsed     string `json:"elapsed"`
	ProofKind   string `json:"proof_kind,omitempty"`
	ProofURL    string `json:"proof_url,omitempty"`
	Note        string `json:"note,omitempty"`
	SubmittedAt string `json:"submitted_at"`
	Rank        *int   `json:"rank,omitempty"`
}

func renderEntry(e score.Entry) entryJSON {
	out := entryJSON{
		PlayerID:    e.Player.ID,
		ExternalID:  e.Player.ExternalID,
		DisplayName: e.Player.DisplayName,
		Points:      e.Points,
		Elapsed:     timefmt.Format(e.Elapsed, true),
		Note:        e.Note,
		SubmittedAt: e.SubmittedAt.UTC().Format(time.RFC3339),
		Rank:        e.Rank,
	}
	if e.Proof != nil {
		out.ProofKind = e.Proof.Kind.String()
		out.ProofURL = e.Proof.URL
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the storage error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *db.ValidationError
		cv *db.ConstraintViolation
		pe *timefmt.ParseError
		se *semver.ParseError
	)
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.As(err, &cv):
		writeJSON(w, http.StatusConflict, map[string]string{"error": cv.Error()})
	case errors.As(err, &ve), errors.As(err, &pe), errors.As(err, &se):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		telemetry.LoggerWithCorr(r.Context()).Error("request failed",
			slog.String("path", r.URL.Path), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &db.ValidationError{Field: name, Reason: "must be a positive integer"}
	}
	return id, nil
}

// parseIntQuery extracts an int parameter from query string with a default value.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// HandleCurrentWeek returns the most recently published week.
func (h *Handlers) HandleCurrentWeek(w http.ResponseWriter, r *http.Request) {
	week, err := h.deps.Catalog.GetCurrentWeek(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderWeek(week))
}

// HandleGetWeek returns one week by id.
func (h *Handlers) HandleGetWeek(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	week, err := h.deps.Catalog.GetWeek(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderWeek(week))
}

// HandleWeekSeeds lists the week's seeds in announcement order.
func (h *Handlers) HandleWeekSeeds(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.deps.Catalog.GetWeek(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	seeds, err := h.deps.Catalog.SeedsByWeek(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]seedJSON, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, renderSeed(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleWeekRecap summarizes the week's participation.
func (h *Handlers) HandleWeekRecap(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.deps.Catalog.GetWeek(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	overview, err := h.deps.Ledger.WeekOverview(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	names, err := h.deps.Ledger.WeekPlayers(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	seeds, err := h.deps.Ledger.WeekSeeds(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"players":     overview.Players,
		"submissions": overview.Submissions,
		"finishes":    overview.Finishes,
		"named":       names,
		"seeds":       seeds,
	})
}

// HandleLeaderboard returns the seed's standings in measure order; entries
// that hold no rank still appear at their measure's position.
func (h *Handlers) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.deps.Catalog.GetSeed(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	limit := parseIntQuery(r, "limit", h.deps.Cfg.LeaderboardLimit)
	var entries []score.Entry
	telemetry.TimeFunc(telemetry.LeaderboardDuration, func() {
		entries, err = h.deps.Ledger.Leaderboard(r.Context(), id, limit)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, renderEntry(e))
	}
	writeJSON(w, http.StatusOK, out)
}

type submitRequest struct {
	ExternalID string `json:"external_id"`
	Elapsed    string `json:"elapsed"`
	Points     *int   `json:"points,omitempty"`
	ProofKind  string `json:"proof_kind,omitempty"`
	ProofURL   string `json:"proof_url,omitempty"`
	Note       string `json:"note,omitempty"`
}

// HandleSubmitScore records a submission for the seed. Rejected submissions
// stay reclaimable for the retry window; the response says so.
func (h *Handlers) HandleSubmitScore(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}

	req := submit.Request{
		SeedID:     id,
		ExternalID: body.ExternalID,
		RawElapsed: body.Elapsed,
		Points:     body.Points,
		Note:       body.Note,
	}
	if body.ProofURL != "" {
		kind := score.ProofImage
		if body.ProofKind == "video" {
			kind = score.ProofVideo
		}
		req.Proof = &score.Proof{Kind: kind, URL: body.ProofURL}
	}

	entry, err := h.deps.Submit.Submit(r.Context(), req)
	if err != nil {
		var (
			ve *db.ValidationError
			pe *timefmt.ParseError
		)
		if errors.As(err, &ve) || errors.As(err, &pe) || errors.Is(err, db.ErrNotFound) {
			status := http.StatusBadRequest
			if errors.Is(err, db.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeJSON(w, status, map[string]any{
				"error":           err.Error(),
				"retry_available": true,
			})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderEntry(entry))
}

// HandleRemoveScore withdraws a player's submission for a current-week seed.
func (h *Handlers) HandleRemoveScore(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.deps.Submit.Remove(r.Context(), r.PathValue("externalID"), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type modeRecapJSON struct {
	GameType  string   `json:"game_type"`
	Practiced bool     `json:"practiced"`
	Plays     int      `json:"plays"`
	AvgPoints *float64 `json:"avg_points,omitempty"`
	AvgMillis *float64 `json:"avg_millis,omitempty"`
	AvgRank   *float64 `json:"avg_rank,omitempty"`
}

// HandlePlayerRecap summarizes a player's year, defaulting to the current
// one. Override with ?year=.
func (h *Handlers) HandlePlayerRecap(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Players.GetByExternalID(r.Context(), r.PathValue("externalID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	year := parseIntQuery(r, "year", time.Now().Year())

	overview, err := h.deps.Ledger.RecapOverview(r.Context(), p.ID, year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	modes, err := h.deps.Ledger.RecapModeOverview(r.Context(), p.ID, year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]modeRecapJSON, 0, len(modes))
	for _, m := range modes {
		out = append(out, modeRecapJSON{
			GameType:  m.GameType.String(),
			Practiced: m.Practiced,
			Plays:     m.Plays,
			AvgPoints: m.AvgPoints,
			AvgMillis: m.AvgMillis,
			AvgRank:   m.AvgRank,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":      year,
		"seeds":     overview.Seeds,
		"weeks":     overview.Weeks,
		"best_rank": overview.BestRank,
		"modes":     out,
	})
}

// HandlePlayerScores lists a player's submissions, optionally scoped to one
// week via ?week=.
func (h *Handlers) HandlePlayerScores(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Players.GetByExternalID(r.Context(), r.PathValue("externalID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := parseIntQuery(r, "limit", 0)
	var entries []score.Entry
	if weekID := parseIntQuery(r, "week", 0); weekID > 0 {
		entries, err = h.deps.Ledger.ByPlayerAndWeek(r.Context(), p.ID, int64(weekID), limit)
	} else {
		entries, err = h.deps.Ledger.ByPlayer(r.Context(), p.ID, limit)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, renderEntry(e))
	}
	writeJSON(w, http.StatusOK, out)
}
