package catalog

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/onnwee/bingo-ledger/db"
)

// Announcer posts a week and its seeds to an external channel and returns
// opaque message references. Retract removes a previously posted message; it
// is only called to compensate a failed publish.
type Announcer interface {
	AnnounceWeek(ctx context.Context, week Week, seeds []Seed) (ref string, err error)
	AnnounceSeed(ctx context.Context, week Week, seed Seed) (ref string, err error)
	Retract(ctx context.Context, ref string) error
}

// PublishWeekAnnounced publishes the week and posts the announcements as one
// unit: the storage writes run in a single transaction, and if anything fails
// after messages went out, the posted messages are retracted best-effort
// before the transaction rolls back. On success the week and each seed carry
// their message references.
func PublishWeekAnnounced(ctx context.Context, database *sql.DB, log *slog.Logger, weekID int64, ann Announcer) (Week, error) {
	var published Week
	var sent []string

	err := db.WithTx(ctx, database, func(tx *sql.Tx) error {
		c := New(tx, log)

		week, err := c.GetWeek(ctx, weekID)
		if err != nil {
			return err
		}
		if week.Published() {
			return &db.ConstraintViolation{Constraint: "week already published"}
		}
		seeds, err := c.SeedsByWeek(ctx, weekID)
		if err != nil {
			return err
		}

		weekRef, err := ann.AnnounceWeek(ctx, week, seeds)
		if err != nil {
			return err
		}
		sent = append(sent, weekRef)

		published, err = c.PublishWeek(ctx, weekID, weekRef)
		if err != nil {
			return err
		}
		for i, seed := range seeds {
			seedRef, err := ann.AnnounceSeed(ctx, published, seed)
			if err != nil {
				return err
			}
			sent = append(sent, seedRef)
			if err := c.SetSeedMessageRef(ctx, seed.ID, seedRef); err != nil {
				return err
			}
			seeds[i].MessageRef = seedRef
		}
		return nil
	})
	if err != nil {
		// The transaction already rolled back; the channel may still carry
		// messages for a week that is not published. Retract what went out.
		for _, ref := range sent {
			if rErr := ann.Retract(ctx, ref); rErr != nil {
				log.ErrorContext(ctx, "retract announcement failed", "message_ref", ref, "error", rErr)
			}
		}
		return Week{}, err
	}
	return published, nil
}
