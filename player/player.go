// Package player maps external chat identities to the canonical player
// records scores hang off of.
package player

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/onnwee/bingo-ledger/db"
)

// Player is one registered participant. ExternalID is the identity the chat
// platform hands us; DisplayName is the in-game name the player registered,
// empty until they do. A player without a display name can submit scores but
// never ranks.
type Player struct {
	ID          int64
	ExternalID  string
	DisplayName string
}

// Named reports whether the player has registered a display name.
func (p Player) Named() bool { return p.DisplayName != "" }

// Directory reads and writes player records. Safe for concurrent use.
type Directory struct {
	db  db.DBTX
	log *slog.Logger
}

func NewDirectory(dbtx db.DBTX, log *slog.Logger) *Directory {
	return &Directory{db: dbtx, log: log}
}

func scanPlayer(row *sql.Row) (Player, error) {
	var p Player
	var name sql.NullString
	if err := row.Scan(&p.ID, &p.ExternalID, &name); err != nil {
		return Player{}, err
	}
	p.DisplayName = name.String
	return p, nil
}

// GetOrCreate resolves the external identity to a player record, registering
// it on first sight. Repeated calls return the same record.
func (d *Directory) GetOrCreate(ctx context.Context, externalID string) (Player, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return Player{}, &db.ValidationError{Field: "external_id", Reason: "must not be empty"}
	}

	p, err := d.GetByExternalID(ctx, externalID)
	if err == nil {
		return p, nil
	}
	if err != db.ErrNotFound {
		return Player{}, err
	}

	res, err := d.db.ExecContext(ctx, `INSERT INTO players(external_id) VALUES (?)`, externalID)
	if err != nil {
		// Lost a race with a concurrent registration; the record exists now.
		if db.IsConstraint(db.MapError(err, "", "players.external_id")) {
			return d.GetByExternalID(ctx, externalID)
		}
		return Player{}, db.MapError(err, "register player", "players.external_id")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Player{}, &db.StorageError{Op: "register player", Err: err}
	}
	d.log.InfoContext(ctx, "player registered", "player_id", id, "external_id", externalID)
	return Player{ID: id, ExternalID: externalID}, nil
}

// Get returns the player stored under id.
func (d *Directory) Get(ctx context.Context, id int64) (Player, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, external_id, display_name FROM players WHERE id = ?`, id)
	p, err := scanPlayer(row)
	if err != nil {
		return Player{}, db.MapError(err, "get player", "")
	}
	return p, nil
}

// GetByExternalID returns the player registered under the external identity.
func (d *Directory) GetByExternalID(ctx context.Context, externalID string) (Player, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, external_id, display_name FROM players WHERE external_id = ?`, externalID)
	p, err := scanPlayer(row)
	if err != nil {
		return Player{}, db.MapError(err, "get player by external id", "")
	}
	return p, nil
}

// SetDisplayName registers or changes the player's in-game name. Names are
// unique across players; a taken name fails with a ConstraintViolation.
func (d *Directory) SetDisplayName(ctx context.Context, playerID int64, name string) (Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Player{}, &db.ValidationError{Field: "display_name", Reason: "must not be empty"}
	}
	res, err := d.db.ExecContext(ctx,
		`UPDATE players SET display_name = ? WHERE id = ?`, name, playerID)
	if err != nil {
		return Player{}, db.MapError(err, "set display name", "players.display_name")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Player{}, &db.StorageError{Op: "set display name", Err: err}
	}
	if n == 0 {
		return Player{}, db.ErrNotFound
	}
	d.log.InfoContext(ctx, "display name set", "player_id", playerID, "display_name", name)
	return d.Get(ctx, playerID)
}
