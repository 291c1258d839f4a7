// Package catalog manages the challenge catalog: version pools, weekly
// challenge sets, and the seeds inside them.
package catalog

import (
	"log/slog"
	"time"

	"github.com/onnwee/bingo-ledger/db"
)

// Catalog reads and writes weeks, seeds and version pools. It is safe for
// concurrent use; every write is a single statement unless run through an
// explicit transaction boundary via WithTx.
type Catalog struct {
	db  db.DBTX
	log *slog.Logger
	now func() time.Time
}

func New(dbtx db.DBTX, log *slog.Logger) *Catalog {
	return &Catalog{db: dbtx, log: log, now: time.Now}
}

// WithTx returns a copy of the catalog bound to tx. The copy shares the
// logger and clock with the receiver.
func (c *Catalog) WithTx(tx db.DBTX) *Catalog {
	cp := *c
	cp.db = tx
	return &cp
}
