// Package audit holds the base record every persisted entity embeds.
package audit

import "time"

// Record carries write-path timestamps. Values are assigned by the storage
// adapters when a row is inserted or updated, never by entity logic.
type Record struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Touch stamps a record the way the storage write path does: CreatedAt is set
// once on first write, UpdatedAt on every write.
func (r *Record) Touch(now time.Time) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}
