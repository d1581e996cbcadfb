package writer

import (
	"context"

	"github.com/ehutt/rent-radar/models"
)

// ViolationStore persists detected violations with insert-or-ignore
// semantics on the natural key (listing id, violation type, accessed date).
// Re-running a day must never create duplicate rows.
type ViolationStore interface {
	// InsertIfAbsent stores the violation unless one with the same natural
	// key already exists. It reports whether a row was inserted.
	InsertIfAbsent(ctx context.Context, v models.Violation) (bool, error)
	Close() error
}
