package audit

import "context"

// Store is an append-only event sink with actor-scoped reads.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByActor(ctx context.Context, actor string) ([]Event, error)
}
