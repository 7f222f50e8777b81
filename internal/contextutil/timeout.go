package contextutil

import (
	"context"
	"time"
)

// Bound limits parent to d. A non-positive d leaves parent unbounded and a
// nil parent is replaced with context.Background().
func Bound(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
