// Package flight implements the per-hash ingestion table.
//
// Each key moves through absent → pending → resolved. The first caller for
// an absent key runs the work; concurrent callers attach to the pending
// call and receive its result. Resolved keys short-circuit for the lifetime
// of the table. A failed call leaves the key absent, so the next caller
// runs the work again.
package flight

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// State is the ingestion state of a key.
type State int

const (
	Absent State = iota
	Pending
	Resolved
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	default:
		return "absent"
	}
}

// Table deduplicates work per key. The zero value is ready to use.
type Table struct {
	group    singleflight.Group
	resolved sync.Map // key -> struct{}
	pending  sync.Map // key -> struct{}
}

// Do runs fn for key unless it already resolved or is running. shared is
// true when the caller did not run fn itself.
//
// A caller attached to another caller's call stops waiting when its own ctx
// is done. If that call failed only because its runner's context was
// canceled, attached callers whose ctx is still live run fn again.
func (t *Table) Do(ctx context.Context, key string, fn func() error) (shared bool, err error) {
	for {
		if _, ok := t.resolved.Load(key); ok {
			return true, nil
		}

		self := new(byte)
		ch := t.group.DoChan(key, func() (any, error) {
			// A call that resolved between the check above and this one
			// has already been forgotten by the group.
			if _, ok := t.resolved.Load(key); ok {
				return nil, nil
			}

			t.pending.Store(key, struct{}{})
			defer t.pending.Delete(key)

			if err := fn(); err != nil {
				return self, err
			}
			t.resolved.Store(key, struct{}{})
			return self, nil
		})

		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case res := <-ch:
			shared = res.Val != self
			if shared && isContextErr(res.Err) && ctx.Err() == nil {
				continue
			}
			return shared, res.Err
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// State reports the current state of key.
func (t *Table) State(key string) State {
	if _, ok := t.resolved.Load(key); ok {
		return Resolved
	}
	if _, ok := t.pending.Load(key); ok {
		return Pending
	}
	return Absent
}

// Len returns the number of resolved keys.
func (t *Table) Len() int {
	n := 0
	t.resolved.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
