package sync

import (
	"context"

	"github.com/teranos/pagesync/validate"
)

// known answers validation lookups from the record store and the workspace.
type known struct{ e *Engine }

func (k known) LookupPath(ctx context.Context, path string) (string, bool, error) {
	return k.e.store.LookupPath(ctx, path)
}

func (k known) FileExists(path string) bool { return k.e.ws.FileExists(path) }

// Known returns the engine's view of tracked state for the validator.
func (e *Engine) Known() validate.Known { return known{e} }
