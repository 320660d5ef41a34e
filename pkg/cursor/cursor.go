// Package cursor walks an object provider page by page, persisting progress
// so a crashed run resumes at the last completed page instead of page zero.
// The cursor is page-granular: a crash mid-page reprocesses that page, which
// is safe because reconciliation is idempotent per object.
package cursor

import (
	"context"

	"github.com/pkg/errors"
	"github.com/syncbridge/syncbridge/pkg/providers"
)

// Advancer persists cursor movement. Implemented by the synchronizations
// service.
type Advancer interface {
	AdvanceCursor(ctx context.Context, syncID, nextPage int) error
	ResetCursor(ctx context.Context, syncID int) error
}

type Cursor struct {
	provider providers.ObjectProvider
	advancer Advancer
	syncID   int
	ref      string
	page     int
	fullScan bool
	done     bool
}

func New(provider providers.ObjectProvider, advancer Advancer, syncID int, ref string, startPage int) *Cursor {
	if startPage < 0 {
		startPage = 0
	}
	return &Cursor{
		provider: provider,
		advancer: advancer,
		syncID:   syncID,
		ref:      ref,
		page:     startPage,
		fullScan: startPage == 0,
	}
}

// Page reports the page the cursor is currently on.
func (c *Cursor) Page() int {
	return c.page
}

// FullScan reports whether this traversal started from page zero. Only full
// scans may prune contracts afterwards; a resumed partial scan has not seen
// every object.
func (c *Cursor) FullScan() bool {
	return c.fullScan
}

// Next fetches the current page. It returns nil once the provider reports no
// more pages or an empty page.
func (c *Cursor) Next(ctx context.Context) (*providers.Page, error) {
	if c.done {
		return nil, nil
	}

	page, err := c.provider.List(ctx, c.ref, c.page)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if !page.HasMore {
		c.done = true
	}
	if len(page.Objects) == 0 {
		c.done = true
		return nil, nil
	}

	return page, nil
}

// Advance records that the current page completed, so resumption starts at
// the following page.
func (c *Cursor) Advance(ctx context.Context) error {
	c.page++
	return errors.WithStack(c.advancer.AdvanceCursor(ctx, c.syncID, c.page))
}

// Reset rewinds the persisted cursor so the next run starts a fresh full
// scan.
func (c *Cursor) Reset(ctx context.Context) error {
	c.page = 0
	c.done = false
	c.fullScan = true
	return errors.WithStack(c.advancer.ResetCursor(ctx, c.syncID))
}
