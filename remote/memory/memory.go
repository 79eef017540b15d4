// Package memory is an in-process remote.Client. Pages live in a map; the
// clock is injectable so tests can drive ChangedSince.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/remote"
	"github.com/teranos/pagesync/types"
)

// Client implements remote.Client.
type Client struct {
	mu          sync.Mutex
	pages       map[string]remote.Page
	folders     map[string]remote.Folder
	attachments map[string][]remote.Attachment
	nextID      int
	failures    map[string]error
	calls       map[string]int

	// Now stamps ModifiedAt on writes. Defaults to time.Now.
	Now func() time.Time
	// BeforeCall runs at the start of every call, outside the lock.
	BeforeCall func(op string)
}

// New returns an empty remote.
func New() *Client {
	return &Client{
		pages:       make(map[string]remote.Page),
		folders:     make(map[string]remote.Folder),
		attachments: make(map[string][]remote.Attachment),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
		nextID:      1000,
		Now:         time.Now,
	}
}

var _ remote.Client = (*Client)(nil)

// PutPage stores p as is. A page with a zero ModifiedAt is stamped with Now.
func (c *Client) PutPage(p remote.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.ModifiedAt.IsZero() {
		p.ModifiedAt = c.Now()
	}
	if p.Status == "" {
		p.Status = types.StatusCurrent
	}
	c.pages[p.ID] = p
}

// EditPage simulates a remote edit: the body changes and the version bumps.
func (c *Client) EditPage(id, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pages[id]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "page %s", id)
	}
	p.Body = body
	p.Version++
	p.ModifiedAt = c.Now()
	c.pages[id] = p
	return nil
}

// DeletePage removes a page and its attachments.
func (c *Client) DeletePage(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pages, id)
	delete(c.attachments, id)
}

// PutFolder stores f as is.
func (c *Client) PutFolder(f remote.Folder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.folders[f.ID] = f
}

// DeleteFolder removes a folder.
func (c *Client) DeleteFolder(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.folders, id)
}

// PutAttachment adds or replaces an attachment by id.
func (c *Client) PutAttachment(a remote.Attachment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.attachments[a.PageID]
	for i := range list {
		if list[i].ID == a.ID {
			list[i] = a
			return
		}
	}
	c.attachments[a.PageID] = append(list, a)
}

// FailNext makes the next call to op fail with err.
func (c *Client) FailNext(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = err
}

// Calls returns how many times op was called.
func (c *Client) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// Page returns a stored page without counting a call.
func (c *Client) Page(id string) (remote.Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pages[id]
	return p, ok
}

func (c *Client) begin(ctx context.Context, op string) error {
	if c.BeforeCall != nil {
		c.BeforeCall(op)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
	if err, ok := c.failures[op]; ok {
		delete(c.failures, op)
		return err
	}
	return nil
}

func summary(p remote.Page) remote.Page {
	p.Body = ""
	p.Ancestors = append([]string(nil), p.Ancestors...)
	return p
}

func sortPages(pages []remote.Page) {
	sort.Slice(pages, func(i, j int) bool { return pages[i].ID < pages[j].ID })
}

func (c *Client) ListPages(ctx context.Context, scope types.Scope) ([]remote.Page, error) {
	if err := c.begin(ctx, "ListPages"); err != nil {
		return nil, err
	}
	if !types.CanEnumerate(scope) {
		return nil, errors.Wrapf(remote.ErrScopeNotEnumerable, "%s", scope)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []remote.Page
	for _, p := range c.pages {
		if remote.InScope(p, scope) {
			out = append(out, summary(p))
		}
	}
	sortPages(out)
	return out, nil
}

func (c *Client) GetPage(ctx context.Context, id string) (*remote.Page, error) {
	if err := c.begin(ctx, "GetPage"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pages[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "page %s", id)
	}
	p.Ancestors = append([]string(nil), p.Ancestors...)
	return &p, nil
}

func (c *Client) ChangedSince(ctx context.Context, scope types.Scope, since time.Time) ([]remote.Page, error) {
	if err := c.begin(ctx, "ChangedSince"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []remote.Page
	for _, p := range c.pages {
		if remote.InScope(p, scope) && !p.ModifiedAt.Before(since) {
			out = append(out, summary(p))
		}
	}
	sortPages(out)
	return out, nil
}

func (c *Client) ListFolders(ctx context.Context, scope types.Scope) ([]remote.Folder, error) {
	if err := c.begin(ctx, "ListFolders"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []remote.Folder
	for _, f := range c.folders {
		if remote.FolderInScope(f, scope) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Client) UpdatePage(ctx context.Context, u remote.PageUpdate) (*remote.Page, error) {
	if err := c.begin(ctx, "UpdatePage"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pages[u.ID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "page %s", u.ID)
	}
	if p.Version != u.Version {
		return nil, errors.Wrapf(errors.ErrVersionConflict, "page %s is at version %d, update based on %d", u.ID, p.Version, u.Version)
	}
	if u.Title != "" {
		p.Title = u.Title
	}
	p.Body = u.Body
	p.Version++
	p.ModifiedAt = c.Now()
	c.pages[u.ID] = p
	out := p
	return &out, nil
}

func (c *Client) CreatePage(ctx context.Context, n remote.NewPage) (*remote.Page, error) {
	if err := c.begin(ctx, "CreatePage"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var ancestors []string
	if n.ParentID != "" {
		parent, ok := c.pages[n.ParentID]
		if !ok {
			return nil, errors.Wrapf(errors.ErrNotFound, "parent page %s", n.ParentID)
		}
		ancestors = append(append([]string(nil), parent.Ancestors...), parent.ID)
	}
	c.nextID++
	now := c.Now()
	p := remote.Page{
		ID:         strconv.Itoa(c.nextID),
		Title:      n.Title,
		SpaceKey:   n.SpaceKey,
		Version:    1,
		ParentID:   n.ParentID,
		Ancestors:  ancestors,
		Status:     types.StatusCurrent,
		CreatedAt:  now,
		ModifiedAt: now,
		Body:       n.Body,
	}
	c.pages[p.ID] = p
	out := p
	return &out, nil
}

func (c *Client) ListAttachments(ctx context.Context, pageID string) ([]remote.Attachment, error) {
	if err := c.begin(ctx, "ListAttachments"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pages[pageID]; !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "page %s", pageID)
	}
	out := append([]remote.Attachment(nil), c.attachments[pageID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}
