package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/remote"
	"github.com/teranos/pagesync/types"
)

func seeded(t *testing.T) (*Client, *time.Time) {
	t.Helper()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c := New()
	c.Now = func() time.Time { return now }
	c.PutPage(remote.Page{ID: "1", Title: "Root", SpaceKey: "DOC", Version: 1, Body: "<p>root</p>"})
	c.PutPage(remote.Page{ID: "2", Title: "Child", SpaceKey: "DOC", Version: 4, ParentID: "1", Ancestors: []string{"1"}})
	c.PutPage(remote.Page{ID: "3", Title: "Elsewhere", SpaceKey: "OPS", Version: 2})
	c.PutFolder(remote.Folder{ID: "f1", Title: "Specs", SpaceKey: "DOC", Version: 1, ParentID: "1", Ancestors: []string{"1"}})
	return c, &now
}

func ids(pages []remote.Page) []string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.ID)
	}
	return out
}

func TestListPages_Scopes(t *testing.T) {
	ctx := context.Background()
	c, _ := seeded(t)

	pages, err := c.ListPages(ctx, types.SpaceScope{SpaceKey: "DOC"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(pages))
	assert.Empty(t, pages[0].Body, "listings carry no bodies")

	pages, err = c.ListPages(ctx, types.TreeScope{AncestorID: "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(pages))

	_, err = c.ListPages(ctx, types.PageScope{PageID: "1"})
	assert.True(t, errors.Is(err, remote.ErrScopeNotEnumerable))

	folders, err := c.ListFolders(ctx, types.TreeScope{AncestorID: "1"})
	require.NoError(t, err)
	require.Len(t, folders, 1)
	folders, err = c.ListFolders(ctx, types.PageScope{PageID: "1"})
	require.NoError(t, err)
	assert.Empty(t, folders)
}

func TestChangedSince(t *testing.T) {
	ctx := context.Background()
	c, now := seeded(t)
	since := now.Add(time.Minute)

	pages, err := c.ChangedSince(ctx, types.SpaceScope{SpaceKey: "DOC"}, since)
	require.NoError(t, err)
	assert.Empty(t, pages)

	*now = since.Add(time.Minute)
	require.NoError(t, c.EditPage("2", "<p>new</p>"))
	pages, err = c.ChangedSince(ctx, types.SpaceScope{SpaceKey: "DOC"}, since)
	require.NoError(t, err)
	require.Equal(t, []string{"2"}, ids(pages))
	assert.Equal(t, 5, pages[0].Version)

	pages, err = c.ChangedSince(ctx, types.PageScope{PageID: "2"}, since)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(pages))
}

func TestUpdatePage_VersionCheck(t *testing.T) {
	ctx := context.Background()
	c, _ := seeded(t)

	_, err := c.UpdatePage(ctx, remote.PageUpdate{ID: "2", Body: "<p>x</p>", Version: 3})
	assert.True(t, errors.Is(err, errors.ErrVersionConflict))

	p, err := c.UpdatePage(ctx, remote.PageUpdate{ID: "2", Body: "<p>x</p>", Version: 4})
	require.NoError(t, err)
	assert.Equal(t, 5, p.Version)
	assert.Equal(t, "Child", p.Title)

	_, err = c.UpdatePage(ctx, remote.PageUpdate{ID: "404", Version: 1})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestCreatePage(t *testing.T) {
	ctx := context.Background()
	c, _ := seeded(t)

	p, err := c.CreatePage(ctx, remote.NewPage{SpaceKey: "DOC", ParentID: "2", Title: "Grandchild", Body: "<p>g</p>"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, p.Ancestors)
	assert.Equal(t, 1, p.Version)

	got, err := c.GetPage(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>g</p>", got.Body)

	_, err = c.CreatePage(ctx, remote.NewPage{ParentID: "nope", Title: "x"})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestFailNextAndCalls(t *testing.T) {
	ctx := context.Background()
	c, _ := seeded(t)
	boom := errors.New("boom")
	c.FailNext("GetPage", boom)

	_, err := c.GetPage(ctx, "1")
	assert.ErrorIs(t, err, boom)
	_, err = c.GetPage(ctx, "1")
	assert.NoError(t, err)
	assert.Equal(t, 2, c.Calls("GetPage"))
}

func TestListAttachments(t *testing.T) {
	ctx := context.Background()
	c, _ := seeded(t)
	c.PutAttachment(remote.Attachment{ID: "a2", PageID: "1", Filename: "z.png"})
	c.PutAttachment(remote.Attachment{ID: "a1", PageID: "1", Filename: "a.pdf"})
	c.PutAttachment(remote.Attachment{ID: "a1", PageID: "1", Filename: "a.pdf", Version: 2})

	list, err := c.ListAttachments(ctx, "1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a.pdf", list[0].Filename)
	assert.Equal(t, 2, list[0].Version)
}
