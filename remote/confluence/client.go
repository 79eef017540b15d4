// Package confluence implements remote.Client over the Confluence REST API.
package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/internal/httpclient"
	"github.com/teranos/pagesync/logger"
	"github.com/teranos/pagesync/remote"
	"github.com/teranos/pagesync/types"
)

// PageSize is the limit requested per listing call.
const PageSize = 100

const (
	pageExpand   = "space,version,ancestors,history"
	bodyExpand   = pageExpand + ",body.storage"
	cqlTimeStamp = "2006/01/02 15:04"
)

// Config holds connection settings. With an Email the token is sent as
// basic auth (cloud API tokens); without one as a bearer token (personal
// access tokens on self-hosted instances).
type Config struct {
	BaseURL string
	Email   string
	Token   string
	HTTP    httpclient.Options
}

// Client talks to one Confluence site.
type Client struct {
	base   *url.URL
	cfg    Config
	http   *httpclient.Client
	logger *zap.SugaredLogger
}

var _ remote.Client = (*Client)(nil)

// New validates cfg and returns a client.
func New(cfg Config, log *zap.SugaredLogger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.WithHint(errors.New("remote base URL is empty"), "set remote.base_url or PAGESYNC_REMOTE_BASE_URL")
	}
	hc := httpclient.New(cfg.HTTP, log)
	base, err := hc.ValidateURL(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "remote base URL %q", cfg.BaseURL)
	}
	return &Client{
		base:   base,
		cfg:    cfg,
		http:   hc,
		logger: logger.Or(log).Named("confluence"),
	}, nil
}

type user struct {
	AccountID   string `json:"accountId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

func (u user) name() string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.Username != "":
		return u.Username
	}
	return u.AccountID
}

type content struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Title  string `json:"title"`
	Space  struct {
		Key string `json:"key"`
	} `json:"space"`
	Version struct {
		Number int       `json:"number"`
		When   time.Time `json:"when"`
		By     user      `json:"by"`
	} `json:"version"`
	Ancestors []struct {
		ID string `json:"id"`
	} `json:"ancestors"`
	History struct {
		CreatedBy   user      `json:"createdBy"`
		CreatedDate time.Time `json:"createdDate"`
	} `json:"history"`
	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Metadata struct {
		MediaType string `json:"mediaType"`
	} `json:"metadata"`
	Extensions struct {
		FileSize  int64  `json:"fileSize"`
		MediaType string `json:"mediaType"`
	} `json:"extensions"`
	Links struct {
		Download string `json:"download"`
	} `json:"_links"`
}

func (c content) ancestorIDs() []string {
	if len(c.Ancestors) == 0 {
		return nil
	}
	out := make([]string, 0, len(c.Ancestors))
	for _, a := range c.Ancestors {
		out = append(out, a.ID)
	}
	return out
}

func (c content) page() remote.Page {
	p := remote.Page{
		ID:         c.ID,
		Title:      c.Title,
		SpaceKey:   c.Space.Key,
		Version:    c.Version.Number,
		Ancestors:  c.ancestorIDs(),
		Status:     c.Status,
		CreatedBy:  c.History.CreatedBy.name(),
		CreatedAt:  c.History.CreatedDate,
		ModifiedBy: c.Version.By.name(),
		ModifiedAt: c.Version.When,
		Body:       c.Body.Storage.Value,
	}
	if n := len(p.Ancestors); n > 0 {
		p.ParentID = p.Ancestors[n-1]
	}
	return p
}

func (c content) folder() remote.Folder {
	f := remote.Folder{
		ID:        c.ID,
		Title:     c.Title,
		SpaceKey:  c.Space.Key,
		Version:   c.Version.Number,
		Ancestors: c.ancestorIDs(),
	}
	if n := len(f.Ancestors); n > 0 {
		f.ParentID = f.Ancestors[n-1]
	}
	return f
}

type listing struct {
	Results []content `json:"results"`
	Size    int       `json:"size"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// apiError is the error body the REST API returns.
type apiError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func (c *Client) endpoint(p string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + p
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, p string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(p, q), body)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Email != "" {
		req.SetBasicAuth(c.cfg.Email, c.cfg.Token)
	} else if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debugw("Remote call",
		"method", method, logger.FieldURL, p, logger.FieldStatus, resp.StatusCode,
		logger.FieldDurationMS, time.Since(start).Milliseconds())

	if resp.StatusCode >= 300 {
		return statusError(method, p, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "%s %s: decode response", method, p)
	}
	return nil
}

func statusError(method, p string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	msg := strings.TrimSpace(string(data))
	var ae apiError
	if json.Unmarshal(data, &ae) == nil && ae.Message != "" {
		msg = ae.Message
	}
	err := errors.Newf("%s %s: %s: %s", method, p, resp.Status, msg)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return errors.Mark(err, errors.ErrNotFound)
	case http.StatusConflict:
		return errors.Mark(err, errors.ErrVersionConflict)
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.WithHint(err, "check remote.email and remote.token")
	}
	return err
}

// paginate follows start/limit paging until a short page.
func (c *Client) paginate(ctx context.Context, p string, q url.Values, fn func(content)) error {
	for start := 0; ; {
		page := url.Values{}
		for k, v := range q {
			page[k] = v
		}
		page.Set("start", strconv.Itoa(start))
		page.Set("limit", strconv.Itoa(PageSize))

		var l listing
		if err := c.do(ctx, http.MethodGet, p, page, nil, &l); err != nil {
			return err
		}
		for _, r := range l.Results {
			fn(r)
		}
		if len(l.Results) == 0 || (l.Links.Next == "" && len(l.Results) < PageSize) {
			return nil
		}
		start += len(l.Results)
	}
}

func (c *Client) search(ctx context.Context, cql string, fn func(content)) error {
	q := url.Values{"cql": {cql}, "expand": {pageExpand}}
	return c.paginate(ctx, "/rest/api/content/search", q, fn)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func scopeCQL(scope types.Scope) (string, error) {
	switch s := scope.(type) {
	case types.PageScope:
		return "id = " + quote(s.PageID), nil
	case types.TreeScope:
		return fmt.Sprintf("(id = %s or ancestor = %s)", quote(s.AncestorID), quote(s.AncestorID)), nil
	case types.SpaceScope:
		return "space = " + quote(s.SpaceKey), nil
	}
	return "", errors.Newf("unsupported scope %T", scope)
}

func (c *Client) ListPages(ctx context.Context, scope types.Scope) ([]remote.Page, error) {
	if !types.CanEnumerate(scope) {
		return nil, errors.Wrapf(remote.ErrScopeNotEnumerable, "%s", scope)
	}
	where, err := scopeCQL(scope)
	if err != nil {
		return nil, err
	}
	var out []remote.Page
	err = c.search(ctx, "type = page and "+where, func(r content) {
		out = append(out, r.page())
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list pages in %s", scope)
	}
	return out, nil
}

func (c *Client) GetPage(ctx context.Context, id string) (*remote.Page, error) {
	var r content
	q := url.Values{"expand": {bodyExpand}}
	if err := c.do(ctx, http.MethodGet, "/rest/api/content/"+url.PathEscape(id), q, nil, &r); err != nil {
		return nil, errors.Wrapf(err, "get page %s", id)
	}
	p := r.page()
	return &p, nil
}

// ChangedSince queries lastmodified at minute granularity. The bound is
// moved back a minute so edits inside the boundary minute are not missed;
// callers compare versions anyway.
func (c *Client) ChangedSince(ctx context.Context, scope types.Scope, since time.Time) ([]remote.Page, error) {
	where, err := scopeCQL(scope)
	if err != nil {
		return nil, err
	}
	cql := "type = page and " + where
	if !since.IsZero() {
		cql += " and lastmodified >= " + quote(since.UTC().Add(-time.Minute).Format(cqlTimeStamp))
	}
	var out []remote.Page
	err = c.search(ctx, cql, func(r content) {
		out = append(out, r.page())
	})
	if err != nil {
		return nil, errors.Wrapf(err, "changes in %s since %s", scope, since.Format(time.RFC3339))
	}
	return out, nil
}

func (c *Client) ListFolders(ctx context.Context, scope types.Scope) ([]remote.Folder, error) {
	if _, ok := scope.(types.PageScope); ok {
		return nil, nil
	}
	where, err := scopeCQL(scope)
	if err != nil {
		return nil, err
	}
	var out []remote.Folder
	err = c.search(ctx, "type = folder and "+where, func(r content) {
		out = append(out, r.folder())
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list folders in %s", scope)
	}
	return out, nil
}

type storageBody struct {
	Storage struct {
		Value          string `json:"value"`
		Representation string `json:"representation"`
	} `json:"storage"`
}

func storage(value string) storageBody {
	var b storageBody
	b.Storage.Value = value
	b.Storage.Representation = "storage"
	return b
}

type versionRef struct {
	Number int `json:"number"`
}

type idRef struct {
	ID string `json:"id"`
}

type spaceRef struct {
	Key string `json:"key"`
}

func (c *Client) UpdatePage(ctx context.Context, u remote.PageUpdate) (*remote.Page, error) {
	title := u.Title
	if title == "" {
		cur, err := c.GetPage(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		title = cur.Title
	}
	req := struct {
		ID      string      `json:"id"`
		Type    string      `json:"type"`
		Title   string      `json:"title"`
		Version versionRef  `json:"version"`
		Body    storageBody `json:"body"`
	}{
		ID:      u.ID,
		Type:    "page",
		Title:   title,
		Version: versionRef{Number: u.Version + 1},
		Body:    storage(u.Body),
	}
	var r content
	q := url.Values{"expand": {bodyExpand}}
	if err := c.do(ctx, http.MethodPut, "/rest/api/content/"+url.PathEscape(u.ID), q, req, &r); err != nil {
		return nil, errors.Wrapf(err, "update page %s", u.ID)
	}
	p := r.page()
	return &p, nil
}

func (c *Client) CreatePage(ctx context.Context, n remote.NewPage) (*remote.Page, error) {
	req := struct {
		Type      string      `json:"type"`
		Title     string      `json:"title"`
		Space     spaceRef    `json:"space"`
		Ancestors []idRef     `json:"ancestors,omitempty"`
		Body      storageBody `json:"body"`
	}{
		Type:  "page",
		Title: n.Title,
		Space: spaceRef{Key: n.SpaceKey},
		Body:  storage(n.Body),
	}
	if n.ParentID != "" {
		req.Ancestors = []idRef{{ID: n.ParentID}}
	}
	var r content
	q := url.Values{"expand": {bodyExpand}}
	if err := c.do(ctx, http.MethodPost, "/rest/api/content", q, req, &r); err != nil {
		return nil, errors.Wrapf(err, "create page %q", n.Title)
	}
	p := r.page()
	return &p, nil
}

func (c *Client) ListAttachments(ctx context.Context, pageID string) ([]remote.Attachment, error) {
	var out []remote.Attachment
	q := url.Values{"expand": {"version"}}
	err := c.paginate(ctx, "/rest/api/content/"+url.PathEscape(pageID)+"/child/attachment", q, func(r content) {
		media := r.Extensions.MediaType
		if media == "" {
			media = r.Metadata.MediaType
		}
		out = append(out, remote.Attachment{
			ID:          r.ID,
			PageID:      pageID,
			Filename:    r.Title,
			MediaType:   media,
			Size:        r.Extensions.FileSize,
			Version:     r.Version.Number,
			DownloadURL: r.Links.Download,
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list attachments of %s", pageID)
	}
	return out, nil
}
