package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/teranos/pagesync/db"
	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/logger"
	"github.com/teranos/pagesync/types"
)

// PathCacheSize bounds the path -> id cache.
const PathCacheSize = 4096

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore is the SQLite record store. Path lookups go through an LRU
// cache; writes evict the paths they touch.
type SQLStore struct {
	records
	db     *sql.DB
	logger *zap.SugaredLogger
}

// records implements Tx over a *sql.DB or a *sql.Tx.
type records struct {
	q       querier
	paths   *lru.Cache[string, string]
	evicted []string // paths evicted inside a transaction
	inTx    bool
}

// NewSQLStore wraps a migrated database.
func NewSQLStore(db *sql.DB, log *zap.SugaredLogger) (*SQLStore, error) {
	cache, err := lru.New[string, string](PathCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create path cache")
	}
	return &SQLStore{
		records: records{q: db, paths: cache},
		db:      db,
		logger:  logger.Or(log).Named("store"),
	}, nil
}

// LookupPath implements links.PathIndex.
func (s *SQLStore) LookupPath(ctx context.Context, path string) (string, bool, error) {
	if id, ok := s.paths.Get(path); ok {
		return id, true, nil
	}
	doc, err := s.GetByPath(ctx, path)
	if errors.Is(err, errors.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	s.paths.Add(path, doc.ID)
	return doc.ID, true, nil
}

// LookupTitle implements links.TitleIndex.
func (s *SQLStore) LookupTitle(ctx context.Context, spaceKey, title string) (string, string, bool, error) {
	return TitleLookup(ctx, s, spaceKey, title)
}

// TitleLookup maps a page title to a tracked document's id and path
// through any Tx; ok is false when no record has the title.
func TitleLookup(ctx context.Context, tx Tx, spaceKey, title string) (string, string, bool, error) {
	doc, err := tx.GetByTitle(ctx, spaceKey, title)
	if errors.Is(err, errors.ErrNotFound) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return doc.ID, doc.Path, true, nil
}

// WithTx runs fn inside a transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	r := &records{q: tx, paths: s.paths, inTx: true}
	if err := fn(r); err != nil {
		s.evict(r.evicted)
		return err
	}
	if err := tx.Commit(); err != nil {
		s.evict(r.evicted)
		return errors.Wrap(err, "failed to commit transaction")
	}
	// A lookup racing the transaction may have cached a pre-commit value.
	s.evict(r.evicted)
	logger.DBDebugw(s.logger, "Transaction committed", logger.FieldCount, len(r.evicted))
	return nil
}

// SetLinks replaces a document's links atomically.
func (s *SQLStore) SetLinks(ctx context.Context, sourceID string, links []types.Link) error {
	return s.WithTx(ctx, func(tx Tx) error {
		return tx.SetLinks(ctx, sourceID, links)
	})
}

// Upsert runs the path check and the write in one transaction.
func (s *SQLStore) Upsert(ctx context.Context, doc *types.Document) error {
	return s.WithTx(ctx, func(tx Tx) error {
		return tx.Upsert(ctx, doc)
	})
}

func (s *SQLStore) evict(paths []string) {
	for _, p := range paths {
		s.paths.Remove(p)
	}
}

func (r *records) evict(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		r.paths.Remove(p)
		if r.inTx {
			r.evicted = append(r.evicted, p)
		}
	}
}

const documentColumns = `id, path, title, space_key, version, local_hash, remote_hash, base_hash,
	parent_id, ancestors, restricted, content_status, is_folder,
	created_by, created_at, modified_by, modified_at, synced_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*types.Document, error) {
	var (
		d                               types.Document
		parent                          sql.NullString
		ancestors                       string
		createdAt, modifiedAt, syncedAt sql.NullTime
	)
	err := row.Scan(&d.ID, &d.Path, &d.Title, &d.SpaceKey, &d.Version,
		&d.LocalHash, &d.RemoteHash, &d.BaseHash,
		&parent, &ancestors, &d.Restricted, &d.ContentStatus, &d.IsFolder,
		&d.CreatedBy, &createdAt, &d.ModifiedBy, &modifiedAt, &syncedAt)
	if err != nil {
		return nil, err
	}
	d.ParentID = parent.String
	if err := json.Unmarshal([]byte(ancestors), &d.Ancestors); err != nil {
		return nil, errors.Wrapf(err, "document %s: corrupt ancestors", d.ID)
	}
	if len(d.Ancestors) == 0 {
		d.Ancestors = nil
	}
	d.CreatedAt = createdAt.Time
	d.ModifiedAt = modifiedAt.Time
	d.SyncedAt = syncedAt.Time
	return &d, nil
}

func (r *records) getOne(ctx context.Context, where string, arg any) (*types.Document, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE `+where, arg)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrNotFound
	}
	return doc, err
}

func (r *records) GetByPath(ctx context.Context, path string) (*types.Document, error) {
	doc, err := r.getOne(ctx, "path = ?", path)
	if err != nil {
		return nil, errors.Wrapf(err, "document at %s", path)
	}
	return doc, nil
}

func (r *records) GetByID(ctx context.Context, id string) (*types.Document, error) {
	doc, err := r.getOne(ctx, "id = ?", id)
	if err != nil {
		return nil, errors.Wrapf(err, "document %s", id)
	}
	return doc, nil
}

func (r *records) GetByTitle(ctx context.Context, spaceKey, title string) (*types.Document, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE title = ? AND (? = '' OR space_key = ?) ORDER BY path LIMIT 1`, title, spaceKey, spaceKey)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "document titled %q", title)
	}
	return doc, nil
}

func (r *records) List(ctx context.Context, f Filter) ([]*types.Document, error) {
	var where []string
	var args []any
	if f.SpaceKey != "" {
		where = append(where, "space_key = ?")
		args = append(args, f.SpaceKey)
	}
	if f.ParentID != "" {
		where = append(where, "parent_id = ?")
		args = append(args, f.ParentID)
	}
	if p := strings.Trim(f.PathPrefix, "/"); p != "" && p != "." {
		where = append(where, "(path = ? OR substr(path, 1, ?) = ?)")
		args = append(args, p, len(p)+1, p+"/")
	}
	if f.ContentStatus != "" {
		where = append(where, "content_status = ?")
		args = append(args, f.ContentStatus)
	}
	if f.FoldersOnly {
		where = append(where, "is_folder = 1")
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY path`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	defer rows.Close()

	var out []*types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func (r *records) Upsert(ctx context.Context, doc *types.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if doc.ContentStatus == "" {
		doc.ContentStatus = types.StatusCurrent
	}

	var owner string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM documents WHERE path = ? AND id != ?`, doc.Path, doc.ID).Scan(&owner)
	switch {
	case err == nil:
		return errors.WithHintf(errors.Wrapf(errors.ErrPathTaken, "%s is mapped to %s", doc.Path, owner),
			"move or rename the local file before tracking page %s", doc.ID)
	case !errors.Is(err, sql.ErrNoRows):
		return errors.Wrapf(err, "failed to check path %s", doc.Path)
	}

	var oldPath string
	err = r.q.QueryRowContext(ctx, `SELECT path FROM documents WHERE id = ?`, doc.ID).Scan(&oldPath)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(err, "failed to read document %s", doc.ID)
	}

	ancestors, err := json.Marshal(nonNil(doc.Ancestors))
	if err != nil {
		return errors.Wrapf(err, "document %s: encode ancestors", doc.ID)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			title = excluded.title,
			space_key = excluded.space_key,
			version = excluded.version,
			local_hash = excluded.local_hash,
			remote_hash = excluded.remote_hash,
			base_hash = excluded.base_hash,
			parent_id = excluded.parent_id,
			ancestors = excluded.ancestors,
			restricted = excluded.restricted,
			content_status = excluded.content_status,
			is_folder = excluded.is_folder,
			created_by = excluded.created_by,
			created_at = excluded.created_at,
			modified_by = excluded.modified_by,
			modified_at = excluded.modified_at,
			synced_at = excluded.synced_at`,
		doc.ID, doc.Path, doc.Title, doc.SpaceKey, doc.Version,
		doc.LocalHash, doc.RemoteHash, doc.BaseHash,
		nullString(doc.ParentID), string(ancestors), doc.Restricted, doc.ContentStatus, doc.IsFolder,
		doc.CreatedBy, nullTime(doc.CreatedAt), doc.ModifiedBy, nullTime(doc.ModifiedAt), nullTime(doc.SyncedAt))
	if db.IsUniqueViolation(err) {
		// Another writer claimed the path between the check and the insert.
		return errors.Wrapf(errors.ErrPathTaken, "%s", doc.Path)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to upsert document %s", doc.ID)
	}
	r.evict(oldPath, doc.Path)
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (r *records) Delete(ctx context.Context, id string) error {
	var path string
	err := r.q.QueryRowContext(ctx, `SELECT path FROM documents WHERE id = ?`, id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(errors.ErrNotFound, "document %s", id)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read document %s", id)
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return errors.Wrapf(err, "failed to delete document %s", id)
	}
	r.evict(path)
	return nil
}

// SetLinks on records assumes the caller provides atomicity (a *sql.Tx).
func (r *records) SetLinks(ctx context.Context, sourceID string, links []types.Link) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM links WHERE source_id = ?`, sourceID); err != nil {
		return errors.Wrapf(err, "failed to clear links of %s", sourceID)
	}
	for _, l := range links {
		if l.SourceID != "" && l.SourceID != sourceID {
			return errors.Wrapf(errors.ErrInvalidRecord, "link from %s passed for %s", l.SourceID, sourceID)
		}
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO links (source_id, link_type, target_id, target_path, url, filename, is_broken, line, col, text)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sourceID, l.Type.String(), nullString(l.TargetID), l.TargetPath, l.URL, l.Filename,
			l.Broken, l.Line, l.Column, l.Text)
		if err != nil {
			return errors.Wrapf(err, "failed to insert link from %s", sourceID)
		}
	}
	return nil
}

func (r *records) LinksFrom(ctx context.Context, sourceID string) ([]types.Link, error) {
	return r.queryLinks(ctx, `source_id = ?`, sourceID)
}

func (r *records) LinksTo(ctx context.Context, targetID string) ([]types.Link, error) {
	return r.queryLinks(ctx, `target_id = ?`, targetID)
}

func (r *records) queryLinks(ctx context.Context, where string, arg string) ([]types.Link, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT source_id, link_type, target_id, target_path, url, filename, is_broken, line, col, text
		FROM links WHERE `+where+` ORDER BY source_id, id`, arg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query links")
	}
	defer rows.Close()

	var out []types.Link
	for rows.Next() {
		var (
			l        types.Link
			linkType string
			target   sql.NullString
		)
		if err := rows.Scan(&l.SourceID, &linkType, &target, &l.TargetPath, &l.URL, &l.Filename,
			&l.Broken, &l.Line, &l.Column, &l.Text); err != nil {
			return nil, errors.Wrap(err, "failed to scan link")
		}
		t, ok := types.ParseLinkType(linkType)
		if !ok {
			return nil, errors.Newf("unknown link type %q", linkType)
		}
		l.Type = t
		l.TargetID = target.String
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *records) UpsertAttachment(ctx context.Context, a *types.Attachment) error {
	if a.DocumentID == "" || a.ID == "" || a.Filename == "" {
		return errors.NewInvalidRecordError("attachment %q of %q needs document id, id and filename", a.ID, a.DocumentID)
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO attachments (document_id, id, filename, media_type, size, version, local_hash, remote_hash, base_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, id) DO UPDATE SET
			filename = excluded.filename,
			media_type = excluded.media_type,
			size = excluded.size,
			version = excluded.version,
			local_hash = excluded.local_hash,
			remote_hash = excluded.remote_hash,
			base_hash = excluded.base_hash`,
		a.DocumentID, a.ID, a.Filename, a.MediaType, a.Size, a.Version, a.LocalHash, a.RemoteHash, a.BaseHash)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert attachment %s/%s", a.DocumentID, a.ID)
	}
	return nil
}

func (r *records) ListAttachments(ctx context.Context, documentID string) ([]*types.Attachment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT document_id, id, filename, media_type, size, version, local_hash, remote_hash, base_hash
		FROM attachments WHERE document_id = ? ORDER BY filename`, documentID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list attachments of %s", documentID)
	}
	defer rows.Close()

	var out []*types.Attachment
	for rows.Next() {
		var a types.Attachment
		if err := rows.Scan(&a.DocumentID, &a.ID, &a.Filename, &a.MediaType, &a.Size, &a.Version,
			&a.LocalHash, &a.RemoteHash, &a.BaseHash); err != nil {
			return nil, errors.Wrap(err, "failed to scan attachment")
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *records) DeleteAttachment(ctx context.Context, documentID, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM attachments WHERE document_id = ? AND id = ?`, documentID, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete attachment %s/%s", documentID, id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "attachment %s/%s", documentID, id)
	}
	return nil
}
