package sync

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pagesync/codec"
	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/links"
	"github.com/teranos/pagesync/local"
	"github.com/teranos/pagesync/logger"
	"github.com/teranos/pagesync/poller"
	"github.com/teranos/pagesync/remote"
	"github.com/teranos/pagesync/store"
	"github.com/teranos/pagesync/types"
)

// Outcome is the result of a sync operation. Refusals caused by the
// document's state are outcomes, not errors.
type Outcome string

const (
	OutcomePulled         Outcome = "pulled"
	OutcomePushed         Outcome = "pushed"
	OutcomeCreated        Outcome = "created"
	OutcomeResolved       Outcome = "resolved"
	OutcomeUnchanged      Outcome = "unchanged"
	OutcomeConflict       Outcome = "conflict"
	OutcomeLocalModified  Outcome = "local-modified"
	OutcomeRemoteModified Outcome = "remote-modified"
	OutcomeUntracked      Outcome = "untracked"
)

// Status is the sync state of one document.
type Status struct {
	Path     string
	State    SyncState
	Document *types.Document // nil when untracked
	Err      error           // set when the local file could not be read
}

// Options configure an Engine.
type Options struct {
	Codec codec.Options
	// SpaceKey is used for pages created from local files.
	SpaceKey string
	// AutoPull pulls remote-modified documents when the poller reports them.
	AutoPull bool
}

// Engine carries documents between the workspace and the remote, keeping
// the record store's hash triples current.
type Engine struct {
	store  store.Store
	remote remote.Client
	ws     *local.Workspace
	opts   Options
	now    func() time.Time
	logger *zap.SugaredLogger
}

// NewEngine wires an engine.
func NewEngine(st store.Store, rc remote.Client, ws *local.Workspace, opts Options, log *zap.SugaredLogger) *Engine {
	return &Engine{
		store:  st,
		remote: rc,
		ws:     ws,
		opts:   opts,
		now:    time.Now,
		logger: logger.Or(log).Named("sync"),
	}
}

// Workspace returns the engine's workspace.
func (e *Engine) Workspace() *local.Workspace { return e.ws }

// Store returns the engine's record store.
func (e *Engine) Store() store.Store { return e.store }

func (e *Engine) codecOptions(ctx context.Context, sourcePath string) codec.Options {
	opts := e.opts.Codec
	if opts.Pages == nil {
		opts.Pages = &pageLinker{ctx: ctx, store: e.store, source: sourcePath, logger: e.logger}
	}
	return opts
}

// fromRemote converts storage markup to the local dialect and hashes it.
func (e *Engine) fromRemote(ctx context.Context, sourcePath, storage string) (body, hash string) {
	body = codec.FromRemote(storage, e.codecOptions(ctx, sourcePath))
	return body, ContentHash(body)
}

// Status reports the state of the document at path. A path without a
// record is untracked; a record without a file is remote-only.
func (e *Engine) Status(ctx context.Context, path string) (Status, error) {
	rec, err := e.store.GetByPath(ctx, path)
	if errors.Is(err, errors.ErrNotFound) {
		return Status{Path: path, State: StateUntracked}, nil
	}
	if err != nil {
		return Status{}, err
	}
	return e.statusOf(rec), nil
}

func (e *Engine) statusOf(rec *types.Document) Status {
	st := Status{Path: rec.Path, Document: rec}
	doc, err := e.ws.Read(rec.Path)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		st.State = StateRemoteOnly
		return st
	case err != nil && doc.Path == "":
		st.Err = err
	}
	if doc.Path != "" {
		rec.LocalHash = ContentHash(doc.Body)
	}
	st.State = ComputeSyncState(rec.Hashes())
	return st
}

// StatusAll reports every local document and every record whose file is
// gone, sorted by path.
func (e *Engine) StatusAll(ctx context.Context) ([]Status, error) {
	paths, err := e.ws.Documents()
	if err != nil {
		return nil, err
	}
	recs, err := e.store.List(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*types.Document, len(recs))
	for _, r := range recs {
		byPath[r.Path] = r
	}

	out := make([]Status, 0, len(paths)+len(recs))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		seen[p] = struct{}{}
		rec, ok := byPath[p]
		if !ok {
			out = append(out, Status{Path: p, State: StateUntracked})
			continue
		}
		out = append(out, e.statusOf(rec))
	}
	for _, r := range recs {
		if _, ok := seen[r.Path]; !ok {
			out = append(out, Status{Path: r.Path, State: StateRemoteOnly, Document: r})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Pull fetches page id and writes it locally unless that would discard a
// local edit. Untracked pages are placed under their parent's folder.
func (e *Engine) Pull(ctx context.Context, id string) (Outcome, error) {
	page, err := e.remote.GetPage(ctx, id)
	if err != nil {
		return "", errors.Wrapf(err, "pull %s", id)
	}

	rec, err := e.store.GetByID(ctx, id)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		rec = nil
	case err != nil:
		return "", err
	}

	if rec == nil {
		path, err := e.assignPath(ctx, page)
		if err != nil {
			return "", err
		}
		rec = &types.Document{ID: page.ID, Path: path}
		body, hash := e.fromRemote(ctx, path, page.Body)
		applyPage(rec, page)
		MarkPulled(rec, hash)
		if err := e.writeAndRecord(ctx, rec, local.Frontmatter{}, body, page); err != nil {
			return "", err
		}
		logger.StateInfow(e.logger, string(StateSynced), "Pulled new page",
			logger.FieldDocumentID, id, logger.FieldPath, path, logger.FieldVersion, page.Version)
		return OutcomePulled, nil
	}

	body, remoteHash := e.fromRemote(ctx, rec.Path, page.Body)
	doc, err := e.ws.Read(rec.Path)
	if errors.Is(err, errors.ErrNotFound) {
		applyPage(rec, page)
		MarkPulled(rec, remoteHash)
		if err := e.writeAndRecord(ctx, rec, local.Frontmatter{}, body, page); err != nil {
			return "", err
		}
		return OutcomePulled, nil
	}
	if err != nil && doc.Path == "" {
		return "", err
	}

	rec.LocalHash = ContentHash(doc.Body)
	rec.RemoteHash = remoteHash
	state := ComputeSyncState(rec.Hashes())
	log := e.logger.With(logger.FieldDocumentID, id, logger.FieldPath, rec.Path)

	switch state {
	case StateRemoteModified:
		applyPage(rec, page)
		MarkPulled(rec, remoteHash)
		if err := e.writeAndRecord(ctx, rec, doc.Frontmatter, body, page); err != nil {
			return "", err
		}
		logger.StateInfow(log, string(StateSynced), "Pulled remote changes", logger.FieldVersion, page.Version)
		return OutcomePulled, nil

	case StateSynced:
		// Both sides may carry the same edit; the base catches up.
		changed := rec.BaseHash != remoteHash || rec.Version != page.Version
		applyPage(rec, page)
		MarkPulled(rec, remoteHash)
		if changed {
			if err := e.writeAndRecord(ctx, rec, doc.Frontmatter, doc.Body, nil); err != nil {
				return "", err
			}
		}
		return OutcomeUnchanged, nil

	case StateLocalModified:
		if err := e.store.Upsert(ctx, rec); err != nil {
			return "", err
		}
		logger.StateInfow(log, string(state), "Pull skipped, local edits pending push")
		return OutcomeLocalModified, nil

	default:
		if err := e.store.Upsert(ctx, rec); err != nil {
			return "", err
		}
		logger.StateInfow(log, string(StateConflict), "Pull refused, both sides changed",
			logger.FieldLocalHash, rec.LocalHash, logger.FieldRemoteHash, rec.RemoteHash, logger.FieldBaseHash, rec.BaseHash)
		return OutcomeConflict, nil
	}
}

// applyPage copies remote metadata onto a record.
func applyPage(rec *types.Document, p *remote.Page) {
	rec.Title = p.Title
	rec.SpaceKey = p.SpaceKey
	rec.Version = p.Version
	rec.ParentID = p.ParentID
	rec.Ancestors = append([]string(nil), p.Ancestors...)
	if rec.ParentID == "" && len(rec.Ancestors) > 0 {
		rec.ParentID = rec.Ancestors[len(rec.Ancestors)-1]
	}
	rec.Restricted = p.Restricted
	if p.Status != "" {
		rec.ContentStatus = p.Status
	}
	rec.CreatedBy = p.CreatedBy
	rec.CreatedAt = p.CreatedAt
	rec.ModifiedBy = p.ModifiedBy
	rec.ModifiedAt = p.ModifiedAt
}

// assignPath places a new page: beside its nearest tracked ancestor's
// children, else at the workspace root.
func (e *Engine) assignPath(ctx context.Context, p *remote.Page) (string, error) {
	dir := "."
	for i := len(p.Ancestors) - 1; i >= 0; i-- {
		parent, err := e.store.GetByID(ctx, p.Ancestors[i])
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		dir = local.FolderPath(parent.Path)
		break
	}
	var lookupErr error
	taken := func(candidate string) bool {
		if e.ws.FileExists(candidate) {
			return true
		}
		_, ok, err := e.store.LookupPath(ctx, candidate)
		if err != nil {
			lookupErr = err
			return false
		}
		return ok
	}
	path := local.AssignPath(dir, p.Title, taken)
	return path, lookupErr
}

// writeAndRecord writes the document file, then records it together with
// its links and attachment metadata in one transaction. page may be nil
// when the body did not come from the remote. When recording fails the
// file is put back as it was, so a retry sees the same workspace.
func (e *Engine) writeAndRecord(ctx context.Context, rec *types.Document, fm local.Frontmatter, body string, page *remote.Page) error {
	var atts []remote.Attachment
	if page != nil {
		var err error
		atts, err = e.remote.ListAttachments(ctx, page.ID)
		if err != nil {
			return errors.Wrapf(err, "attachments of %s", page.ID)
		}
	}

	fm.ID = rec.ID
	fm.Title = rec.Title
	fm.Space = rec.SpaceKey
	fm.Version = rec.Version
	fm.Parent = rec.ParentID
	if rec.IsFolder {
		fm.Folder = true
	}
	rec.IsFolder = fm.Folder
	rec.SyncedAt = e.now()

	prev, err := e.ws.ReadFile(rec.Path)
	existed := err == nil
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return err
	}

	if err := e.ws.Write(local.Document{Path: rec.Path, Frontmatter: fm, Body: body}); err != nil {
		return err
	}

	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Upsert(ctx, rec); err != nil {
			return err
		}
		if _, err := refreshLinks(ctx, tx, rec, body); err != nil {
			return err
		}
		if page != nil {
			return syncAttachments(ctx, tx, e.ws, rec, atts)
		}
		return nil
	})
	if err != nil {
		e.restoreFile(rec.Path, prev, existed)
		return err
	}
	return nil
}

// restoreFile undoes a document write whose record could not be stored.
func (e *Engine) restoreFile(path string, prev []byte, existed bool) {
	var err error
	if existed {
		err = e.ws.WriteFile(path, prev)
	} else {
		err = e.ws.Remove(path)
	}
	if err != nil {
		e.logger.Warnw("Could not restore document after failed record",
			logger.FieldPath, path, "error", err)
	}
}

// Push publishes the local edit of path. The remote page is fetched first
// so an unseen remote edit is never overwritten.
func (e *Engine) Push(ctx context.Context, path string) (Outcome, error) {
	rec, err := e.store.GetByPath(ctx, path)
	if errors.Is(err, errors.ErrNotFound) {
		return OutcomeUntracked, nil
	}
	if err != nil {
		return "", err
	}
	doc, err := e.ws.Read(path)
	if err != nil && doc.Path == "" {
		return "", err
	}
	page, err := e.remote.GetPage(ctx, rec.ID)
	if err != nil {
		return "", errors.Wrapf(err, "push %s", path)
	}

	_, remoteHash := e.fromRemote(ctx, path, page.Body)
	rec.LocalHash = ContentHash(doc.Body)
	rec.RemoteHash = remoteHash
	state := ComputeSyncState(rec.Hashes())
	log := e.logger.With(logger.FieldDocumentID, rec.ID, logger.FieldPath, path)

	switch state {
	case StateLocalModified:
	case StateSynced:
		if rec.BaseHash != rec.LocalHash {
			MarkPushed(rec, rec.LocalHash)
			rec.Version = page.Version
			if err := e.store.Upsert(ctx, rec); err != nil {
				return "", err
			}
		}
		return OutcomeUnchanged, nil
	case StateRemoteModified:
		if err := e.store.Upsert(ctx, rec); err != nil {
			return "", err
		}
		logger.StateInfow(log, string(state), "Push refused, pull first")
		return OutcomeRemoteModified, nil
	default:
		if err := e.store.Upsert(ctx, rec); err != nil {
			return "", err
		}
		logger.StateInfow(log, string(StateConflict), "Push refused, both sides changed")
		return OutcomeConflict, nil
	}

	title := rec.Title
	if doc.Frontmatter.Title != "" {
		title = doc.Frontmatter.Title
	}
	updated, err := e.remote.UpdatePage(ctx, remote.PageUpdate{
		ID:      rec.ID,
		Title:   title,
		Body:    codec.ToRemote(doc.Body, e.codecOptions(ctx, path)),
		Version: page.Version,
	})
	if errors.Is(err, errors.ErrVersionConflict) {
		logger.StateInfow(log, string(StateRemoteModified), "Push lost a race with a remote edit")
		return OutcomeRemoteModified, nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "push %s", path)
	}

	applyPage(rec, updated)
	MarkPushed(rec, rec.LocalHash)
	if err := e.writeAndRecord(ctx, rec, doc.Frontmatter, doc.Body, nil); err != nil {
		return "", err
	}
	logger.StateInfow(log, string(StateSynced), "Pushed local changes", logger.FieldVersion, updated.Version)
	return OutcomePushed, nil
}

// Create publishes an untracked local file as a new page under parentID
// (empty for the space root) and starts tracking it.
func (e *Engine) Create(ctx context.Context, path, parentID string) (Outcome, error) {
	if _, err := e.store.GetByPath(ctx, path); err == nil {
		return "", errors.Wrapf(errors.ErrPathTaken, "%s is already tracked", path)
	} else if !errors.Is(err, errors.ErrNotFound) {
		return "", err
	}
	doc, err := e.ws.Read(path)
	if err != nil {
		return "", err
	}
	space := doc.Frontmatter.Space
	if space == "" {
		space = e.opts.SpaceKey
	}
	if space == "" {
		return "", errors.WithHint(errors.Newf("no space for %s", path), "set remote.space_key or add space: to the frontmatter")
	}
	title := doc.Frontmatter.Title
	if title == "" {
		title = titleFromPath(path)
	}

	page, err := e.remote.CreatePage(ctx, remote.NewPage{
		SpaceKey: space,
		ParentID: parentID,
		Title:    title,
		Body:     codec.ToRemote(doc.Body, e.codecOptions(ctx, path)),
	})
	if err != nil {
		return "", errors.Wrapf(err, "create page for %s", path)
	}

	rec := &types.Document{ID: page.ID, Path: path}
	applyPage(rec, page)
	MarkPushed(rec, ContentHash(doc.Body))
	if err := e.writeAndRecord(ctx, rec, doc.Frontmatter, doc.Body, nil); err != nil {
		return "", err
	}
	e.logger.Infow("Created remote page", logger.FieldDocumentID, page.ID, logger.FieldPath, path)
	return OutcomeCreated, nil
}

// Resolve settles a conflict on path. For ManualMerge the current file
// content is taken as the merge result.
func (e *Engine) Resolve(ctx context.Context, path string, r Resolution) (Outcome, error) {
	rec, err := e.store.GetByPath(ctx, path)
	if errors.Is(err, errors.ErrNotFound) {
		return "", errors.Wrapf(errors.ErrNotTracked, "%s", path)
	}
	if err != nil {
		return "", err
	}
	doc, err := e.ws.Read(path)
	if err != nil && doc.Path == "" {
		return "", err
	}
	current := ContentHash(doc.Body)
	rec.LocalHash = current

	if err := ApplyResolution(rec, r, current); err != nil {
		return "", err
	}
	if err := e.store.Upsert(ctx, rec); err != nil {
		return "", err
	}
	state := ComputeSyncState(rec.Hashes())
	logger.StateInfow(e.logger, string(state), "Conflict resolved",
		logger.FieldPath, path, "resolution", r.String())
	return OutcomeResolved, nil
}

// RefreshLinks re-extracts the links of body, resolves them and replaces
// the stored set atomically. It returns how the set changed.
func (e *Engine) RefreshLinks(ctx context.Context, doc *types.Document, body string) (links.Diff, error) {
	var diff links.Diff
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		diff, err = refreshLinks(ctx, tx, doc, body)
		return err
	})
	return diff, err
}

// LinkDiff compares the stored links of path with its current content
// without writing anything.
func (e *Engine) LinkDiff(ctx context.Context, path string) (links.Diff, error) {
	rec, err := e.store.GetByPath(ctx, path)
	if errors.Is(err, errors.ErrNotFound) {
		return links.Diff{}, errors.Wrapf(errors.ErrNotTracked, "%s", path)
	}
	if err != nil {
		return links.Diff{}, err
	}
	doc, err := e.ws.Read(path)
	if err != nil && doc.Path == "" {
		return links.Diff{}, err
	}
	stored, err := e.store.LinksFrom(ctx, rec.ID)
	if err != nil {
		return links.Diff{}, err
	}
	return links.Compare(links.FromRecords(stored), links.ExtractLocal(doc.Body)), nil
}

func refreshLinks(ctx context.Context, tx store.Tx, doc *types.Document, body string) (links.Diff, error) {
	old, err := tx.LinksFrom(ctx, doc.ID)
	if err != nil {
		return links.Diff{}, err
	}
	extracted := links.ExtractLocal(body)
	resolved, err := links.Resolve(ctx, doc.Path, extracted, txIndex{tx})
	if err != nil {
		return links.Diff{}, err
	}
	if err := tx.SetLinks(ctx, doc.ID, links.Records(doc.ID, resolved)); err != nil {
		return links.Diff{}, err
	}
	return links.Compare(links.FromRecords(old), extracted), nil
}

// txIndex resolves paths and titles inside a transaction.
type txIndex struct{ tx store.Tx }

func (t txIndex) LookupTitle(ctx context.Context, spaceKey, title string) (string, string, bool, error) {
	return store.TitleLookup(ctx, t.tx, spaceKey, title)
}

func (t txIndex) LookupPath(ctx context.Context, path string) (string, bool, error) {
	doc, err := t.tx.GetByPath(ctx, path)
	if errors.Is(err, errors.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return doc.ID, true, nil
}

// HandleEvent is a poller.Handler. Changed pages get their remote hash
// refreshed so status reflects the edit before any pull; with AutoPull a
// remote-modified document is pulled right away. Deleted pages are flagged,
// never removed.
func (e *Engine) HandleEvent(ctx context.Context, ev poller.Event) error {
	log := logger.FromContext(ctx, e.logger).With(logger.FieldEvent, ev.Type.String(), logger.FieldDocumentID, ev.ID)

	switch ev.Type {
	case poller.PageCreated, poller.PageChanged:
		rec, err := e.store.GetByID(ctx, ev.ID)
		if errors.Is(err, errors.ErrNotFound) {
			if !e.opts.AutoPull {
				log.Infow("Untracked remote page", logger.FieldTitle, ev.Title)
				return nil
			}
			_, err := e.Pull(ctx, ev.ID)
			return err
		}
		if err != nil {
			return err
		}
		page, err := e.remote.GetPage(ctx, ev.ID)
		if err != nil {
			return errors.Wrapf(err, "refresh %s", ev.ID)
		}
		_, rec.RemoteHash = e.fromRemote(ctx, rec.Path, page.Body)
		st := e.statusOf(rec)
		if e.opts.AutoPull && st.State == StateRemoteModified {
			_, err := e.Pull(ctx, ev.ID)
			return err
		}
		if err := e.store.Upsert(ctx, rec); err != nil {
			return err
		}
		logger.StateInfow(log, string(st.State), "Remote change recorded",
			logger.FieldPath, rec.Path, logger.FieldVersion, ev.Version, logger.FieldPrevious, ev.PreviousVersion)
		return nil

	case poller.PageDeleted, poller.FolderDeleted:
		rec, err := e.store.GetByID(ctx, ev.ID)
		if errors.Is(err, errors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		rec.ContentStatus = types.StatusDeletedRemote
		if err := e.store.Upsert(ctx, rec); err != nil {
			return err
		}
		log.Warnw("Remote page deleted, local file kept", logger.FieldPath, rec.Path)
		return nil

	case poller.FolderCreated, poller.FolderChanged:
		rec, err := e.store.GetByID(ctx, ev.ID)
		if errors.Is(err, errors.ErrNotFound) {
			log.Debugw("Untracked remote folder", logger.FieldTitle, ev.Title)
			return nil
		}
		if err != nil {
			return err
		}
		if rec.Title != ev.Title {
			log.Infow("Remote folder renamed", logger.FieldPath, rec.Path, "from", rec.Title, "to", ev.Title)
			rec.Title = ev.Title
			return e.store.Upsert(ctx, rec)
		}
		return nil
	}
	return nil
}
