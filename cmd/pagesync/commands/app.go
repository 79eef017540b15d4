package commands

import (
	"database/sql"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/teranos/pagesync/am"
	"github.com/teranos/pagesync/db"
	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/local"
	"github.com/teranos/pagesync/logger"
	"github.com/teranos/pagesync/remote"
	"github.com/teranos/pagesync/remote/confluence"
	"github.com/teranos/pagesync/store"
	"github.com/teranos/pagesync/sync"
)

// ErrValidationFailed makes the process exit 1 after the report has been
// printed.
var ErrValidationFailed = errors.New("validation failed")

// app holds what a command needs: config, record store, workspace and,
// when requested, the remote client.
type app struct {
	cfg    *am.Config
	db     *sql.DB
	store  *store.SQLStore
	ws     *local.Workspace
	remote remote.Client
	engine *sync.Engine
	log    *zap.SugaredLogger
}

// openApp loads configuration and opens the workspace and database. With
// needRemote the remote client is built too, which requires remote.base_url.
func openApp(needRemote bool) (*app, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	log := logger.Logger

	ws, err := local.OpenWorkspace(cfg.Workspace.Root)
	if err != nil {
		return nil, errors.WithHint(err, "set workspace.root to an existing directory")
	}

	dbPath := cfg.GetDatabasePath()
	if dbPath != db.MemoryPath && !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(ws.Root(), dbPath)
	}
	if dbPath != db.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), am.DefaultDirPermissions); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory for %s", dbPath)
		}
	}
	conn, err := db.OpenWithMigrations(dbPath, log)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	a := &app{cfg: cfg, db: conn, ws: ws, log: log}
	if a.store, err = store.NewSQLStore(conn, log); err != nil {
		conn.Close()
		return nil, err
	}

	if needRemote {
		client, err := confluence.New(confluence.Config{
			BaseURL: cfg.Remote.BaseURL,
			Email:   cfg.Remote.Email,
			Token:   cfg.Remote.Token,
			HTTP:    cfg.HTTPOptions(),
		}, log)
		if err != nil {
			conn.Close()
			return nil, err
		}
		a.remote = client
	}

	a.engine = sync.NewEngine(a.store, a.remote, ws, sync.Options{
		Codec:    cfg.CodecOptions(),
		SpaceKey: cfg.Remote.SpaceKey,
		AutoPull: cfg.Poll.AutoPull,
	}, log)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// relPath converts a command-line path to a workspace-relative one.
func (a *app) relPath(arg string) (string, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", arg)
	}
	rel, err := a.ws.Rel(abs)
	if err != nil {
		return "", err
	}
	return rel, nil
}
