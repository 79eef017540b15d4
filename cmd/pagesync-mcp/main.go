// Command pagesync-mcp serves read-only workspace tools over MCP on stdio.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/teranos/pagesync/am"
	"github.com/teranos/pagesync/db"
	"github.com/teranos/pagesync/local"
	"github.com/teranos/pagesync/logger"
	"github.com/teranos/pagesync/mcpserver"
	"github.com/teranos/pagesync/store"
	"github.com/teranos/pagesync/sync"
	"github.com/teranos/pagesync/validate"
)

func main() {
	configPath := flag.String("config", "", "Config file (default: search pagesync.toml upward)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "pagesync-mcp:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}
	am.SetConfigFile(configPath)
	cfg, err := am.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	// Stdout carries the protocol, so logs always go to stderr as JSON.
	if err := logger.Initialize(true, 0); err != nil {
		return err
	}
	defer logger.Cleanup()
	log := logger.Logger

	ws, err := local.OpenWorkspace(cfg.Workspace.Root)
	if err != nil {
		return err
	}
	dbPath := cfg.GetDatabasePath()
	if dbPath != db.MemoryPath && !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(ws.Root(), dbPath)
	}
	conn, err := db.OpenWithMigrations(dbPath, log)
	if err != nil {
		return err
	}
	defer conn.Close()
	st, err := store.NewSQLStore(conn, log)
	if err != nil {
		return err
	}

	engine := sync.NewEngine(st, nil, ws, sync.Options{
		Codec:    cfg.CodecOptions(),
		SpaceKey: cfg.Remote.SpaceKey,
	}, log)
	srv := mcpserver.New(engine, validate.Options{MaxBytes: cfg.Validation.MaxDocumentBytes}, log)
	log.Infow("MCP server ready", logger.FieldPath, ws.Root())
	return srv.ServeStdio()
}
