// Package sqlite implements the parser store on SQLite. It uses
// modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/parserdesk/internal/core"
	"github.com/flemzord/parserdesk/internal/record"
)

// ServiceName is the service key the store is registered under.
const ServiceName = record.ServiceName

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ record.Store      = (*Store)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module provides a SQLite-backed record.Store.
type Module struct {
	config Config
	db     *sql.DB
	logger *slog.Logger
	store  *Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = defaultDBFile
	}
	m.config.Path = ctx.DataPath(m.config.Path)

	db, err := openDB(context.TODO(), m.config)
	if err != nil {
		return err
	}

	m.db = db
	m.store = &Store{db: db}
	ctx.RegisterService(ServiceName, record.Store(m.store))

	m.logger.Info("sqlite parser store provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.db.PingContext(context.TODO()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}

	var n int
	if err := m.db.QueryRowContext(context.TODO(), "SELECT count(*) FROM url_parser").Scan(&n); err != nil {
		return fmt.Errorf("sqlite: url_parser table not available: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite parser store stopping")
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Store returns the record store.
func (m *Module) Store() *Store {
	return m.store
}
