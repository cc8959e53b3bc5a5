package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/parserdesk/internal/record"
)

// Store implements record.Store on the url_parser table.
type Store struct {
	db *sql.DB
}

const selectColumns = `SELECT id, name, url_pattern, parser_config, meta_data, chat_data, created_at, updated_at FROM url_parser`

// Create implements record.Store.
func (s *Store) Create(ctx context.Context, r *record.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO url_parser (name, url_pattern, parser_config, meta_data, chat_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.URLPattern,
		jsonText(r.ParserConfig), jsonText(r.MetaData), jsonText(r.ChatData),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create parser %q: %w", r.Name, classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: create parser %q: %w", r.Name, err)
	}
	r.ID = id
	r.CreatedAt, r.UpdatedAt = now, now
	return nil
}

// Get implements record.Store.
func (s *Store) Get(ctx context.Context, id int64) (record.Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if err != nil {
		return record.Record{}, fmt.Errorf("sqlite: get parser %d: %w", id, err)
	}
	return r, nil
}

// GetByName implements record.Store.
func (s *Store) GetByName(ctx context.Context, name string) (record.Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE name = ?`, name))
	if err != nil {
		return record.Record{}, fmt.Errorf("sqlite: get parser %q: %w", name, err)
	}
	return r, nil
}

// List implements record.Store.
func (s *Store) List(ctx context.Context) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list parsers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []record.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list parsers: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list parsers: %w", err)
	}
	return out, nil
}

// Update implements record.Store.
func (s *Store) Update(ctx context.Context, r *record.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE url_parser
		SET name = ?, url_pattern = ?, parser_config = ?, meta_data = ?, chat_data = ?, updated_at = ?
		WHERE id = ?`,
		r.Name, r.URLPattern,
		jsonText(r.ParserConfig), jsonText(r.MetaData), jsonText(r.ChatData),
		now.Format(time.RFC3339Nano), r.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update parser %d: %w", r.ID, classify(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlite: update parser %d: %w", r.ID, record.ErrNotFound)
	}
	r.UpdatedAt = now
	return nil
}

// Delete implements record.Store.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM url_parser WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete parser %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlite: delete parser %d: %w", id, record.ErrNotFound)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (record.Record, error) {
	var (
		r                    record.Record
		config, meta, chat   string
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.Name, &r.URLPattern, &config, &meta, &chat, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, record.ErrNotFound
	}
	if err != nil {
		return record.Record{}, err
	}
	r.ParserConfig = json.RawMessage(config)
	r.MetaData = json.RawMessage(meta)
	r.ChatData = json.RawMessage(chat)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

// jsonText stores an empty column as an empty object.
func jsonText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// classify maps constraint failures to record sentinels.
func classify(err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %w", record.ErrDuplicateName, err)
	}
	return err
}
