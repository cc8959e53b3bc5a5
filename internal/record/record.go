// Package record defines saved URL parsers and the store they live in.
// A record keeps the parser itself (url_pattern + parser_config) together
// with the design conversation that produced it, so a session can be
// reopened where it stopped.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/flemzord/parserdesk/internal/memory"
	"github.com/flemzord/parserdesk/internal/scrape"
)

// ServiceName is the AppContext service key of the configured Store.
const ServiceName = "record.store"

// Sentinel errors shared by Store implementations.
var (
	ErrNotFound      = errors.New("parser not found")
	ErrDuplicateName = errors.New("parser name already exists")
	ErrInvalid       = errors.New("invalid parser record")
)

// Record is a saved parser.
type Record struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	URLPattern   string          `json:"url_pattern"`
	ParserConfig json.RawMessage `json:"parser_config"`
	MetaData     json.RawMessage `json:"meta_data,omitempty"`
	ChatData     json.RawMessage `json:"chat_data,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// MetaData is the content of Record.MetaData written on save.
type MetaData struct {
	LastUpdated time.Time `json:"last_updated"`
	URL         string    `json:"url,omitempty"`
	Description string    `json:"description,omitempty"`
}

// ChatData is the content of Record.ChatData: what is needed to reopen the
// design session.
type ChatData struct {
	ChatHistory []memory.Message `json:"chat_history"`
	Memory      map[string]any   `json:"memory"`
	State       string           `json:"state,omitempty"`
}

// Store persists records. Implementations wrap ErrNotFound and
// ErrDuplicateName with %w.
type Store interface {
	// Create inserts r and fills its ID and timestamps.
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id int64) (Record, error)
	GetByName(ctx context.Context, name string) (Record, error)
	// List returns every record ordered by name.
	List(ctx context.Context) ([]Record, error)
	// Update replaces the record with r.ID and refreshes UpdatedAt.
	Update(ctx context.Context, r *Record) error
	Delete(ctx context.Context, id int64) error
}

// Validate checks the fields every store requires.
func (r *Record) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if r.URLPattern == "" {
		errs = append(errs, errors.New("url_pattern is required"))
	} else if _, err := regexp.Compile(r.URLPattern); err != nil {
		errs = append(errs, fmt.Errorf("url_pattern: %w", err))
	}
	if len(r.ParserConfig) > 0 {
		if _, err := r.Config(); err != nil {
			errs = append(errs, err)
		}
	}
	for name, raw := range map[string]json.RawMessage{"meta_data": r.MetaData, "chat_data": r.ChatData} {
		if len(raw) > 0 && !json.Valid(raw) {
			errs = append(errs, fmt.Errorf("%s is not valid JSON", name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Config decodes the parser configuration.
func (r *Record) Config() (scrape.ParserConfig, error) {
	var cfg scrape.ParserConfig
	if err := json.Unmarshal(r.ParserConfig, &cfg); err != nil {
		return cfg, fmt.Errorf("parser_config: %w", err)
	}
	switch cfg.Type {
	case scrape.TypeList, scrape.TypeContent:
		return cfg, nil
	default:
		return cfg, fmt.Errorf("parser_config: %w: %q", scrape.ErrUnknownType, cfg.Type)
	}
}

// Matches reports whether url matches the record's pattern.
func (r *Record) Matches(url string) bool {
	re, err := regexp.Compile(r.URLPattern)
	return err == nil && re.MatchString(url)
}

// Chat decodes the saved conversation. Records without chat data yield an
// empty ChatData.
func (r *Record) Chat() (ChatData, error) {
	var cd ChatData
	if len(r.ChatData) == 0 || string(r.ChatData) == "null" {
		return cd, nil
	}
	if err := json.Unmarshal(r.ChatData, &cd); err != nil {
		return cd, fmt.Errorf("chat_data: %w", err)
	}
	return cd, nil
}

// Meta decodes the metadata.
func (r *Record) Meta() (MetaData, error) {
	var md MetaData
	if len(r.MetaData) == 0 || string(r.MetaData) == "null" {
		return md, nil
	}
	if err := json.Unmarshal(r.MetaData, &md); err != nil {
		return md, fmt.Errorf("meta_data: %w", err)
	}
	return md, nil
}

// Encode marshals v for one of the JSON columns.
func Encode(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Match returns the first record, by name order, whose pattern matches url.
func Match(ctx context.Context, s Store, url string) (Record, error) {
	all, err := s.List(ctx)
	if err != nil {
		return Record{}, err
	}
	for _, r := range all {
		if r.Matches(url) {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: no pattern matches %s", ErrNotFound, url)
}
