// Package savedquery loads named query definitions from YAML files.
package savedquery

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aevon-lab/regraph/internal/core/locale"
	"github.com/aevon-lab/regraph/internal/core/query"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Get for an unknown definition name.
var ErrNotFound = errors.New("saved query not found")

// Definition is one saved query. Definitions are compiled when loaded, so a
// syntax error or an unknown function in a file fails loading.
type Definition struct {
	Name        string
	Title       string // collection name; defaults to Name
	Query       string
	Locale      string // BCP 47 tag for date literals; empty uses the engine default
	Statement   *query.Statement
	Fingerprint string // SHA-256 of the raw YAML file
}

// rawDefinition is the on-disk YAML shape.
type rawDefinition struct {
	Name   string `yaml:"name"`
	Title  string `yaml:"title"`
	Query  string `yaml:"query"`
	Locale string `yaml:"locale"`
}

// DateParser returns the locale of the definition reading dates in loc, or nil
// to use the engine default.
func (d *Definition) DateParser(loc *time.Location) (query.DateParser, error) {
	if d.Locale == "" {
		return nil, nil
	}
	l, err := locale.For(d.Locale)
	if err != nil {
		return nil, fmt.Errorf("saved query %q: %w", d.Name, err)
	}
	return l.In(loc), nil
}

// Repository provides saved query definitions.
type Repository interface {
	// Get returns the definition with the given name.
	Get(ctx context.Context, name string) (*Definition, error)

	// List returns definitions sorted by name, optionally filtered by title.
	List(ctx context.Context, title string) ([]Definition, error)

	// Definitions returns all definitions sorted by name.
	Definitions() []Definition
}

// Compile validates raw definition fields and parses the query text.
func Compile(name, title, text, tag string) (*Definition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("saved query: name must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("saved query %q: query must not be empty", name)
	}
	stmt, err := query.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("saved query %q: %w", name, err)
	}
	if tag != "" {
		if _, err := locale.For(tag); err != nil {
			return nil, fmt.Errorf("saved query %q: %w", name, err)
		}
	}
	if title == "" {
		title = name
	}
	return &Definition{
		Name:      name,
		Title:     title,
		Query:     text,
		Locale:    tag,
		Statement: stmt,
	}, nil
}

// FileSystemRepository loads definitions from *.yaml and *.yml files in a
// directory, one definition per file. Files are read once at construction.
type FileSystemRepository struct {
	dir  string
	defs map[string]Definition
}

// NewFileSystemRepository eagerly loads every definition in dir. A missing
// directory yields an empty repository.
func NewFileSystemRepository(dir string) (*FileSystemRepository, error) {
	repo := &FileSystemRepository{
		dir:  dir,
		defs: make(map[string]Definition),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Dir returns the directory the definitions were loaded from.
func (r *FileSystemRepository) Dir() string { return r.dir }

func (r *FileSystemRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("saved query dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("saved query path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading saved query dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading saved query file %s: %w", path, err)
		}

		var raw rawDefinition
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing saved query file %s: %w", path, err)
		}
		if raw.Name == "" && raw.Query == "" {
			continue // empty or comment-only file
		}

		def, err := Compile(raw.Name, raw.Title, raw.Query, raw.Locale)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if _, exists := r.defs[def.Name]; exists {
			return fmt.Errorf("saved query %q: duplicate name (check multiple YAML files)", def.Name)
		}
		def.Fingerprint = fmt.Sprintf("%x", sha256.Sum256(data))
		r.defs[def.Name] = *def
	}
	return nil
}

func (r *FileSystemRepository) Get(_ context.Context, name string) (*Definition, error) {
	return get(r.defs, name)
}

func (r *FileSystemRepository) List(_ context.Context, title string) ([]Definition, error) {
	return list(r.defs, title), nil
}

func (r *FileSystemRepository) Definitions() []Definition {
	return list(r.defs, "")
}

// MemoryRepository holds definitions built in code.
type MemoryRepository struct {
	defs map[string]Definition
}

// NewMemoryRepository indexes defs by name. Later duplicates win.
func NewMemoryRepository(defs ...Definition) *MemoryRepository {
	repo := &MemoryRepository{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		repo.defs[d.Name] = d
	}
	return repo
}

func (r *MemoryRepository) Get(_ context.Context, name string) (*Definition, error) {
	return get(r.defs, name)
}

func (r *MemoryRepository) List(_ context.Context, title string) ([]Definition, error) {
	return list(r.defs, title), nil
}

func (r *MemoryRepository) Definitions() []Definition {
	return list(r.defs, "")
}

func get(defs map[string]Definition, name string) (*Definition, error) {
	def, ok := defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return &def, nil
}

func list(defs map[string]Definition, title string) []Definition {
	out := make([]Definition, 0, len(defs))
	for _, def := range defs {
		if title != "" && def.Title != title {
			continue
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
