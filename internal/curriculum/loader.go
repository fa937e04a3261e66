package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Loader loads and caches one curriculum table per subject from the filesystem.
type Loader struct {
	rootDir string
	tables  map[string]*Table
	mu      sync.RWMutex
}

// NewLoader creates a curriculum loader. An empty rootDir serves only the
// embedded physics curriculum; otherwise every table found under rootDir is
// loaded and may override the embedded one.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		tables:  map[string]*Table{},
	}
	def := Default()
	l.tables[def.Subject] = def

	if rootDir != "" {
		if err := l.loadAll(); err != nil {
			return nil, fmt.Errorf("loading curriculum: %w", err)
		}
	}

	slog.Info("curriculum loaded", "subjects", l.Subjects())
	return l, nil
}

// Table returns the curriculum of a subject.
func (l *Loader) Table(subject string) (*Table, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tables[subject]
	return t, ok
}

// Subjects returns the loaded subject names, sorted.
func (l *Loader) Subjects() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	subjects := make([]string, 0, len(l.tables))
	for s := range l.tables {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)
	return subjects
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			return l.loadFile(path, func(f *os.File) (*Table, error) { return Decode(f) })
		case ".xlsx":
			subject := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			return l.loadFile(path, func(f *os.File) (*Table, error) { return DecodeXLSX(f, subject) })
		}
		return nil
	})
}

func (l *Loader) loadFile(path string, decode func(*os.File) (*Table, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	t, err := decode(f)
	if err != nil {
		slog.Warn("skipping invalid curriculum file", "path", path, "error", err)
		return nil
	}

	l.mu.Lock()
	l.tables[t.Subject] = t
	l.mu.Unlock()

	slog.Debug("curriculum file loaded", "path", path, "subject", t.Subject, "chapters", len(t.Chapters))
	return nil
}
