// Package content loads authored course pages and modules from YAML.
package content

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

const moduleSuffix = ".module.yaml"

// Loader loads and caches page content from the filesystem.
type Loader struct {
	rootDir    string
	schemas    *Schemas
	pages      []Page
	modules    map[string]Module
	rejections []Rejection
	mu         sync.RWMutex
}

// NewLoader creates a new content loader and loads all content.
func NewLoader(rootDir string) (*Loader, error) {
	schemas, err := LoadSchemas()
	if err != nil {
		return nil, err
	}

	l := &Loader{
		rootDir: rootDir,
		schemas: schemas,
		modules: make(map[string]Module),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}

	slog.Info("content loaded",
		"pages", len(l.pages),
		"modules", len(l.modules),
		"rejected", len(l.rejections),
	)
	return l, nil
}

// Pages returns all loaded pages ordered by route.
func (l *Loader) Pages() []Page {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Page(nil), l.pages...)
}

// Modules returns all loaded modules ordered by id.
func (l *Loader) Modules() []Module {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Module, 0, len(l.modules))
	for _, m := range l.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}


// Rejections returns the files that were skipped because they failed to parse
// or validate.
func (l *Loader) Rejections() []Rejection {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Rejection(nil), l.rejections...)
}

func (l *Loader) loadAll() error {
	err := filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, moduleSuffix):
			return l.loadModule(path)
		case strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml"):
			return l.loadPage(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	sort.SliceStable(l.pages, func(i, j int) bool { return l.pages[i].Route < l.pages[j].Route })
	l.mu.Unlock()
	return nil
}

func (l *Loader) loadPage(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial struct {
		Route string `yaml:"route"`
	}
	if err := yaml.Unmarshal(data, &partial); err != nil {
		l.reject(path, fmt.Sprintf("invalid YAML: %v", err))
		return nil
	}
	if partial.Route == "" {
		return nil // Not a page file
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		l.reject(path, fmt.Sprintf("invalid YAML: %v", err))
		return nil
	}
	if err := l.schemas.ValidatePage(doc); err != nil {
		l.reject(path, err.Error())
		return nil
	}

	var page Page
	if err := yaml.Unmarshal(data, &page); err != nil {
		l.reject(path, fmt.Sprintf("decoding page: %v", err))
		return nil
	}

	page.Source = path
	page.Digest = digest(data)
	normalize(&page)

	l.mu.Lock()
	l.pages = append(l.pages, page)
	l.mu.Unlock()

	return nil
}

func (l *Loader) loadModule(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		l.reject(path, fmt.Sprintf("invalid YAML: %v", err))
		return nil
	}
	if err := l.schemas.ValidateModule(doc); err != nil {
		l.reject(path, err.Error())
		return nil
	}

	var m Module
	if err := yaml.Unmarshal(data, &m); err != nil {
		l.reject(path, fmt.Sprintf("decoding module: %v", err))
		return nil
	}
	m.Source = path

	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, dup := l.modules[m.ID]; dup {
		l.rejections = append(l.rejections, Rejection{
			Path:   path,
			Reason: fmt.Sprintf("module %q already defined in %s", m.ID, prev.Source),
		})
		return nil
	}
	l.modules[m.ID] = m

	return nil
}

func (l *Loader) reject(path, reason string) {
	slog.Warn("skipping invalid content file", "path", path, "reason", reason)
	l.mu.Lock()
	l.rejections = append(l.rejections, Rejection{Path: path, Reason: reason})
	l.mu.Unlock()
}

// normalize fills defaults that authors may leave out.
func normalize(p *Page) {
	p.Route = path.Clean(p.Route)
	if p.Kind == "" {
		p.Kind = KindSection
	}
	if p.FAQStyle == "" {
		p.FAQStyle = FAQAccordion
	}
	if p.Hero.Heading == "" {
		p.Hero.Heading = p.Title
	}
	for i := range p.Sections {
		if p.Sections[i].ID == "" {
			p.Sections[i].ID = Slug(p.Sections[i].Heading)
		}
	}
}

func digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
