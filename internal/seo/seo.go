// Package seo holds the document-head metadata a page sets while mounted.
package seo

import (
	"strings"
	"sync"
)

// Setter receives page metadata. A page calls Set once when it mounts and
// Reset when it is torn down.
type Setter interface {
	Set(title, description string)
	Reset()
}

// Meta is the metadata rendered into the document head.
type Meta struct {
	Title       string
	Description string
	Canonical   string
}

// Site carries the fallbacks used when no page has set metadata.
type Site struct {
	Name               string
	BaseURL            string
	DefaultTitle       string
	DefaultDescription string
}

// Head is a Setter that keeps the current metadata for one rendered document.
type Head struct {
	site Site
	path string

	mu          sync.Mutex
	title       string
	description string
}

// NewHead returns a Head for the document at path.
func NewHead(site Site, path string) *Head {
	return &Head{site: site, path: path}
}

// Set replaces the page title and description.
func (h *Head) Set(title, description string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.title = strings.TrimSpace(title)
	h.description = strings.TrimSpace(description)
}

// Reset restores the site defaults.
func (h *Head) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.title = ""
	h.description = ""
}

// Meta returns the metadata in effect. A title that does not already name the
// site gets the site name appended.
func (h *Head) Meta() Meta {
	h.mu.Lock()
	defer h.mu.Unlock()

	m := Meta{Title: h.title, Description: h.description}
	if m.Title == "" {
		m.Title = h.site.DefaultTitle
	} else if h.site.Name != "" && !strings.Contains(m.Title, h.site.Name) {
		m.Title += " | " + h.site.Name
	}
	if m.Description == "" {
		m.Description = h.site.DefaultDescription
	}
	if h.site.BaseURL != "" {
		m.Canonical = strings.TrimRight(h.site.BaseURL, "/") + h.path
	}
	return m
}

// Document is a Setter whose current metadata can be read back for rendering.
type Document interface {
	Setter
	Meta() Meta
}
