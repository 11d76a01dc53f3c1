// Package memory keeps exported projects in process memory. It backs tests
// and dry runs of the export pipeline.
package memory

import (
	"context"
	"sync"

	"bil/internal/core"
	"bil/internal/sheets"
)

var _ sheets.ProjectExporter = (*Store)(nil)

type Store struct {
	mu      sync.Mutex
	sheets  map[string][][]string
	exports int
}

func New() *Store {
	return &Store{sheets: make(map[string][][]string)}
}

// ExportProject replaces the project's sheet with its current rows.
func (s *Store) ExportProject(_ context.Context, project core.ProjectDetail) error {
	rows := sheets.Rows(project)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[sheets.SheetTitle(project.ID)] = rows
	s.exports++
	return nil
}

// Sheet returns a copy of the rows exported under title.
func (s *Store) Sheet(title string) ([][]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.sheets[title]
	if !ok {
		return nil, false
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out, true
}

// Exports counts ExportProject calls.
func (s *Store) Exports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exports
}
