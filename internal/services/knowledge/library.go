package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Guide is one markdown reference document from the guides directory
type Guide struct {
	ID       string
	Title    string
	Content  string
	FilePath string
	ModTime  time.Time
	Sections []Section
}

// Section is one heading-delimited part of a guide
type Section struct {
	Title   string
	Content string
	Level   int
}

// Service defines guide library operations
type Service interface {
	Load(ctx context.Context, dir string) error
	Search(ctx context.Context, query string, limit int) ([]Guide, error)
	All() []Guide
	Get(id string) (*Guide, error)
	Refresh(ctx context.Context) error
}

// Library holds the loaded guides in memory
type Library struct {
	guides   map[string]*Guide
	guidesRW sync.RWMutex
	dir      string
	logger   *logrus.Logger
}

// NewLibrary creates an empty guide library
func NewLibrary(logger *logrus.Logger) *Library {
	return &Library{
		guides: make(map[string]*Guide),
		logger: logger,
	}
}

// Load reads all markdown files under dir into the library
func (l *Library) Load(ctx context.Context, dir string) error {
	l.dir = dir
	l.logger.WithField("dir", dir).Info("Loading guides")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create guides directory: %w", err)
	}

	l.guidesRW.Lock()
	defer l.guidesRW.Unlock()

	l.guides = make(map[string]*Guide)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".md") {
			return nil
		}

		guide, err := l.loadGuide(path)
		if err != nil {
			l.logger.WithError(err).WithField("path", path).Warn("Failed to load guide")
			return nil
		}

		l.guides[guide.ID] = guide
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk guides directory: %w", err)
	}

	l.logger.WithField("count", len(l.guides)).Info("Guides loaded")
	return nil
}

func (l *Library) loadGuide(path string) (*Guide, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	relPath, _ := filepath.Rel(l.dir, path)
	id := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	id = strings.ReplaceAll(id, string(filepath.Separator), "_")

	guide := &Guide{
		ID:       id,
		FilePath: path,
		Content:  string(content),
		ModTime:  info.ModTime(),
	}
	parseGuide(guide)

	return guide, nil
}

// parseGuide extracts the title and heading-delimited sections
func parseGuide(guide *Guide) {
	lines := strings.Split(guide.Content, "\n")
	guide.Sections = make([]Section, 0)

	var current *Section

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "#") {
			level := 0
			for i, ch := range trimmed {
				if ch == '#' {
					level++
					continue
				}

				headerText := strings.TrimSpace(trimmed[i:])

				// The first level-1 heading names the guide.
				if level == 1 && guide.Title == "" {
					guide.Title = headerText
				}

				if current != nil {
					guide.Sections = append(guide.Sections, *current)
				}
				current = &Section{Title: headerText, Level: level}
				break
			}
		} else if current != nil {
			if current.Content != "" {
				current.Content += "\n"
			}
			current.Content += line
		}
	}

	if current != nil {
		guide.Sections = append(guide.Sections, *current)
	}

	if guide.Title == "" {
		name := strings.TrimSuffix(filepath.Base(guide.FilePath), filepath.Ext(guide.FilePath))
		name = strings.ReplaceAll(name, "_", " ")
		guide.Title = strings.ReplaceAll(name, "-", " ")
	}
}

// Search returns guides relevant to the query, best match first.
// Scoring is per query word so that a Russian question phrased
// differently from the guide text still finds it.
func (l *Library) Search(ctx context.Context, query string, limit int) ([]Guide, error) {
	l.guidesRW.RLock()
	defer l.guidesRW.RUnlock()

	words := tokenize(query)
	if len(words) == 0 {
		return nil, nil
	}

	type scored struct {
		guide *Guide
		score int
	}
	var matches []scored

	for _, guide := range l.guides {
		titleLower := strings.ToLower(guide.Title)
		contentLower := strings.ToLower(guide.Content)

		score := 0
		for _, word := range words {
			if strings.Contains(titleLower, word) {
				score += 10
			}
			score += strings.Count(contentLower, word)
			for _, section := range guide.Sections {
				if strings.Contains(strings.ToLower(section.Title), word) {
					score += 5
				}
			}
		}
		if score > 0 {
			matches = append(matches, scored{guide: guide, score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]Guide, 0, len(matches))
	for _, m := range matches {
		results = append(results, *m.guide)
	}
	return results, nil
}

// All returns every loaded guide sorted by title
func (l *Library) All() []Guide {
	l.guidesRW.RLock()
	defer l.guidesRW.RUnlock()

	guides := make([]Guide, 0, len(l.guides))
	for _, guide := range l.guides {
		guides = append(guides, *guide)
	}
	sort.Slice(guides, func(i, j int) bool { return guides[i].Title < guides[j].Title })

	return guides
}

// Get returns a guide by ID
func (l *Library) Get(id string) (*Guide, error) {
	l.guidesRW.RLock()
	defer l.guidesRW.RUnlock()

	guide, exists := l.guides[id]
	if !exists {
		return nil, fmt.Errorf("guide not found: %s", id)
	}
	return guide, nil
}

// Refresh reloads the library from its directory
func (l *Library) Refresh(ctx context.Context) error {
	return l.Load(ctx, l.dir)
}
