package resource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ---- Seed file structures ----

// BadgeDef is a badge definition in a seed file.
type BadgeDef struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	IconURL     string `yaml:"icon_url"`
}

// TaskDef is a task definition. XP is the reward credited on completion.
type TaskDef struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	XP          int    `yaml:"xp"`
}

// QuestDef is a quest and its tasks, in order.
type QuestDef struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Tasks       []TaskDef `yaml:"tasks"`
}

// TopicDef is a topic and its quests, in order.
type TopicDef struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Quests      []QuestDef `yaml:"quests"`
}

// CatalogFile is the top-level document of a seed file. Tasks lists
// stand-alone tasks that belong to no quest.
type CatalogFile struct {
	Badges []BadgeDef `yaml:"badges"`
	Topics []TopicDef `yaml:"topics"`
	Tasks  []TaskDef  `yaml:"tasks"`
}

// ---- Loader ----

// Loader reads catalog seed files. Path may name a single YAML file or a
// directory whose *.yaml and *.yml files are merged in name order.
type Loader struct {
	Path    string
	Catalog *CatalogFile
	Files   []string
}

// NewLoader creates a Loader for path.
func NewLoader(path string) *Loader {
	return &Loader{Path: path}
}

// Load reads and validates every seed file.
func (l *Loader) Load() error {
	files, err := l.seedFiles()
	if err != nil {
		return err
	}
	merged := &CatalogFile{}
	for _, f := range files {
		cf, err := parseFile(f)
		if err != nil {
			return err
		}
		merged.Badges = append(merged.Badges, cf.Badges...)
		merged.Topics = append(merged.Topics, cf.Topics...)
		merged.Tasks = append(merged.Tasks, cf.Tasks...)
	}
	if err := merged.Validate(); err != nil {
		return fmt.Errorf("resource: %s: %w", l.Path, err)
	}
	l.Catalog = merged
	l.Files = files
	return nil
}

func (l *Loader) seedFiles() ([]string, error) {
	info, err := os.Stat(l.Path)
	if err != nil {
		return nil, fmt.Errorf("resource: stat %s: %w", l.Path, err)
	}
	if !info.IsDir() {
		return []string{l.Path}, nil
	}
	entries, err := os.ReadDir(l.Path)
	if err != nil {
		return nil, fmt.Errorf("resource: read dir %s: %w", l.Path, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(l.Path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func parseFile(path string) (*CatalogFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resource: read %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes one seed document. Unknown keys are rejected so typos do
// not silently drop content.
func Parse(data []byte, name string) (*CatalogFile, error) {
	var cf CatalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		if errors.Is(err, io.EOF) {
			return &cf, nil
		}
		return nil, fmt.Errorf("resource: parse %s: %w", name, err)
	}
	return &cf, nil
}

// Validate checks that ids are present and unique per kind, that every
// definition is named and that rewards are non-negative.
func (cf *CatalogFile) Validate() error {
	seen := map[string]map[string]bool{
		"badge": {}, "topic": {}, "quest": {}, "task": {},
	}
	claim := func(kind, id string) error {
		if id == "" {
			return fmt.Errorf("%s without id", kind)
		}
		if seen[kind][id] {
			return fmt.Errorf("duplicate %s id %q", kind, id)
		}
		seen[kind][id] = true
		return nil
	}
	checkTask := func(t TaskDef) error {
		if err := claim("task", t.ID); err != nil {
			return err
		}
		if t.Title == "" {
			return fmt.Errorf("task %q has no title", t.ID)
		}
		if t.XP < 0 {
			return fmt.Errorf("task %q has negative xp %d", t.ID, t.XP)
		}
		return nil
	}

	for _, b := range cf.Badges {
		if err := claim("badge", b.ID); err != nil {
			return err
		}
		if b.Name == "" {
			return fmt.Errorf("badge %q has no name", b.ID)
		}
	}
	for _, tp := range cf.Topics {
		if err := claim("topic", tp.ID); err != nil {
			return err
		}
		if tp.Name == "" {
			return fmt.Errorf("topic %q has no name", tp.ID)
		}
		for _, q := range tp.Quests {
			if err := claim("quest", q.ID); err != nil {
				return err
			}
			if q.Name == "" {
				return fmt.Errorf("quest %q has no name", q.ID)
			}
			for _, t := range q.Tasks {
				if err := checkTask(t); err != nil {
					return err
				}
			}
		}
	}
	for _, t := range cf.Tasks {
		if err := checkTask(t); err != nil {
			return err
		}
	}
	return nil
}

// Counts returns how many definitions of each kind the catalog holds.
func (cf *CatalogFile) Counts() (badges, topics, quests, tasks int) {
	badges, topics, tasks = len(cf.Badges), len(cf.Topics), len(cf.Tasks)
	for _, tp := range cf.Topics {
		quests += len(tp.Quests)
		for _, q := range tp.Quests {
			tasks += len(q.Tasks)
		}
	}
	return
}
