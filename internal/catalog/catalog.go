// Package catalog holds the subject hierarchy quizzes are selected from:
// subject, specialization, topic and sub-topic.
package catalog

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/pavelanni/quizzer/internal/model"
)

// Node is one level of the hierarchy.
type Node struct {
	Name     string `mapstructure:"name" json:"name"`
	Children []Node `mapstructure:"children" json:"children,omitempty"`
}

// Catalog is the root of the hierarchy. An empty catalog accepts every selection.
type Catalog struct {
	Subjects []Node `mapstructure:"subjects" json:"subjects"`
}

// Selection is a path into the catalog. Only Subject is required.
type Selection struct {
	Subject        string `json:"subject"`
	Specialization string `json:"specialization,omitempty"`
	Topic          string `json:"topic,omitempty"`
	SubTopic       string `json:"sub_topic,omitempty"`
}

func (s Selection) path() []string {
	var p []string
	for _, part := range []string{s.Subject, s.Specialization, s.Topic, s.SubTopic} {
		part = strings.TrimSpace(part)
		if part == "" {
			break
		}
		p = append(p, part)
	}
	return p
}

// Load reads a catalog file. Any format viper understands (json, yaml, toml)
// works; the extension decides. An empty path yields an empty catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return &Catalog{}, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var c Catalog
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	if err := c.check(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	slog.Info("loaded catalog", "path", path, "subjects", len(c.Subjects))
	return &c, nil
}

func (c *Catalog) check() error {
	var walk func(nodes []Node, depth int, prefix string) error
	walk = func(nodes []Node, depth int, prefix string) error {
		seen := make(map[string]bool)
		for _, n := range nodes {
			name := strings.TrimSpace(n.Name)
			if name == "" {
				return fmt.Errorf("empty name under %q", prefix)
			}
			if seen[name] {
				return fmt.Errorf("duplicate %q under %q", name, prefix)
			}
			seen[name] = true
			if depth == 3 && len(n.Children) > 0 {
				return fmt.Errorf("%q is nested deeper than sub-topic", prefix+"/"+name)
			}
			if err := walk(n.Children, depth+1, prefix+"/"+name); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(c.Subjects, 0, "")
}

// Empty reports whether the catalog has no subjects.
func (c *Catalog) Empty() bool {
	return c == nil || len(c.Subjects) == 0
}

// Resolve validates sel and returns the quiz category (the subject) and topic
// (the deepest selected node). It fails with model.ErrInvalidSelection when a
// level is unknown or a level is skipped.
func (c *Catalog) Resolve(sel Selection) (category, topic string, err error) {
	p := sel.path()
	if len(p) == 0 {
		return "", "", fmt.Errorf("%w: subject is required", model.ErrInvalidSelection)
	}
	if n := countSet(sel); n != len(p) {
		return "", "", fmt.Errorf("%w: levels must be selected in order", model.ErrInvalidSelection)
	}
	category = p[0]
	if len(p) > 1 {
		topic = p[len(p)-1]
	}
	if c.Empty() {
		return category, topic, nil
	}

	nodes := c.Subjects
	for depth, name := range p {
		i := slices.IndexFunc(nodes, func(n Node) bool { return n.Name == name })
		if i < 0 {
			return "", "", fmt.Errorf("%w: unknown %s %q", model.ErrInvalidSelection, levelNames[depth], name)
		}
		nodes = nodes[i].Children
	}
	return category, topic, nil
}

var levelNames = []string{"subject", "specialization", "topic", "sub-topic"}

func countSet(sel Selection) int {
	n := 0
	for _, part := range []string{sel.Subject, sel.Specialization, sel.Topic, sel.SubTopic} {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}
