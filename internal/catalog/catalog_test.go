package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pavelanni/quizzer/internal/model"
)

const testCatalogJSON = `{
  "subjects": [
    {"name": "Math", "children": [
      {"name": "Algebra", "children": [
        {"name": "Linear equations", "children": [{"name": "Two variables"}]}
      ]},
      {"name": "Geometry"}
    ]},
    {"name": "Physics"}
  ]
}`

func writeCatalog(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadAndResolve(t *testing.T) {
	c, err := Load(writeCatalog(t, "catalog.json", testCatalogJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Empty() {
		t.Fatal("expected subjects")
	}

	tests := []struct {
		name         string
		sel          Selection
		wantCategory string
		wantTopic    string
		wantErr      bool
	}{
		{"subject only", Selection{Subject: "Physics"}, "Physics", "", false},
		{"specialization", Selection{Subject: "Math", Specialization: "Geometry"}, "Math", "Geometry", false},
		{"full path", Selection{Subject: "Math", Specialization: "Algebra", Topic: "Linear equations", SubTopic: "Two variables"}, "Math", "Two variables", false},
		{"unknown subject", Selection{Subject: "History"}, "", "", true},
		{"wrong parent", Selection{Subject: "Physics", Specialization: "Algebra"}, "", "", true},
		{"skipped level", Selection{Subject: "Math", Topic: "Linear equations"}, "", "", true},
		{"empty", Selection{}, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, topic, err := c.Resolve(tt.sel)
			if tt.wantErr {
				if !errors.Is(err, model.ErrInvalidSelection) {
					t.Errorf("expected ErrInvalidSelection, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if cat != tt.wantCategory || topic != tt.wantTopic {
				t.Errorf("Resolve() = %q, %q, want %q, %q", cat, topic, tt.wantCategory, tt.wantTopic)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeCatalog(t, "catalog.yaml", "subjects:\n  - name: Chemistry\n    children:\n      - name: Organic\n")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, _, err := c.Resolve(Selection{Subject: "Chemistry", Specialization: "Organic"}); err != nil {
		t.Errorf("Resolve: %v", err)
	}
}

func TestEmptyCatalogAcceptsAnything(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cat, topic, err := c.Resolve(Selection{Subject: "Anything", Specialization: "Goes"})
	if err != nil || cat != "Anything" || topic != "Goes" {
		t.Errorf("Resolve() = %q, %q, %v", cat, topic, err)
	}
	if _, _, err := c.Resolve(Selection{}); !errors.Is(err, model.ErrInvalidSelection) {
		t.Error("subject is still required")
	}
}

func TestLoadRejectsBadTrees(t *testing.T) {
	tests := map[string]string{
		"duplicate": `{"subjects":[{"name":"Math"},{"name":"Math"}]}`,
		"empty name": `{"subjects":[{"name":""}]}`,
		"too deep": `{"subjects":[{"name":"a","children":[{"name":"b","children":[{"name":"c","children":[{"name":"d","children":[{"name":"e"}]}]}]}]}]}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeCatalog(t, "catalog.json", content)); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
