package posthog_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestClientImportsOnly verifies pkg/posthog stays self-contained: stdlib
// plus its two wire-level dependencies. Nothing from internal/ or the
// provider packages may leak in, so the client can be reused on its own.
func TestClientImportsOnly(t *testing.T) {
	allowedExternal := map[string]bool{
		"github.com/google/uuid":        true,
		"github.com/sethvargo/go-retry": true,
	}

	fset := token.NewFileSet()

	entries, err := os.ReadDir(".")
	if err != nil {
		t.Fatalf("Failed to read package directory: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") {
			continue
		}
		if strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		path := filepath.Join(".", entry.Name())
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			t.Errorf("Failed to parse %s: %v", path, err)
			continue
		}

		for _, imp := range f.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)

			// Stdlib has no dot in the first path element.
			if !strings.Contains(importPath, ".") {
				continue
			}
			if !allowedExternal[importPath] {
				t.Errorf("%s imports forbidden package: %s", entry.Name(), importPath)
			}
		}
	}
}
