// Package docs renders the provider documentation site: the index
// page, the connection and operator guides, the changelog and a
// machine readable manifest. Pages are generated from the live
// provider manifest so the published docs cannot drift from the code.
package docs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

// Generator renders the documentation for one provider.
type Generator struct {
	info provider.Info
}

// NewGenerator creates a documentation generator for the provider.
func NewGenerator(info provider.Info) *Generator {
	return &Generator{info: info}
}

// Build renders all pages and the manifest into outputDir, then checks
// that every relative link resolves to a file it wrote.
func (g *Generator) Build(outputDir string) error {
	if rel := Releases(); len(rel) > 0 && rel[0].Version != g.info.Version {
		return fmt.Errorf("changelog head %s does not match provider version %s", rel[0].Version, g.info.Version)
	}

	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, page := range Pages {
		content, err := g.renderPage(page.File)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(outputDir, page.File), content, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", page.File, err)
		}
	}

	manifest, err := json.MarshalIndent(GenerateManifest(g.info), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "manifest.json"), manifest, 0600); err != nil {
		return fmt.Errorf("failed to write manifest.json: %w", err)
	}

	return VerifyLinks(outputDir)
}

// linkPattern matches markdown links, capturing the target.
var linkPattern = regexp.MustCompile(`\[[^\]]*\]\(([^)]+)\)`)

// VerifyLinks checks that every relative link in the directory's
// markdown files points at a file that exists there. Absolute URLs and
// fragment links are left alone.
func VerifyLinks(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read output directory: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		for _, match := range linkPattern.FindAllStringSubmatch(string(content), -1) {
			target := match[1]
			if strings.Contains(target, "://") || strings.HasPrefix(target, "#") || strings.HasPrefix(target, "mailto:") {
				continue
			}
			target, _, _ = strings.Cut(target, "#")
			if _, err := os.Stat(filepath.Join(dir, target)); err != nil {
				errs = append(errs, fmt.Errorf("%s links to %s which was not written", entry.Name(), target))
			}
		}
	}
	return errors.Join(errs...)
}

// Serve builds the site into outputDir and serves it locally.
func (g *Generator) Serve(outputDir string, port int) error {
	if err := g.Build(outputDir); err != nil {
		return err
	}
	return ServeFromFS(outputDir, port)
}

// ServeFromFS serves an already built documentation directory.
func ServeFromFS(outputDir string, port int) error {
	addr := fmt.Sprintf(":%d", port)
	fmt.Printf("Serving docs at http://localhost%s\n", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           http.FileServer(http.Dir(outputDir)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}
