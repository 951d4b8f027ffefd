package docs

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

var pageTemplates = template.Must(template.New("docs").ParseFS(templateFiles, "templates/*.tmpl"))

// installCommand is rendered on the index page.
const installCommand = "go install github.com/leapstack-labs/leapflow-posthog/cmd/leapflow-posthog@latest"

// Page is one rendered documentation file.
type Page struct {
	Title string `json:"title"`
	File  string `json:"file"`
}

// Pages lists the markdown files a build writes, index first.
var Pages = []Page{
	{Title: "PostHog Provider", File: "index.md"},
	{Title: "Connections", File: "connections.md"},
	{Title: "Operators", File: "operators.md"},
	{Title: "Changelog", File: "changelog.md"},
}

// pageData is handed to every page template.
type pageData struct {
	Info     provider.Info
	ConnType string
	Install  string
	Releases []Release
}

func (g *Generator) renderPage(file string) ([]byte, error) {
	connType := "posthog"
	if len(g.info.ConnectionTypes) > 0 {
		connType = g.info.ConnectionTypes[0]
	}
	data := pageData{
		Info:     g.info,
		ConnType: connType,
		Install:  installCommand,
		Releases: Releases(),
	}

	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, file+".tmpl", data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", file, err)
	}
	return buf.Bytes(), nil
}
