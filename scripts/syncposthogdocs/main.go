// Package main scrapes posthog.com documentation and saves it as markdown files.
//
// Each docs page is server-rendered with its content inside an <article>
// tag. Pages are fetched one at a time, converted to markdown, and written
// under context/posthog-docs for use as local reference material.
//
// Usage:
//
//	go run ./scripts/syncposthogdocs
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// Configuration.
const (
	docsBaseURL = "https://posthog.com"
	contextDir  = "context/posthog-docs"
)

// docPage is a documentation page to sync. The slug becomes the local
// filename, or the directory name for pages that get split.
type docPage struct {
	Path string
	Slug string
}

// Pages to sync, relative to docsBaseURL.
var docPages = []docPage{
	{Path: "/docs/api/capture", Slug: "capture-api"},
	{Path: "/docs/api/post-only-endpoints", Slug: "post-only-endpoints"},
	{Path: "/docs/getting-started/identify-users", Slug: "identify-users"},
	{Path: "/docs/product-analytics/group-analytics", Slug: "group-analytics"},
	{Path: "/docs/feature-flags/local-evaluation", Slug: "local-evaluation"},
	{Path: "/docs/libraries/go", Slug: "go-library"},
}

// Pages that should be split by H2 headers into separate files.
// These are reference-style pages where each H2 is an independent item.
var splitPages = map[string]bool{
	"capture-api":         true,
	"post-only-endpoints": true,
}

// Pre-compiled regex patterns.
var (
	reNonWord           = regexp.MustCompile(`[^\w\s-]`)
	reSpacesUnderscores = regexp.MustCompile(`[\s_]+`)
	reMultipleHyphens   = regexp.MustCompile(`-+`)
	reAnchorLinks       = regexp.MustCompile(`\s*\[#?\]\(#[\w-]*\)`)
	reRelativeLinks     = regexp.MustCompile(`\]\((/[^)]+)\)`)
	reLineNumbers       = regexp.MustCompile(`^(\s*)\d{1,4}(.*)$`)
	reExcessiveNewlines = regexp.MustCompile(`\n{4,}`)
	reH2Header          = regexp.MustCompile(`(?m)(^## .+$)`)
	reH2Prefix          = regexp.MustCompile(`(?m)^## `)
	reSlugCleanup       = regexp.MustCompile("[`()\\[\\]{}]")
)

// pageSection holds one H2 subsection of a split page.
type pageSection struct {
	Slug    string
	Content string
}

func main() {
	log.Printf("Syncing PostHog documentation from %s", docsBaseURL)

	// Setup output directory
	if err := setupOutputDir(contextDir); err != nil {
		log.Fatalf("Failed to setup output directory: %v", err)
	}

	savedCount := 0

	for i, page := range docPages {
		// Be polite between fetches
		if i > 0 {
			time.Sleep(500 * time.Millisecond)
		}

		pageURL := docsBaseURL + page.Path
		log.Printf("Fetching %s", pageURL)

		htmlContent, err := fetchPage(pageURL)
		if err != nil {
			log.Printf("   Failed to fetch %s: %v", page.Path, err)
			continue
		}

		doc, err := html.Parse(strings.NewReader(htmlContent))
		if err != nil {
			log.Printf("   Failed to parse %s: %v", page.Path, err)
			continue
		}

		// Docs pages keep their content in an article tag; some layouts
		// only have main.
		article := findElement(doc, "article")
		if article == nil {
			article = findElement(doc, "main")
		}
		if article == nil {
			log.Printf("   No article content in %s, skipping", page.Path)
			continue
		}

		title := pageTitle(article)
		if title == "" {
			title = page.Slug
		}

		mdContent, err := htmltomarkdown.ConvertString(renderNode(article))
		if err != nil {
			log.Printf("   Failed to convert %s to markdown: %v", page.Path, err)
			continue
		}

		content := cleanMarkdown(mdContent)

		// Skip near-empty pages
		if len(content) < 50 {
			log.Printf("   Skipping near-empty page: %s", page.Path)
			continue
		}

		// Check if this page should be split by H2 headers
		if splitPages[page.Slug] {
			log.Printf("   Splitting page '%s' by H2 headers...", title)
			savedCount += saveSplitPage(page.Slug, title, content)
			continue
		}

		// Add title as heading if not already present
		if !strings.HasPrefix(content, "#") {
			content = fmt.Sprintf("# %s\n\n%s", title, content)
		}

		fpath := filepath.Join(contextDir, page.Slug+".md")
		if err := os.WriteFile(fpath, []byte(content), 0o644); err != nil {
			log.Printf("   Failed to save %s: %v", fpath, err)
			continue
		}
		log.Printf("   Saved: %s.md", page.Slug)
		savedCount++
	}

	log.Printf("\nSuccess! Synced %d pages to: %s", savedCount, contextDir)
}

// saveSplitPage writes each H2 section of a page as its own file under a
// directory named after the page slug. Returns the number of files saved.
func saveSplitPage(slug, title, content string) int {
	sections := extractH2Sections(content)
	if len(sections) <= 1 {
		// Nothing to split, fall back to a single file
		fpath := filepath.Join(contextDir, slug+".md")
		if err := os.WriteFile(fpath, []byte(content), 0o644); err != nil {
			log.Printf("   Failed to save %s: %v", fpath, err)
			return 0
		}
		log.Printf("   Saved: %s.md", slug)
		return 1
	}

	pageDir := filepath.Join(contextDir, slug)
	if err := os.MkdirAll(pageDir, 0o755); err != nil {
		log.Printf("   Failed to create directory %s: %v", pageDir, err)
		return 0
	}

	saved := 0
	for _, section := range sections {
		sectionContent := section.Content

		if section.Slug == "index" {
			// Add page title as H1 for the index (if not already present)
			if !strings.HasPrefix(sectionContent, "#") {
				sectionContent = fmt.Sprintf("# %s\n\n%s", title, sectionContent)
			}
		} else {
			// Promote H2 to H1 for standalone files
			sectionContent = reH2Prefix.ReplaceAllString(sectionContent, "# ")
		}

		fpath := filepath.Join(pageDir, section.Slug+".md")
		if err := os.WriteFile(fpath, []byte(sectionContent), 0o644); err != nil {
			log.Printf("      Failed to save %s: %v", fpath, err)
			continue
		}
		log.Printf("      Saved: %s/%s.md", slug, section.Slug)
		saved++
	}

	return saved
}

// extractH2Sections splits markdown content by H2 headers into separate sections.
func extractH2Sections(content string) []pageSection {
	var sections []pageSection

	parts := reH2Header.Split(content, -1)
	matches := reH2Header.FindAllString(content, -1)

	// First part is content before any H2 (intro/overview)
	if intro := strings.TrimSpace(parts[0]); intro != "" {
		sections = append(sections, pageSection{Slug: "index", Content: intro})
	}

	for i, match := range matches {
		sectionTitle := strings.TrimSpace(strings.TrimPrefix(match, "##"))

		var body string
		if i+1 < len(parts) {
			body = strings.TrimSpace(parts[i+1])
		}

		fullContent := strings.TrimSpace(match + "\n\n" + body)

		// Create slug from title (remove backticks, parentheses, etc.)
		slugText := reSlugCleanup.ReplaceAllString(sectionTitle, "")

		sections = append(sections, pageSection{
			Slug:    slugify(slugText),
			Content: fullContent,
		})
	}

	return sections
}

// cleanMarkdown cleans up markdown content.
func cleanMarkdown(content string) string {
	// Drop the community footer that trails every docs page
	if idx := strings.Index(content, "## Questions?"); idx >= 0 {
		content = content[:idx]
	}

	// Remove anchor links like [#](#section-name) from headings
	content = reAnchorLinks.ReplaceAllString(content, "")

	// Rewrite site-relative links to absolute ones
	content = reRelativeLinks.ReplaceAllString(content, "]("+docsBaseURL+"$1)")

	// Remove line numbers from code blocks
	lines := strings.Split(content, "\n")
	cleanedLines := make([]string, 0, len(lines))
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			cleanedLines = append(cleanedLines, line)
		} else if inCodeBlock {
			// Remove leading line numbers, preserving everything after
			if match := reLineNumbers.FindStringSubmatch(line); match != nil {
				cleanedLines = append(cleanedLines, match[1]+match[2])
			} else {
				cleanedLines = append(cleanedLines, line)
			}
		} else {
			cleanedLines = append(cleanedLines, line)
		}
	}

	content = strings.Join(cleanedLines, "\n")
	content = reExcessiveNewlines.ReplaceAllString(content, "\n\n\n")

	// Remove trailing whitespace from lines
	lines = strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// setupOutputDir removes existing directory and creates a fresh one.
func setupOutputDir(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		log.Printf("Cleaning existing directory: %s", dir)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove existing directory: %w", err)
		}
	}
	return os.MkdirAll(dir, 0o755)
}

// fetchPage fetches HTML content from a URL.
func fetchPage(pageURL string) (string, error) {
	client := &http.Client{Timeout: 30 * time.Second}

	req, err := http.NewRequest(http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; LeapFlowDocsSync/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	return string(body), nil
}

// pageTitle returns the text of the first h1 inside the article.
func pageTitle(article *html.Node) string {
	h1 := findElement(article, "h1")
	if h1 == nil {
		return ""
	}
	return getTextContent(h1)
}

// slugify converts text to a safe filename slug.
func slugify(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = reNonWord.ReplaceAllString(text, "")
	text = reSpacesUnderscores.ReplaceAllString(text, "-")
	text = reMultipleHyphens.ReplaceAllString(text, "-")
	return strings.Trim(text, "-")
}

// findElement finds the first element with the given tag name.
func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// getTextContent returns the text content of a node and its children.
func getTextContent(n *html.Node) string {
	var sb strings.Builder
	var getText func(*html.Node)
	getText = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			getText(c)
		}
	}
	getText(n)
	return strings.TrimSpace(sb.String())
}

// renderNode renders an HTML node back to string.
func renderNode(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}
