// Package transform runs user-defined Starlark transforms over events
// before the relay forwards them. Each .star file in the transforms
// directory exports a transform(event) function; returning the
// (possibly modified) event keeps it, returning None or False drops it.
package transform

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"
)

// entryPoint is the function every transform file must export.
const entryPoint = "transform"

// Transform is one loaded .star file.
type Transform struct {
	// Namespace is derived from the filename (drop.star -> drop).
	Namespace string

	// Path is the file the transform was loaded from.
	Path string

	fn starlark.Callable
}

// Pipeline applies transforms in lexicographic file order.
type Pipeline struct {
	transforms []*Transform
	log        *slog.Logger
}

// Load scans dir for .star files and loads them. A missing directory
// yields an empty pipeline.
func Load(dir string, log *slog.Logger) (*Pipeline, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	p := &Pipeline{log: log}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("failed to access transforms directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("transforms path is not a directory: %s", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan transforms directory: %w", err)
	}

	for _, file := range files {
		tr, err := loadFile(file, log)
		if err != nil {
			return nil, err
		}
		p.transforms = append(p.transforms, tr)
		log.Debug("transform loaded", "namespace", tr.Namespace, "file", file)
	}
	return p, nil
}

func loadFile(path string, log *slog.Logger) (*Transform, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the configured transforms directory
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	namespace := strings.TrimSuffix(filepath.Base(path), ".star")

	thread := &starlark.Thread{
		Name: fmt.Sprintf("load:%s", namespace),
		Print: func(_ *starlark.Thread, msg string) {
			log.Debug("transform print", "namespace", namespace, "message", msg)
		},
	}

	globals, err := starlark.ExecFile(thread, path, content, nil) //nolint:staticcheck // SA1019: will migrate to ExecFileOptions later
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}

	val, ok := globals[entryPoint]
	if !ok {
		return nil, &LoadError{File: path, Message: "file does not export a transform(event) function"}
	}
	fn, ok := val.(starlark.Callable)
	if !ok {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("transform must be a function, got %s", val.Type())}
	}

	return &Transform{Namespace: namespace, Path: path, fn: fn}, nil
}

// Len reports how many transforms are loaded.
func (p *Pipeline) Len() int { return len(p.transforms) }

// Namespaces returns the loaded transform names in application order.
func (p *Pipeline) Namespaces() []string {
	names := make([]string, len(p.transforms))
	for i, tr := range p.transforms {
		names[i] = tr.Namespace
	}
	return names
}

// Apply runs event through every transform in order. The second return
// is false when a transform dropped the event.
func (p *Pipeline) Apply(event map[string]any) (map[string]any, bool, error) {
	if len(p.transforms) == 0 {
		return event, true, nil
	}

	current, err := toStarlark(event)
	if err != nil {
		return nil, false, fmt.Errorf("failed to convert event: %w", err)
	}

	for _, tr := range p.transforms {
		thread := &starlark.Thread{
			Name: fmt.Sprintf("apply:%s", tr.Namespace),
			Print: func(_ *starlark.Thread, msg string) {
				p.log.Debug("transform print", "namespace", tr.Namespace, "message", msg)
			},
		}

		result, err := starlark.Call(thread, tr.fn, starlark.Tuple{current}, nil)
		if err != nil {
			return nil, false, fmt.Errorf("transform %s failed: %w", tr.Namespace, err)
		}

		switch v := result.(type) {
		case starlark.NoneType:
			p.log.Debug("event dropped", "namespace", tr.Namespace)
			return nil, false, nil
		case starlark.Bool:
			if !bool(v) {
				p.log.Debug("event dropped", "namespace", tr.Namespace)
				return nil, false, nil
			}
			// True keeps the event as it stands.
		case *starlark.Dict:
			current = v
		default:
			return nil, false, fmt.Errorf("transform %s returned %s, want dict, None or bool", tr.Namespace, result.Type())
		}
	}

	out, err := fromStarlark(current)
	if err != nil {
		return nil, false, fmt.Errorf("failed to convert transformed event: %w", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("transformed event is not an object")
	}
	return m, true, nil
}

// LoadError reports a transform file that could not be loaded.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("transforms/%s: %s", filepath.Base(e.File), e.Message)
}
