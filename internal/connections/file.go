package connections

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

// DefaultFileName is the connections file looked for next to
// leapflow.yaml.
const DefaultFileName = "connections.yaml"

// FileSource reads connections from a YAML file. Both shapes are
// accepted: a map keyed by connection id, or a list of entries with an
// id field. Reload swaps the snapshot atomically, so the source can sit
// behind a watcher.
type FileSource struct {
	path string
	log  *slog.Logger

	mu    sync.RWMutex
	conns map[string]*provider.Connection
}

// NewFileSource builds a source over path and loads it. A missing file
// is not an error; it resolves nothing until the file appears.
func NewFileSource(path string, log *slog.Logger) (*FileSource, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &FileSource{path: path, log: log, conns: map[string]*provider.Connection{}}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSource) Name() string { return "file" }

// Path returns the file the source reads.
func (s *FileSource) Path() string { return s.path }

// Reload re-reads the file and swaps the snapshot.
func (s *FileSource) Reload() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.swap(map[string]*provider.Connection{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read connections file: %w", err)
	}

	conns, err := parseFile(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	s.swap(conns)
	s.log.Debug("connections file loaded", "file", s.path, "count", len(conns))
	return nil
}

func (s *FileSource) swap(conns map[string]*provider.Connection) {
	s.mu.Lock()
	s.conns = conns
	s.mu.Unlock()
}

func (s *FileSource) Resolve(_ context.Context, id string) (*provider.Connection, error) {
	s.mu.RLock()
	conn, ok := s.conns[id]
	s.mu.RUnlock()
	if !ok {
		return nil, &provider.NotFoundError{ID: id}
	}
	return conn, nil
}

// IDs returns the ids currently defined in the file (unsorted).
func (s *FileSource) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	return ids
}

// fileConn is one entry in the connections file.
type fileConn struct {
	ID          string `yaml:"id"`
	URI         string `yaml:"uri"`
	ConnType    string `yaml:"conn_type"`
	Description string `yaml:"description"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Schema      string `yaml:"schema"`
	Login       string `yaml:"login"`
	Password    string `yaml:"password"`
	Extra       any    `yaml:"extra"`
}

func parseFile(data []byte) (map[string]*provider.Connection, error) {
	byID := map[string]fileConn{}

	var asMap map[string]fileConn
	if err := yaml.Unmarshal(data, &asMap); err == nil {
		for id, fc := range asMap {
			byID[id] = fc
		}
	} else {
		var asList []fileConn
		if listErr := yaml.Unmarshal(data, &asList); listErr != nil {
			return nil, err
		}
		for _, fc := range asList {
			if fc.ID == "" {
				return nil, fmt.Errorf("list entries need an id field")
			}
			byID[fc.ID] = fc
		}
	}

	conns := make(map[string]*provider.Connection, len(byID))
	for id, fc := range byID {
		conn, err := fc.toConnection(id)
		if err != nil {
			return nil, err
		}
		conns[id] = conn
	}
	return conns, nil
}

func (fc fileConn) toConnection(id string) (*provider.Connection, error) {
	if fc.URI != "" {
		return provider.ParseURI(id, expandEnvVars(fc.URI))
	}

	conn := &provider.Connection{
		ID:          id,
		Type:        fc.ConnType,
		Description: fc.Description,
		Host:        expandEnvVars(fc.Host),
		Port:        fc.Port,
		Schema:      fc.Schema,
		Login:       expandEnvVars(fc.Login),
		Password:    expandEnvVars(fc.Password),
	}
	if conn.Type == "" {
		return nil, fmt.Errorf("connection %q needs a conn_type (or a uri)", id)
	}

	switch extra := fc.Extra.(type) {
	case nil:
	case string:
		conn.Extra = expandEnvVars(extra)
	default:
		raw, err := json.Marshal(extra)
		if err != nil {
			return nil, fmt.Errorf("connection %q has unmarshalable extra: %w", id, err)
		}
		conn.Extra = expandEnvVars(string(raw))
	}
	return conn, nil
}

// expandEnvVars expands ${VAR} patterns with environment variable
// values. Unset variables are left as-is so failures are visible.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}
