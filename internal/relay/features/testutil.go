// Package features provides shared test utilities for relay feature
// tests.
package features

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow-posthog/internal/relay"
	"github.com/leapstack-labs/leapflow-posthog/internal/spool"
	"github.com/leapstack-labs/leapflow-posthog/internal/testutil"
	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

// TestConnID is the connection the fixture resolver serves.
const TestConnID = "posthog_test"

// TestFixture holds all dependencies needed for relay feature tests. Its
// service points at a fake PostHog endpoint and an in-memory spool.
type TestFixture struct {
	Service      *relay.Service
	Spool        *spool.Store
	SessionStore *sessions.CookieStore

	endpoint *httptest.Server

	mu      sync.Mutex
	fail    bool
	batches int

	blockCh     chan struct{}
	unblockOnce sync.Once
}

// FixtureConfig tweaks the fixture. The zero value accepts every batch.
type FixtureConfig struct {
	// TransformsDir loads a transform pipeline into the service.
	TransformsDir string

	// Block parks every batch request until Unblock is called, keeping
	// the client's delivery loop busy.
	Block bool

	// Extra merges additional keys into the connection extra. The write
	// key, endpoint host and a long flush interval are always present so
	// nothing delivers before an explicit Flush.
	Extra map[string]any
}

// SetupTestFixture creates a complete fixture with endpoint, spool,
// service and session store. Everything is cleaned up with the test.
func SetupTestFixture(t *testing.T, cfg FixtureConfig) *TestFixture {
	t.Helper()

	logger := testutil.NewTestLogger(t)
	f := &TestFixture{}
	if cfg.Block {
		f.blockCh = make(chan struct{})
	}

	f.endpoint = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.batches++
		fail := f.fail
		f.mu.Unlock()
		if f.blockCh != nil {
			<-f.blockCh
		}
		if fail {
			// 4xx so the client gives up without retrying.
			http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"status": 1}`))
	}))
	t.Cleanup(f.endpoint.Close)

	store, err := spool.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	f.Spool = store

	extra := map[string]any{
		"project_api_key": "phc_test",
		"host":            f.endpoint.URL,
		"flush_interval":  "1h",
	}
	for k, v := range cfg.Extra {
		extra[k] = v
	}
	encoded, err := json.Marshal(extra)
	require.NoError(t, err)

	svc, err := relay.NewService(relay.ServiceConfig{
		ConnID: TestConnID,
		Resolver: StaticResolver{Conn: &provider.Connection{
			ID:    TestConnID,
			Type:  "posthog",
			Extra: string(encoded),
		}},
		TransformsDir: cfg.TransformsDir,
		Spool:         store,
		Logger:        logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	f.Service = svc

	if cfg.Block {
		// Registered last so a blocked delivery cannot hang svc.Close.
		t.Cleanup(f.Unblock)
	}

	f.SessionStore = sessions.NewCookieStore([]byte("test-session-secret"))
	return f
}

// Unblock releases every parked batch request. Safe to call twice.
func (f *TestFixture) Unblock() {
	if f.blockCh == nil {
		return
	}
	f.unblockOnce.Do(func() { close(f.blockCh) })
}

// SetFail makes the fake endpoint reject every batch.
func (f *TestFixture) SetFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

// Batches reports how many batch requests the fake endpoint served.
func (f *TestFixture) Batches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}

// StaticResolver resolves exactly one connection.
type StaticResolver struct {
	Conn *provider.Connection
}

// Resolve implements provider.ConnectionResolver.
func (r StaticResolver) Resolve(_ context.Context, id string) (*provider.Connection, error) {
	if r.Conn == nil || id != r.Conn.ID {
		return nil, &provider.NotFoundError{ID: id}
	}
	return r.Conn, nil
}
