package posthog

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlag is a flag definition as served by the flags API.
type FeatureFlag struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Key               string `json:"key"`
	Active            bool   `json:"active"`
	IsSimpleFlag      bool   `json:"is_simple_flag"`
	RolloutPercentage *int   `json:"rollout_percentage"`
}

// longScale is the denominator of the server's consistent hash.
const longScale = float64(0xFFFFFFFFFFFFFFF)

// flagHash maps a flag/user pair onto [0, 1] exactly the way the server
// does, so local rollout decisions agree with hosted evaluation.
func flagHash(key, distinctID string) float64 {
	sum := sha1.Sum([]byte(key + "." + distinctID))
	digest := hex.EncodeToString(sum[:])
	val, _ := strconv.ParseUint(digest[:15], 16, 64)
	return float64(val) / longScale
}

// flagPoller keeps a cached copy of the project's flag definitions.
type flagPoller struct {
	apiKey      string
	personalKey string
	endpoint    string
	interval    time.Duration
	http        *http.Client
	log         *slog.Logger

	mu     sync.RWMutex
	flags  []FeatureFlag
	loaded bool

	quit chan struct{}
	done chan struct{}
}

func newFlagPoller(apiKey, personalKey, endpoint string, interval time.Duration, hc *http.Client, log *slog.Logger) *flagPoller {
	return &flagPoller{
		apiKey:      apiKey,
		personalKey: personalKey,
		endpoint:    endpoint,
		interval:    interval,
		http:        hc,
		log:         log,
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (p *flagPoller) run() {
	defer close(p.done)

	if err := p.load(context.Background()); err != nil {
		p.log.Error("failed to load feature flags", "error", err)
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.load(context.Background()); err != nil {
				p.log.Error("failed to refresh feature flags", "error", err)
			}
		case <-p.quit:
			return
		}
	}
}

func (p *flagPoller) stop() {
	close(p.quit)
	<-p.done
}

func (p *flagPoller) load(ctx context.Context) error {
	u := fmt.Sprintf("%s/api/feature_flag/?token=%s", p.endpoint, url.QueryEscape(p.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.personalKey)
	req.Header.Set("User-Agent", libName+"/"+Version)

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(detail))}
	}

	var out struct {
		Results []FeatureFlag `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode feature flags: %w", err)
	}

	p.mu.Lock()
	p.flags = out.Results
	p.loaded = true
	p.mu.Unlock()
	p.log.Debug("feature flags loaded", "count", len(out.Results))
	return nil
}

func (p *flagPoller) ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

func (p *flagPoller) current() []FeatureFlag {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.flags)
}

func (p *flagPoller) find(key string) (FeatureFlag, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, f := range p.flags {
		if f.Key == key {
			return f, true
		}
	}
	return FeatureFlag{}, false
}

func (c *client) IsFeatureEnabled(ctx context.Context, key, distinctID string) (bool, error) {
	if key == "" {
		return false, &FieldError{Type: "feature flag", Field: "key", Value: key}
	}
	if distinctID == "" {
		return false, &FieldError{Type: "feature flag", Field: "distinctID", Value: distinctID}
	}

	enabled, err := c.flagEnabled(ctx, key, distinctID)
	if err != nil {
		return false, err
	}

	// Mirror the evaluation back as an event so flag usage shows up in
	// the project.
	_ = c.Enqueue(Capture{
		DistinctID: distinctID,
		Event:      "$feature_flag_called",
		Properties: Properties{
			"$feature_flag":          key,
			"$feature_flag_response": enabled,
		},
	})
	return enabled, nil
}

func (c *client) flagEnabled(ctx context.Context, key, distinctID string) (bool, error) {
	if c.flags != nil && c.flags.ready() {
		flag, ok := c.flags.find(key)
		if !ok {
			return false, nil
		}
		if !flag.Active {
			return false, nil
		}
		if flag.IsSimpleFlag {
			pct := 100
			if flag.RolloutPercentage != nil {
				pct = *flag.RolloutPercentage
			}
			return flagHash(key, distinctID) <= float64(pct)/100, nil
		}
	}
	return c.decideEnabled(ctx, key, distinctID)
}

// decideEnabled asks the server which flags are on for the user. Used
// for multivariate flags and when definitions are not available locally.
func (c *client) decideEnabled(ctx context.Context, key, distinctID string) (bool, error) {
	payload, err := json.Marshal(map[string]string{
		"api_key":     c.apiKey,
		"distinct_id": distinctID,
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal decide request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/decide/", bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", libName+"/"+Version)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("decide request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(detail))}
	}

	var out struct {
		FeatureFlags []string `json:"featureFlags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to decode decide response: %w", err)
	}
	return slices.Contains(out.FeatureFlags, key), nil
}

func (c *client) FeatureFlags(ctx context.Context) ([]FeatureFlag, error) {
	if c.flags == nil {
		return nil, fmt.Errorf("posthog: a personal API key is required to read feature flag definitions")
	}
	if !c.flags.ready() {
		if err := c.flags.load(ctx); err != nil {
			return nil, err
		}
	}
	return c.flags.current(), nil
}
