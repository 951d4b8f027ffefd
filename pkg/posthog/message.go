package posthog

import (
	"fmt"
	"time"
)

// Properties carries the free-form attributes of a message.
type Properties map[string]any

// NewProperties returns an empty property set.
func NewProperties() Properties {
	return Properties{}
}

// Set stores a value and returns the set for chaining.
func (p Properties) Set(name string, value any) Properties {
	p[name] = value
	return p
}

func (p Properties) clone() Properties {
	out := make(Properties, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Message is an analytics event accepted by Client.Enqueue. The concrete
// types are Capture, Identify, Alias, GroupIdentify and Page.
type Message interface {
	// Validate checks required fields and returns a FieldError when one
	// is missing.
	Validate() error

	wire(s stamp) wireMessage
}

// stamp holds the values the client fills in at enqueue time.
type stamp struct {
	timestamp time.Time
	uuid      string
}

// wireMessage is the JSON form a message takes inside a batch payload.
type wireMessage struct {
	Event      string     `json:"event"`
	DistinctID string     `json:"distinct_id"`
	Properties Properties `json:"properties"`
	Set        Properties `json:"$set,omitempty"`
	Timestamp  string     `json:"timestamp"`
	UUID       string     `json:"uuid"`
}

// batchPayload is the body POSTed to the batch endpoint.
type batchPayload struct {
	APIKey string        `json:"api_key"`
	Batch  []wireMessage `json:"batch"`
}

func (s stamp) fill(m *wireMessage, explicit time.Time) {
	ts := explicit
	if ts.IsZero() {
		ts = s.timestamp
	}
	m.Timestamp = ts.UTC().Format(time.RFC3339Nano)
	if m.UUID == "" {
		m.UUID = s.uuid
	}
	if m.Properties == nil {
		m.Properties = Properties{}
	}
	m.Properties["$lib"] = libName
	m.Properties["$lib_version"] = Version
}

// Capture records an event performed by a user.
type Capture struct {
	// DistinctID identifies the user the event belongs to.
	DistinctID string
	// Event is the event name, e.g. "signed up".
	Event      string
	Properties Properties
	// Timestamp defaults to the enqueue time when zero.
	Timestamp time.Time
	// MessageID defaults to a random UUID when empty. Reusing an ID lets
	// the server deduplicate redelivered messages.
	MessageID string
}

func (m Capture) Validate() error {
	if m.Event == "" {
		return &FieldError{Type: "capture", Field: "Event", Value: m.Event}
	}
	if m.DistinctID == "" {
		return &FieldError{Type: "capture", Field: "DistinctID", Value: m.DistinctID}
	}
	return nil
}

func (m Capture) wire(s stamp) wireMessage {
	w := wireMessage{
		Event:      m.Event,
		DistinctID: m.DistinctID,
		Properties: m.Properties.clone(),
		UUID:       m.MessageID,
	}
	s.fill(&w, m.Timestamp)
	return w
}

// Identify sets person properties for a user.
type Identify struct {
	DistinctID string
	// Properties are applied to the person via $set.
	Properties Properties
	Timestamp  time.Time
	MessageID  string
}

func (m Identify) Validate() error {
	if m.DistinctID == "" {
		return &FieldError{Type: "identify", Field: "DistinctID", Value: m.DistinctID}
	}
	return nil
}

func (m Identify) wire(s stamp) wireMessage {
	w := wireMessage{
		Event:      "$identify",
		DistinctID: m.DistinctID,
		Set:        m.Properties.clone(),
		UUID:       m.MessageID,
	}
	s.fill(&w, m.Timestamp)
	return w
}

// Alias links a new distinct ID to a previously known one.
type Alias struct {
	// DistinctID is the previous, already-known ID.
	DistinctID string
	// Alias is the new ID to associate with it.
	Alias     string
	Timestamp time.Time
	MessageID string
}

func (m Alias) Validate() error {
	if m.DistinctID == "" {
		return &FieldError{Type: "alias", Field: "DistinctID", Value: m.DistinctID}
	}
	if m.Alias == "" {
		return &FieldError{Type: "alias", Field: "Alias", Value: m.Alias}
	}
	return nil
}

func (m Alias) wire(s stamp) wireMessage {
	w := wireMessage{
		Event:      "$create_alias",
		DistinctID: m.DistinctID,
		Properties: Properties{
			"distinct_id": m.DistinctID,
			"alias":       m.Alias,
		},
		UUID: m.MessageID,
	}
	s.fill(&w, m.Timestamp)
	return w
}

// GroupIdentify sets properties on a group, e.g. a company or a team.
type GroupIdentify struct {
	// Type is the group type, e.g. "company".
	Type string
	// Key is the group key, e.g. "acme".
	Key string
	// Properties are applied to the group via $group_set.
	Properties Properties
	Timestamp  time.Time
	MessageID  string
}

func (m GroupIdentify) Validate() error {
	if m.Type == "" {
		return &FieldError{Type: "group identify", Field: "Type", Value: m.Type}
	}
	if m.Key == "" {
		return &FieldError{Type: "group identify", Field: "Key", Value: m.Key}
	}
	return nil
}

func (m GroupIdentify) wire(s stamp) wireMessage {
	w := wireMessage{
		Event:      "$groupidentify",
		DistinctID: fmt.Sprintf("$%s_%s", m.Type, m.Key),
		Properties: Properties{
			"$group_type": m.Type,
			"$group_key":  m.Key,
			"$group_set":  m.Properties.clone(),
		},
		UUID: m.MessageID,
	}
	s.fill(&w, m.Timestamp)
	return w
}

// Page records a pageview.
type Page struct {
	DistinctID string
	// URL becomes the $current_url property.
	URL        string
	Properties Properties
	Timestamp  time.Time
	MessageID  string
}

func (m Page) Validate() error {
	if m.DistinctID == "" {
		return &FieldError{Type: "page", Field: "DistinctID", Value: m.DistinctID}
	}
	return nil
}

func (m Page) wire(s stamp) wireMessage {
	props := m.Properties.clone()
	props["$current_url"] = m.URL
	w := wireMessage{
		Event:      "$pageview",
		DistinctID: m.DistinctID,
		Properties: props,
		UUID:       m.MessageID,
	}
	s.fill(&w, m.Timestamp)
	return w
}
