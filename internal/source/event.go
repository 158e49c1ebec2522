// Package source loads records for the query engine from local files.
package source

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aevon-lab/regraph/internal/core/query"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Event is a timestamped domain event. System attributes sit on the envelope,
// the payload is free-form Data.
type Event struct {
	ID          string            `json:"id" yaml:"id"`
	PrincipalID string            `json:"principal_id,omitempty" yaml:"principal_id"`
	Type        string            `json:"type" yaml:"type"`
	OccurredAt  time.Time         `json:"occurred_at" yaml:"-"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata"`
	Data        map[string]any    `json:"data" yaml:"data"`
}

var eventFields = query.FieldTable[*Event]{
	"id":           func(e *Event) any { return e.ID },
	"principal_id": func(e *Event) any { return e.PrincipalID },
	"type":         func(e *Event) any { return e.Type },
	"occurred_at":  func(e *Event) any { return e.OccurredAt.UnixMilli() },
	"metadata":     func(e *Event) any { return e.Metadata },
	"data":         func(e *Event) any { return e.Data },
}

// Field resolves envelope attributes first, then top-level data keys, so
// "data.amount" and "amount" address the same value. occurred_at resolves to
// Unix milliseconds.
func (e *Event) Field(name string) (any, bool) {
	if v, ok := eventFields.Lookup(e, name); ok {
		return v, true
	}
	if v, ok := e.Data[name]; ok {
		return v, true
	}
	for key, v := range e.Data {
		if strings.EqualFold(key, name) {
			return v, true
		}
	}
	return nil, false
}

// Timestamp returns OccurredAt.
func (e *Event) Timestamp() time.Time { return e.OccurredAt }

// Validate ensures the event has all required system attributes.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}

// rawEvent is the on-disk shape. occurred_at may also be written as "time".
type rawEvent struct {
	Event      `yaml:",inline"`
	OccurredAt string `yaml:"occurred_at"`
	Time       string `yaml:"time"`
}

// eventFile is the mapping form of an event file. A file may also be a bare
// list of events.
type eventFile struct {
	Schema Schema     `yaml:"schema"`
	Events []rawEvent `yaml:"events"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q (want RFC 3339)", s)
}

// LoadEvents reads events from a YAML or JSON file, checks them against the
// file's schema, assigns a UUID to events without an id and returns them
// ordered by OccurredAt.
func LoadEvents(path string) ([]*Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading event file: %w", err)
	}
	return ParseEvents(data)
}

// ParseEvents is LoadEvents for in-memory content.
func ParseEvents(data []byte) ([]*Event, error) {
	var doc yaml.Node
	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("parsing event file: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	var file eventFile
	switch root := doc.Content[0]; root.Kind {
	case yaml.SequenceNode:
		err = root.Decode(&file.Events)
	case yaml.MappingNode:
		err = root.Decode(&file)
	default:
		err = fmt.Errorf("expected a list of events or a mapping with 'events'")
	}
	if err != nil {
		return nil, fmt.Errorf("parsing event file: %w", err)
	}

	events := make([]*Event, 0, len(file.Events))
	for i := range file.Events {
		raw := &file.Events[i]
		evt := raw.Event

		ts := raw.OccurredAt
		if ts == "" {
			ts = raw.Time
		}
		if ts != "" {
			if evt.OccurredAt, err = parseTimestamp(ts); err != nil {
				return nil, fmt.Errorf("event %d: %w", i, err)
			}
		}
		if evt.ID == "" {
			evt.ID = uuid.NewString()
		}
		if err := evt.Validate(); err != nil {
			return nil, fmt.Errorf("event %d (%s): %w", i, evt.ID, err)
		}
		if err := file.Schema.Check(evt.Data); err != nil {
			return nil, fmt.Errorf("event %d (%s): %w", i, evt.ID, err)
		}
		events = append(events, &evt)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events, nil
}
