package domain

import (
	"fmt"
	"strings"
)

// Classification is how the dashboard draws an event kind.
type Classification struct {
	Icon       string `json:"icon"`
	ColorToken string `json:"color_token"`
}

var (
	ClassificationCreated = Classification{Icon: "plus-circle", ColorToken: "success"}
	ClassificationUpdated = Classification{Icon: "pencil", ColorToken: "warning"}
	ClassificationDeleted = Classification{Icon: "trash", ColorToken: "danger"}
	// ClassificationUnknown is deliberately unlike the three known kinds so that
	// a kind the dashboard does not know yet stays visible.
	ClassificationUnknown = Classification{Icon: "help-circle", ColorToken: "unknown"}
)

// Classify maps an event kind to its display classification.
func Classify(kind EventKind) Classification {
	switch kind {
	case EventCreated:
		return ClassificationCreated
	case EventUpdated:
		return ClassificationUpdated
	case EventDeleted:
		return ClassificationDeleted
	default:
		return ClassificationUnknown
	}
}

// KindCounts feeds the dashboard tiles. Total always equals
// Created + Updated + Deleted + Other.
type KindCounts struct {
	Total   int `json:"total"`
	Created int `json:"created_count"`
	Updated int `json:"updated_count"`
	Deleted int `json:"deleted_count"`
	Other   int `json:"other_count"`
}

// Add counts one event.
func (c *KindCounts) Add(kind EventKind) {
	c.Total++
	switch kind {
	case EventCreated:
		c.Created++
	case EventUpdated:
		c.Updated++
	case EventDeleted:
		c.Deleted++
	default:
		c.Other++
	}
}

// CountByKind counts events per kind. Unknown kinds land in Other, never dropped.
func CountByKind(events []ChangeEvent) KindCounts {
	var counts KindCounts
	for _, e := range events {
		counts.Add(e.Kind)
	}
	return counts
}

// CountPage counts the events of a page and the records that failed
// normalization. A rejected record has no trustworthy kind, so it is counted in
// Other; Total then matches the number of records the backend returned.
func CountPage(page *EventPage) KindCounts {
	if page == nil {
		return KindCounts{}
	}
	counts := CountByKind(page.Events)
	for range page.Rejected {
		counts.Add("")
	}
	return counts
}

// Summarizer writes one-line descriptions of events. Changed fields always come
// from the Differ so list rows and the detail view agree.
type Summarizer struct {
	differ *Differ
}

// NewSummarizer creates a Summarizer backed by differ
func NewSummarizer(differ *Differ) *Summarizer {
	return &Summarizer{differ: differ}
}

// Describe returns the row summary of e. It fails only when an updated event
// cannot be diffed.
func (s *Summarizer) Describe(e ChangeEvent) (string, error) {
	table := e.TargetTable
	if table == "" {
		table = "unknown"
	}

	switch e.Kind {
	case EventCreated:
		return fmt.Sprintf("Created new %s record", table), nil
	case EventDeleted:
		return fmt.Sprintf("Deleted %s record #%s", table, e.TargetID), nil
	case EventUpdated:
		changes, err := s.differ.Diff(e)
		if err != nil {
			return "", err
		}
		if len(changes) == 0 {
			return "Modified 0 fields", nil
		}
		names := make([]string, len(changes))
		for i, c := range changes {
			names[i] = c.Field
		}
		return fmt.Sprintf("Modified %d fields: %s", len(changes), strings.Join(names, ", ")), nil
	default:
		return fmt.Sprintf("Unrecognized action %q on %s record #%s", string(e.Kind), table, e.TargetID), nil
	}
}
