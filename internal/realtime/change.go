// Package realtime implements the row change feed: a topic hub fed by the
// services, a websocket endpoint speaking the phoenix channel envelope and a
// Go client for it.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type ChangeType string

const (
	Insert ChangeType = "INSERT"
	Update ChangeType = "UPDATE"
	Delete ChangeType = "DELETE"
)

// Change is one committed row change. Record is empty for deletes and
// OldRecord is empty for inserts.
type Change struct {
	Type            ChangeType     `json:"type"`
	Table           string         `json:"table"`
	Record          map[string]any `json:"record"`
	OldRecord       map[string]any `json:"old_record"`
	CommitTimestamp time.Time      `json:"commit_timestamp"`
}

// topicColumns are the columns a change is routed by.
var topicColumns = []string{"user_id", "conversation_id"}

const topicPrefix = "realtime:public:"

// Topic builds the topic for rows of table whose column equals value.
func Topic(table, column, value string) string {
	return topicPrefix + table + ":" + column + "=eq." + value
}

// ParseTopic splits a topic built by Topic.
func ParseTopic(topic string) (table, column, value string, err error) {
	rest, ok := strings.CutPrefix(topic, topicPrefix)
	if !ok {
		return "", "", "", fmt.Errorf("unknown topic %q", topic)
	}
	table, filter, ok := strings.Cut(rest, ":")
	if !ok || table == "" {
		return "", "", "", fmt.Errorf("topic %q has no filter", topic)
	}
	column, value, ok = strings.Cut(filter, "=eq.")
	if !ok || column == "" || value == "" {
		return "", "", "", fmt.Errorf("topic %q has a malformed filter", topic)
	}
	return table, column, value, nil
}

// Topics lists every topic the change is delivered on.
func (c Change) Topics() []string {
	seen := map[string]bool{}
	var out []string
	for _, rec := range []map[string]any{c.Record, c.OldRecord} {
		for _, col := range topicColumns {
			v, ok := rec[col].(string)
			if !ok || v == "" {
				continue
			}
			t := Topic(c.Table, col, v)
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// RecordID returns the id of the changed row.
func (c Change) RecordID() string {
	if id, ok := c.Record["id"].(string); ok {
		return id
	}
	id, _ := c.OldRecord["id"].(string)
	return id
}

// Publisher receives committed changes.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Publishers fans a change out to several publishers. Every publisher is
// called even when an earlier one fails.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, c Change) error {
	var errs []error
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every change.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Change) error { return nil }
