package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Status is the lifecycle state of a scheduled post.
type Status string

const (
	StatusScheduled         Status = "scheduled"
	StatusScheduledLinkedIn Status = "scheduled_linkedin"
	StatusPublished         Status = "published"
	StatusFailed            Status = "failed"
)

const (
	// CoordinatorDueWindow is how late the coordinator and the pending endpoint
	// still consider a post due.
	CoordinatorDueWindow = 5 * time.Minute
	// TickDueWindow is the window the server's minute tick logs with.
	TickDueWindow = 2 * time.Minute
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusScheduledLinkedIn, StatusPublished, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a post in status from may be moved to to.
// Published is terminal. Failed posts only move through manual intervention.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusScheduled:
		return to == StatusScheduledLinkedIn || to == StatusPublished || to == StatusFailed
	case StatusScheduledLinkedIn:
		return to == StatusPublished || to == StatusFailed
	case StatusFailed:
		return to == StatusScheduled || to == StatusScheduledLinkedIn || to == StatusPublished
	}
	return false
}

// Post is one record of the scheduled posts document. Fields the producer
// writes that this package does not know about are kept in Extra and written
// back unchanged.
type Post struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	ImageURL      string `json:"image_url,omitempty"`
	ScheduledDate string `json:"scheduled_date"`
	ScheduledTime string `json:"scheduled_time"`
	Status        Status `json:"status"`
	Error         string `json:"error,omitempty"`
	PublishedAt   string `json:"published_at,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownPostFields = map[string]struct{}{
	"id": {}, "title": {}, "content": {}, "image_url": {}, "scheduled_date": {},
	"scheduled_time": {}, "status": {}, "error": {}, "published_at": {},
}

// postFields avoids recursing into Post's own (Un)MarshalJSON.
type postFields struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	ImageURL      *string `json:"image_url"`
	ScheduledDate string  `json:"scheduled_date"`
	ScheduledTime string  `json:"scheduled_time"`
	Status        Status  `json:"status"`
	Error         *string `json:"error"`
	PublishedAt   *string `json:"published_at"`
}

func (p *Post) UnmarshalJSON(data []byte) error {
	var fields postFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Post{
		ID:            fields.ID,
		Title:         fields.Title,
		Content:       fields.Content,
		ImageURL:      deref(fields.ImageURL),
		ScheduledDate: fields.ScheduledDate,
		ScheduledTime: fields.ScheduledTime,
		Status:        fields.Status,
		Error:         deref(fields.Error),
		PublishedAt:   deref(fields.PublishedAt),
	}

	for key, value := range raw {
		if _, known := knownPostFields[key]; known {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[key] = value
	}

	return nil
}

func (p Post) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	write := func(key string, value any) error {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		name, _ := json.Marshal(key)
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(encoded)
		return nil
	}

	ordered := []struct {
		key       string
		value     any
		omitEmpty bool
	}{
		{"id", p.ID, false},
		{"title", p.Title, false},
		{"content", p.Content, false},
		{"image_url", p.ImageURL, true},
		{"scheduled_date", p.ScheduledDate, false},
		{"scheduled_time", p.ScheduledTime, false},
		{"status", p.Status, false},
		{"error", p.Error, true},
		{"published_at", p.PublishedAt, true},
	}
	for _, f := range ordered {
		if f.omitEmpty && f.value == "" {
			continue
		}
		if err := write(f.key, f.value); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(p.Extra))
	for key := range p.Extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := write(key, p.Extra[key]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ScheduledAt is the moment the post targets, read in loc.
func (p Post) ScheduledAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout+"T"+TimeLayout, p.ScheduledDate+"T"+p.ScheduledTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("post %s: invalid schedule %q %q: %w", p.ID, p.ScheduledDate, p.ScheduledTime, err)
	}
	return t, nil
}

// DueAt reports whether the post is still scheduled and its moment falls in [now-window, now].
func (p Post) DueAt(now time.Time, window time.Duration, loc *time.Location) bool {
	if p.Status != StatusScheduled {
		return false
	}
	at, err := p.ScheduledAt(loc)
	if err != nil {
		return false
	}
	diff := now.Sub(at)
	return diff >= 0 && diff < window
}

// DuePosts keeps the posts due at now, in their original order.
func DuePosts(posts []Post, now time.Time, window time.Duration, loc *time.Location) []Post {
	due := make([]Post, 0)
	for _, p := range posts {
		if p.DueAt(now, window, loc) {
			due = append(due, p)
		}
	}
	return due
}

// CountByStatus tallies posts per status.
func CountByStatus(posts []Post) map[Status]int {
	counts := map[Status]int{
		StatusScheduled:         0,
		StatusScheduledLinkedIn: 0,
		StatusPublished:         0,
		StatusFailed:            0,
	}
	for _, p := range posts {
		counts[p.Status]++
	}
	return counts
}

// LinkedInDate rewrites a YYYY-MM-DD date into the layout LinkedIn's date picker expects.
func LinkedInDate(date, layout string) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("invalid scheduled date %q: %w", date, err)
	}
	return t.Format(layout), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
