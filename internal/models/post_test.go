package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func duePost() Post {
	return Post{ID: "p1", ScheduledDate: "2025-03-07", ScheduledTime: "09:30", Status: StatusScheduled}
}

func TestDueAt_Boundaries(t *testing.T) {
	loc := time.UTC
	at := time.Date(2025, 3, 7, 9, 30, 0, 0, loc)
	p := duePost()

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before", at.Add(-time.Second), false},
		{"exactly at", at, true},
		{"just under window", at.Add(CoordinatorDueWindow - time.Nanosecond), true},
		{"exactly window", at.Add(CoordinatorDueWindow), false},
		{"past window", at.Add(CoordinatorDueWindow + time.Minute), false},
	}
	for _, tc := range cases {
		if got := p.DueAt(tc.now, CoordinatorDueWindow, loc); got != tc.want {
			t.Errorf("%s: DueAt = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDueAt_OnlyScheduled(t *testing.T) {
	at := time.Date(2025, 3, 7, 9, 30, 0, 0, time.UTC)
	for _, s := range []Status{StatusScheduledLinkedIn, StatusPublished, StatusFailed} {
		p := duePost()
		p.Status = s
		if p.DueAt(at, CoordinatorDueWindow, time.UTC) {
			t.Errorf("status %s should never be due", s)
		}
	}

	bad := duePost()
	bad.ScheduledTime = "9h30"
	if bad.DueAt(at, CoordinatorDueWindow, time.UTC) {
		t.Error("unparseable schedule should not be due")
	}
}

func TestDueWindows(t *testing.T) {
	if CoordinatorDueWindow != 5*time.Minute {
		t.Errorf("CoordinatorDueWindow = %s, want 5m", CoordinatorDueWindow)
	}
	if TickDueWindow != 2*time.Minute {
		t.Errorf("TickDueWindow = %s, want 2m", TickDueWindow)
	}

	at := time.Date(2025, 3, 7, 9, 30, 0, 0, time.UTC)
	now := at.Add(3 * time.Minute)
	posts := []Post{duePost()}
	if got := DuePosts(posts, now, TickDueWindow, time.UTC); len(got) != 0 {
		t.Errorf("tick window: got %d due posts, want 0", len(got))
	}
	if got := DuePosts(posts, now, CoordinatorDueWindow, time.UTC); len(got) != 1 {
		t.Errorf("coordinator window: got %d due posts, want 1", len(got))
	}
}

func TestCanTransition(t *testing.T) {
	all := []Status{StatusScheduled, StatusScheduledLinkedIn, StatusPublished, StatusFailed}
	for _, to := range all {
		if to != StatusPublished && CanTransition(StatusPublished, to) {
			t.Errorf("published -> %s should be refused", to)
		}
		if !CanTransition(StatusScheduled, to) {
			t.Errorf("scheduled -> %s should be allowed", to)
		}
	}
	if CanTransition(StatusScheduledLinkedIn, StatusScheduled) {
		t.Error("scheduled_linkedin -> scheduled should be refused")
	}
	if !CanTransition(StatusFailed, StatusScheduled) {
		t.Error("failed -> scheduled should be allowed")
	}
	if !CanTransition(StatusPublished, StatusPublished) {
		t.Error("same-status update should be allowed")
	}
}

func TestLinkedInDate(t *testing.T) {
	got, err := LinkedInDate("2025-03-07", "02/01/2006")
	if err != nil {
		t.Fatalf("LinkedInDate: %v", err)
	}
	if got != "07/03/2025" {
		t.Errorf("LinkedInDate = %q, want 07/03/2025", got)
	}
	if _, err := LinkedInDate("07/03/2025", "02/01/2006"); err == nil {
		t.Error("expected error for wrong input layout")
	}
}

func TestPost_PreservesUnknownFields(t *testing.T) {
	in := `{"id":"p1","title":"T","content":"line1\nline2","scheduled_date":"2025-03-07","scheduled_time":"09:30","status":"scheduled","source":{"feed":"arxiv"},"score":0.8}`

	var p Post
	if err := json.Unmarshal([]byte(in), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(p.Extra) != 2 {
		t.Fatalf("Extra = %v, want 2 entries", p.Extra)
	}

	p.Status = StatusPublished
	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, `"source":{"feed":"arxiv"}`) || !strings.Contains(s, `"score":0.8`) {
		t.Errorf("extra fields lost: %s", s)
	}
	if !strings.Contains(s, `"status":"published"`) {
		t.Errorf("status not written: %s", s)
	}
	if strings.Contains(s, `"error"`) {
		t.Errorf("empty error should be omitted: %s", s)
	}
}

func TestCountByStatus(t *testing.T) {
	posts := []Post{{Status: StatusScheduled}, {Status: StatusScheduled}, {Status: StatusFailed}}
	counts := CountByStatus(posts)
	if counts[StatusScheduled] != 2 || counts[StatusFailed] != 1 || counts[StatusPublished] != 0 {
		t.Errorf("CountByStatus = %v", counts)
	}
}
