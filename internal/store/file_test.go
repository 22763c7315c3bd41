package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
)

const fixture = `{
  "posts": [
    {"id": "a", "title": "A", "content": "first", "scheduled_date": "2025-03-07", "scheduled_time": "09:00", "status": "scheduled", "source": "arxiv"},
    {"id": "b", "title": "B", "content": "second", "image_url": "output/b.png", "scheduled_date": "2025-03-07", "scheduled_time": "10:00", "status": "scheduled"},
    {"id": "c", "title": "C", "content": "third", "scheduled_date": "2025-03-08", "scheduled_time": "11:00", "status": "published", "published_at": "2025-03-08T11:00:05Z"}
  ],
  "updated_at": "2025-03-01T00:00:00Z"
}`

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "output", "scheduled_posts.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return NewFileStore(path, zap.NewNop()), path
}

func rawPosts(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	var doc struct {
		Posts []map[string]any `json:"posts"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse store: %v", err)
	}
	return doc.Posts
}

func findPost(t *testing.T, s *FileStore, id string) models.Post {
	t.Helper()
	posts, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, p := range posts {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("post %s not found", id)
	return models.Post{}
}

// postLines returns the record lines of a store file written with one record
// per line.
func postLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "    {") {
			lines = append(lines, strings.TrimSuffix(line, ","))
		}
	}
	return lines
}

func TestList_MissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nope.json"), zap.NewNop())
	posts, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if posts == nil || len(posts) != 0 {
		t.Errorf("List = %v, want empty non-nil", posts)
	}
}

func TestList_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	posts, err := NewFileStore(path, zap.NewNop()).List(context.Background())
	if err != nil || len(posts) != 0 {
		t.Errorf("List = %v, %v; want empty, nil", posts, err)
	}
}

func TestUpdateStatus_UnknownID(t *testing.T) {
	s, path := newTestStore(t)
	before, _ := os.ReadFile(path)

	_, _, err := s.UpdateStatus(context.Background(), "zzz", models.StatusUpdate{Status: models.StatusPublished})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("file changed on unknown id")
	}
}

func TestUpdateStatus_MergeRoundTrip(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	prev, next, err := s.UpdateStatus(ctx, "a", models.StatusUpdate{
		Status:      models.StatusPublished,
		PublishedAt: "2025-03-07T09:01:00Z",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if prev.Status != models.StatusScheduled || next.Status != models.StatusPublished {
		t.Errorf("prev/next = %s/%s", prev.Status, next.Status)
	}

	got := findPost(t, s, "a")
	if got.Status != models.StatusPublished || got.PublishedAt != "2025-03-07T09:01:00Z" {
		t.Errorf("merged post = %+v", got)
	}
	if got.Title != "A" || got.Content != "first" || got.ScheduledTime != "09:00" || got.Error != "" {
		t.Errorf("unspecified fields changed: %+v", got)
	}
	if raw := rawPosts(t, path)[0]; raw["source"] != "arxiv" {
		t.Errorf("extra field lost: %v", raw)
	}
}

func TestUpdateStatus_KeepsErrorWhenEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.UpdateStatus(ctx, "b", models.StatusUpdate{Status: models.StatusFailed, Error: "button disabled"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.UpdateStatus(ctx, "b", models.StatusUpdate{Status: models.StatusScheduled}); err != nil {
		t.Fatal(err)
	}
	got := findPost(t, s, "b")
	if got.Error != "button disabled" || got.Status != models.StatusScheduled {
		t.Errorf("got %+v", got)
	}
}

func TestUpdateStatus_PublishedIsTerminal(t *testing.T) {
	s, path := newTestStore(t)
	before, _ := os.ReadFile(path)

	_, _, err := s.UpdateStatus(context.Background(), "c", models.StatusUpdate{Status: models.StatusScheduled})
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("file changed on refused transition")
	}
}

func TestDelete_PreservesOthers(t *testing.T) {
	s, path := newTestStore(t)
	original := postLines(t, path)

	if err := s.Delete(context.Background(), "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	remaining := postLines(t, path)
	if len(remaining) != 2 || remaining[0] != original[0] || remaining[1] != original[2] {
		t.Errorf("remaining = %q\nwant %q", remaining, []string{original[0], original[2]})
	}

	if err := s.Delete(context.Background(), "b"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

const producerFixture = `{
  "posts": [
    {
      "id": "a",
      "created_at": "2025-03-01T08:00:00Z",
      "title": "R&D <IA>",
      "content": "first",
      "image_url": null,
      "scheduled_date": "2025-03-07",
      "scheduled_time": "09:00",
      "status": "scheduled",
      "error": null
    },
    {
      "id": "b",
      "title": "B",
      "content": "second",
      "scheduled_date": "2025-03-07",
      "scheduled_time": "10:00",
      "status": "scheduled"
    },
    {"id": "c", "title": "C & co", "content": "third", "scheduled_date": "2025-03-08", "scheduled_time": "11:00", "status": "scheduled"}
  ],
  "updated_at": "2025-03-01T00:00:00Z"
}`

func TestRewrite_KeepsRecordBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduled_posts.json")
	if err := os.WriteFile(path, []byte(producerFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(path, zap.NewNop())
	ctx := context.Background()

	start := strings.Index(producerFixture, "    {\n      \"id\": \"a\"")
	end := strings.Index(producerFixture, "    },\n    {\n      \"id\": \"b\"") + len("    }")
	recordA := producerFixture[start:end]
	recordC := `    {"id": "c", "title": "C & co", "content": "third", "scheduled_date": "2025-03-08", "scheduled_time": "11:00", "status": "scheduled"}`

	if err := s.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), recordA+",\n"+recordC+"\n  ],") {
		t.Fatalf("records not preserved:\n%s", data)
	}

	if _, _, err := s.UpdateStatus(ctx, "c", models.StatusUpdate{Status: models.StatusPublished, PublishedAt: "2025-03-08T11:00:04Z"}); err != nil {
		t.Fatalf("UpdateStatus c: %v", err)
	}
	data, _ = os.ReadFile(path)
	wantC := `    {"id": "c", "title": "C & co", "content": "third", "scheduled_date": "2025-03-08", "scheduled_time": "11:00", "status": "published", "published_at": "2025-03-08T11:00:04Z"}`
	if !strings.Contains(string(data), recordA+",\n"+wantC+"\n") {
		t.Errorf("patched compact record:\n%s", data)
	}

	if _, _, err := s.UpdateStatus(ctx, "a", models.StatusUpdate{Status: models.StatusFailed, Error: "<button> missing"}); err != nil {
		t.Fatalf("UpdateStatus a: %v", err)
	}
	data, _ = os.ReadFile(path)
	wantA := strings.Replace(recordA, `"status": "scheduled",
      "error": null`, `"status": "failed",
      "error": "<button> missing"`, 1)
	if !strings.Contains(string(data), wantA) {
		t.Errorf("patched indented record:\n%s", data)
	}
	if got := findPost(t, s, "a"); got.Title != "R&D <IA>" || got.Error != "<button> missing" {
		t.Errorf("decoded a = %+v", got)
	}
}

func TestUpdateStatus_AppendsMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduled_posts.json")
	fixture := `{
  "posts": [
    {
      "id": "a",
      "status": "scheduled"
    }
  ]
}`
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(path, zap.NewNop())

	if _, _, err := s.UpdateStatus(context.Background(), "a", models.StatusUpdate{Status: models.StatusPublished, PublishedAt: "2025-03-07T09:01:00Z"}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	want := `    {
      "id": "a",
      "status": "published",
      "published_at": "2025-03-07T09:01:00Z"
    }`
	if !strings.Contains(string(data), want) {
		t.Errorf("store =\n%s\nwant record\n%s", data, want)
	}
}

func TestCorruptFile_UpdatesReportNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(path, zap.NewNop())

	if _, _, err := s.UpdateStatus(context.Background(), "a", models.StatusUpdate{Status: models.StatusPublished}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("UpdateStatus err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(context.Background(), "a"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Delete err = %v, want ErrNotFound", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "{not json" {
		t.Errorf("corrupt file rewritten: %q", data)
	}
}

func TestWrite_SetsUpdatedAt(t *testing.T) {
	s, path := newTestStore(t)
	if err := s.Delete(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	var doc struct {
		UpdatedAt string `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.UpdatedAt == "" || doc.UpdatedAt == "2025-03-01T00:00:00Z" {
		t.Errorf("updated_at = %q, want refreshed", doc.UpdatedAt)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}
