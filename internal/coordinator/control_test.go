package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/config"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/messaging"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestControlServer(t *testing.T) {
	api := &fakeAPI{posts: samplePosts()}
	tab := &fakeTab{id: "tab-1"}
	c := newTestCoordinator(t, api, &fakeTabs{tab: tab})
	ctrl := NewControlServer(config.ControlConfig{}, c.bus, zap.NewNop())

	do := func(method, path string) (*httptest.ResponseRecorder, map[string]any) {
		req := httptest.NewRequest(method, path, nil)
		w := httptest.NewRecorder()
		ctrl.Router.ServeHTTP(w, req)
		var body map[string]any
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		return w, body
	}

	w, body := do(http.MethodGet, "/api/status")
	if w.Code != http.StatusOK || body["isConnected"] != false || body["linkedInTabId"] != nil {
		t.Errorf("status before check = %d %v", w.Code, body)
	}

	w, body = do(http.MethodPost, "/api/check")
	if w.Code != http.StatusOK || body["success"] != true {
		t.Errorf("check = %d %v", w.Code, body)
	}

	w, body = do(http.MethodGet, "/api/posts")
	posts, _ := body["posts"].([]any)
	if w.Code != http.StatusOK || len(posts) != len(api.posts) || body["isConnected"] != true {
		t.Errorf("posts = %d %v", w.Code, body)
	}

	w, body = do(http.MethodPost, "/api/posts/later/schedule")
	if w.Code != http.StatusOK || body["success"] != true || body["postId"] != "later" {
		t.Errorf("schedule = %d %v", w.Code, body)
	}
	updates := api.statusUpdates()
	if last := updates[len(updates)-1]; last.id != "later" || last.update.Status != models.StatusScheduledLinkedIn {
		t.Errorf("last update = %+v", last)
	}

	w, body = do(http.MethodPost, "/api/posts/ghost/publish")
	if w.Code != http.StatusUnprocessableEntity || body["error"] == nil {
		t.Errorf("publish unknown = %d %v", w.Code, body)
	}

	w, body = do(http.MethodGet, "/api/status")
	if body["linkedInTabId"] != "tab-1" || body["scheduledCount"] != float64(4) {
		t.Errorf("status after flows = %v", body)
	}
}

func TestControlServerFailureWithoutMessage(t *testing.T) {
	api := &fakeAPI{posts: samplePosts()}
	tab := &fakeTab{id: "tab-1", reply: func(messaging.Message) (messaging.Response, error) {
		return messaging.Response{Success: false}, nil
	}}
	c := newTestCoordinator(t, api, &fakeTabs{tab: tab})
	ctrl := NewControlServer(config.ControlConfig{}, c.bus, zap.NewNop())

	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/posts/later/publish", nil)
	w := httptest.NewRecorder()
	ctrl.Router.ServeHTTP(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("code = %d, want 422 for a failure with no message", w.Code)
	}
}
