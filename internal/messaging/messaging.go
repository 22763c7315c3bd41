// Package messaging is the request/response bus between the coordinator and
// the page automation agents. A call site either awaits exactly one reply
// (Call) or fires a notification nobody answers (Notify).
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
)

type Action string

const (
	ActionSchedule           Action = "schedule"
	ActionPublish            Action = "publish"
	ActionCheckReady         Action = "checkReady"
	ActionGetStatus          Action = "getStatus"
	ActionContentScriptReady Action = "contentScriptReady"
	ActionPublishResult      Action = "publishResult"
	ActionScheduleResult     Action = "scheduleResult"
	ActionGetScheduledPosts  Action = "getScheduledPosts"
	ActionGetPostData        Action = "getPostData"
	ActionUpdatePostStatus   Action = "updatePostStatus"
	ActionForceCheck         Action = "forceCheck"
	ActionManualPublish      Action = "manualPublish"
	ActionScheduleToLinkedIn Action = "scheduleToLinkedIn"
)

var (
	ErrNoReceiver = errors.New("no receiver for action")
	ErrNoResponse = errors.New("receiver sent no response")
)

type Message struct {
	Action Action              `json:"action"`
	Post   *models.PostPayload `json:"post,omitempty"`
	PostID string              `json:"postId,omitempty"`
	Status models.Status       `json:"status,omitempty"`
	Error  string              `json:"error,omitempty"`
	Result *Result             `json:"result,omitempty"`
	URL    string              `json:"url,omitempty"`
}

// Result is the outcome of one publish or schedule flow.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	PostID  string `json:"postId,omitempty"`
}

type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	PostID  string `json:"postId,omitempty"`

	Ready        bool   `json:"ready,omitempty"`
	IsOnLinkedIn bool   `json:"isOnLinkedIn,omitempty"`
	IsPublishing bool   `json:"isPublishing,omitempty"`
	CurrentPost  string `json:"currentPost,omitempty"`

	Post  *models.PostPayload `json:"post,omitempty"`
	Posts []models.Post       `json:"posts,omitempty"`

	Connected      bool   `json:"isConnected,omitempty"`
	ScheduledCount int    `json:"scheduledCount,omitempty"`
	TabID          string `json:"linkedInTabId,omitempty"`
	LastCheck      string `json:"lastCheck,omitempty"`
}

// ResultResponse converts a flow result into a reply.
func ResultResponse(r Result) *Response {
	return &Response{Success: r.Success, Error: r.Error, PostID: r.PostID}
}

// Handler answers one message. Returning a nil response and a nil error
// means the handler chose not to reply.
type Handler func(ctx context.Context, msg Message) (*Response, error)

// Sender is what one side of the bus uses to reach the other.
type Sender interface {
	Call(ctx context.Context, msg Message) (Response, error)
	Notify(ctx context.Context, msg Message)
}

// Tab is one browser tab whose page agent answers calls. Calls fail with
// ErrNoReceiver while the page is not ready to listen.
type Tab interface {
	ID() string
	Call(ctx context.Context, msg Message) (Response, error)
}

// Endpoint routes messages to the handler registered for their action.
// Every message is handled on its own goroutine.
type Endpoint struct {
	name   string
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[Action]Handler

	inflight sync.WaitGroup
}

func NewEndpoint(name string, logger *zap.Logger) *Endpoint {
	return &Endpoint{
		name:     name,
		logger:   logger.With(zap.String("endpoint", name)),
		handlers: make(map[Action]Handler),
	}
}

func (e *Endpoint) Handle(action Action, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[action] = h
}

func (e *Endpoint) handler(action Action) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[action]
	return h, ok
}

type reply struct {
	resp *Response
	err  error
}

// Call delivers msg and waits for its single reply or for ctx to end.
func (e *Endpoint) Call(ctx context.Context, msg Message) (Response, error) {
	h, ok := e.handler(msg.Action)
	if !ok {
		return Response{}, fmt.Errorf("%s %s: %w", e.name, msg.Action, ErrNoReceiver)
	}

	done := make(chan reply, 1)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		resp, err := e.invoke(ctx, h, msg)
		done <- reply{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return Response{}, r.err
		}
		if r.resp == nil {
			return Response{}, fmt.Errorf("%s %s: %w", e.name, msg.Action, ErrNoResponse)
		}
		return *r.resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Notify delivers msg without waiting. Unknown actions are dropped.
func (e *Endpoint) Notify(ctx context.Context, msg Message) {
	h, ok := e.handler(msg.Action)
	if !ok {
		e.logger.Debug("Dropping notification without receiver", zap.String("action", string(msg.Action)))
		return
	}

	ctx = context.WithoutCancel(ctx)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		if _, err := e.invoke(ctx, h, msg); err != nil {
			e.logger.Warn("Notification handler failed", zap.String("action", string(msg.Action)), zap.Error(err))
		}
	}()
}

// Wait blocks until every message in flight has been handled.
func (e *Endpoint) Wait() {
	e.inflight.Wait()
}

func (e *Endpoint) invoke(ctx context.Context, h Handler, msg Message) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Message handler panic", zap.String("action", string(msg.Action)), zap.Any("panic", r))
			err = fmt.Errorf("%s %s: handler panic: %v", e.name, msg.Action, r)
		}
	}()
	return h(ctx, msg)
}
