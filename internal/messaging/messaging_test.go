package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCallReplies(t *testing.T) {
	e := NewEndpoint("page", zap.NewNop())
	e.Handle(ActionCheckReady, func(ctx context.Context, msg Message) (*Response, error) {
		return &Response{Ready: true}, nil
	})

	resp, err := e.Call(context.Background(), Message{Action: ActionCheckReady})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !resp.Ready {
		t.Error("expected ready")
	}
}

func TestCallErrors(t *testing.T) {
	e := NewEndpoint("page", zap.NewNop())
	e.Handle(ActionPublishResult, func(ctx context.Context, msg Message) (*Response, error) {
		return nil, nil
	})
	e.Handle(ActionGetStatus, func(ctx context.Context, msg Message) (*Response, error) {
		panic("boom")
	})

	if _, err := e.Call(context.Background(), Message{Action: ActionPublish}); !errors.Is(err, ErrNoReceiver) {
		t.Errorf("unknown action err = %v, want ErrNoReceiver", err)
	}
	if _, err := e.Call(context.Background(), Message{Action: ActionPublishResult}); !errors.Is(err, ErrNoResponse) {
		t.Errorf("silent handler err = %v, want ErrNoResponse", err)
	}
	if _, err := e.Call(context.Background(), Message{Action: ActionGetStatus}); err == nil {
		t.Error("panicking handler should surface an error")
	}
}

func TestCallHonoursContext(t *testing.T) {
	e := NewEndpoint("page", zap.NewNop())
	release := make(chan struct{})
	e.Handle(ActionPublish, func(ctx context.Context, msg Message) (*Response, error) {
		<-release
		return &Response{Success: true}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := e.Call(ctx, Message{Action: ActionPublish}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	close(release)
	e.Wait()
}

func TestNotify(t *testing.T) {
	e := NewEndpoint("coordinator", zap.NewNop())
	var got atomic.Value
	e.Handle(ActionPublishResult, func(ctx context.Context, msg Message) (*Response, error) {
		got.Store(msg.Result.PostID)
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	e.Notify(ctx, Message{Action: ActionPublishResult, Result: &Result{PostID: "p1"}})
	cancel()
	e.Notify(context.Background(), Message{Action: ActionContentScriptReady})
	e.Wait()

	if got.Load() != "p1" {
		t.Errorf("notification payload = %v", got.Load())
	}
}
