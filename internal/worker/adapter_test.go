package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "mcp-a2a/internal/errors"
)

type fakeSession struct {
	invoke func(ctx context.Context, input string) (string, error)
	closed atomic.Int32
}

func (s *fakeSession) Invoke(ctx context.Context, input string) (string, error) {
	return s.invoke(ctx, input)
}

func (s *fakeSession) Close() error {
	s.closed.Add(1)
	return nil
}

func echo(_ context.Context, input string) (string, error) {
	return "echo: " + input, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveInvocation(_ string, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func TestLongLivedInvoke(t *testing.T) {
	session := &fakeSession{invoke: echo}
	adapter := NewLongLived(session)

	out, err := adapter.Invoke(context.Background(), "a.pdf")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "echo: a.pdf" {
		t.Fatalf("unexpected output %q", out)
	}
	if session.closed.Load() != 0 {
		t.Fatalf("long-lived session must stay open")
	}
	if err := adapter.Close(); err != nil || session.closed.Load() != 1 {
		t.Fatalf("close: %v (closed=%d)", err, session.closed.Load())
	}
}

func TestLongLivedSerializesCalls(t *testing.T) {
	var inFlight, peak atomic.Int32
	session := &fakeSession{invoke: func(ctx context.Context, input string) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return input, nil
	}}
	adapter := NewLongLived(session)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = adapter.Invoke(context.Background(), "x")
		}()
	}
	wg.Wait()
	if peak.Load() != 1 {
		t.Fatalf("expected one call in flight, saw %d", peak.Load())
	}
}

func TestEphemeralClosesSessionOnEveryPath(t *testing.T) {
	cases := []struct {
		name    string
		invoke  func(context.Context, string) (string, error)
		wantErr bool
	}{
		{"success", echo, false},
		{"failure", func(context.Context, string) (string, error) { return "", errors.New("tool failed") }, true},
		{"panic", func(context.Context, string) (string, error) { panic("boom") }, true},
		{"empty", func(context.Context, string) (string, error) { return "  \n", nil }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var sessions []*fakeSession
			adapter := NewEphemeral(func(context.Context) (Session, error) {
				s := &fakeSession{invoke: tc.invoke}
				sessions = append(sessions, s)
				return s, nil
			})
			_, err := adapter.Invoke(context.Background(), "a.pdf")
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil {
				if !xerrors.HasCode(err, xerrors.CodeWorkerFailure) {
					t.Fatalf("expected WORKER_FAILURE, got %v", err)
				}
				if _, ok := AsError(err); !ok {
					t.Fatalf("expected *worker.Error, got %T", err)
				}
			}
			if len(sessions) != 1 || sessions[0].closed.Load() != 1 {
				t.Fatalf("session not closed exactly once")
			}
		})
	}
}

func TestEphemeralFactoryFailure(t *testing.T) {
	startErr := errors.New("exec: \"pdfmcp\": executable file not found")
	adapter := NewEphemeral(func(context.Context) (Session, error) { return nil, startErr })

	_, err := adapter.Invoke(context.Background(), "a.pdf")
	workerErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected worker error, got %v", err)
	}
	if workerErr.Code() != xerrors.CodeWorkerFailure || !errors.Is(err, startErr) {
		t.Fatalf("unexpected error %v", err)
	}
	if workerErr.Mode != ModeEphemeral {
		t.Fatalf("unexpected mode %s", workerErr.Mode)
	}
}

func TestInvokeTimeout(t *testing.T) {
	observer := &recordingObserver{}
	session := &fakeSession{invoke: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", errors.New("subprocess killed")
	}}
	adapter := NewEphemeral(func(context.Context) (Session, error) { return session, nil },
		WithTimeout(10*time.Millisecond), WithObserver(observer))

	_, err := adapter.Invoke(context.Background(), "slow.pdf")
	if !xerrors.HasCode(err, xerrors.CodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "subprocess killed") {
		t.Fatalf("original cause lost: %v", err)
	}
	if session.closed.Load() != 1 {
		t.Fatalf("session not closed after timeout")
	}
	if len(observer.outcomes) != 1 || observer.outcomes[0] != "timeout" {
		t.Fatalf("unexpected outcomes %v", observer.outcomes)
	}
}

func TestCallerCancellationClosesSession(t *testing.T) {
	session := &fakeSession{invoke: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	adapter := NewEphemeral(func(context.Context) (Session, error) { return session, nil })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := adapter.Invoke(ctx, "a.pdf")
	if !errors.Is(err, context.Canceled) || !xerrors.HasCode(err, xerrors.CodeWorkerFailure) {
		t.Fatalf("unexpected error %v", err)
	}
	if session.closed.Load() != 1 {
		t.Fatalf("session not closed after cancellation")
	}
}
