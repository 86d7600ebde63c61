package broker

import (
	"context"
	"testing"
	"time"

	"codepair/pkg/types"
)

func snapshot(sessionKey, writer, code string) *types.Session {
	return &types.Session{
		SessionKey:    sessionKey,
		Code:          code,
		Language:      types.LanguageJavaScript,
		LastUpdatedBy: writer,
		LastUpdatedAt: time.Now().UTC(),
	}
}

func TestBroker_StartStop(t *testing.T) {
	b := NewBroker(16)
	ctx := context.Background()

	if err := b.Start(ctx); err != nil {
		t.Fatalf("Expected no error starting broker, got %v", err)
	}
	if err := b.Start(ctx); err != ErrBrokerAlreadyRunning {
		t.Errorf("Expected ErrBrokerAlreadyRunning, got %v", err)
	}
	if err := b.Stop(); err != nil {
		t.Errorf("Expected no error stopping broker, got %v", err)
	}
	if err := b.Stop(); err != ErrBrokerNotRunning {
		t.Errorf("Expected ErrBrokerNotRunning, got %v", err)
	}
}

func TestBroker_PublishBeforeStart(t *testing.T) {
	b := NewBroker(16)
	if err := b.Publish(snapshot("s1", "u1", "")); err != ErrBrokerNotRunning {
		t.Errorf("Expected ErrBrokerNotRunning, got %v", err)
	}
	if _, _, err := b.Subscribe("s1"); err != ErrBrokerNotRunning {
		t.Errorf("Expected ErrBrokerNotRunning from Subscribe, got %v", err)
	}
}

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker(16)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start broker: %v", err)
	}
	defer func() { _ = b.Stop() }()

	ch1, cancel1, err := b.Subscribe("s1")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer cancel1()

	ch2, cancel2, err := b.Subscribe("s1")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer cancel2()

	chOther, cancelOther, err := b.Subscribe("s2")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer cancelOther()

	if err := b.Publish(snapshot("s1", "u1", "hello")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	for i, ch := range []<-chan *types.Session{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Code != "hello" {
				t.Errorf("Subscriber %d got code %q, want %q", i, got.Code, "hello")
			}
		case <-time.After(time.Second):
			t.Fatalf("Subscriber %d did not receive snapshot", i)
		}
	}

	select {
	case got := <-chOther:
		t.Errorf("Subscriber on other session received snapshot %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker(16)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start broker: %v", err)
	}
	defer func() { _ = b.Stop() }()

	ch, cancel, err := b.Subscribe("s1")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	cancel()
	cancel() // idempotent

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("Channel was not closed after cancel")
	}

	// Publishes after unsubscribe must not panic or block.
	if err := b.Publish(snapshot("s1", "u1", "after")); err != nil {
		t.Errorf("Publish after unsubscribe failed: %v", err)
	}
}

func TestBroker_StopClosesSubscribers(t *testing.T) {
	b := NewBroker(16)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start broker: %v", err)
	}

	ch, _, err := b.Subscribe("s1")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	if err := b.Stop(); err != nil {
		t.Fatalf("Failed to stop broker: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Expected closed channel after broker stop")
		}
	case <-time.After(time.Second):
		t.Fatal("Channel was not closed after broker stop")
	}
}

// A slow subscriber loses old snapshots, never the newest one.
func TestBroker_DropOldestKeepsLatest(t *testing.T) {
	b := NewBroker(1)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start broker: %v", err)
	}
	defer func() { _ = b.Stop() }()

	ch, cancel, err := b.Subscribe("s1")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer cancel()

	for _, code := range []string{"v1", "v2", "v3"} {
		if err := b.Publish(snapshot("s1", "u1", code)); err != nil {
			t.Fatalf("Failed to publish %s: %v", code, err)
		}
	}

	// Let the run loop process all three publishes before draining.
	time.Sleep(100 * time.Millisecond)

	var last *types.Session
	for {
		select {
		case got := <-ch:
			last = got
		default:
			if last == nil {
				t.Fatal("No snapshot delivered")
			}
			if last.Code != "v3" {
				t.Errorf("Latest delivered snapshot is %q, want v3", last.Code)
			}
			return
		}
	}
}
