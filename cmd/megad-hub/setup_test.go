package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/megad-hub/internal/controller"
	"github.com/thatsimonsguy/megad-hub/internal/megad"
	"github.com/thatsimonsguy/megad-hub/internal/model"
)

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *fakeNotifier) Send(title, message string) error {
	n.mu.Lock()
	n.titles = append(n.titles, title)
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.titles...)
}

func TestBackoff(t *testing.T) {
	b := backoff{Initial: time.Second, Max: 5 * time.Second}

	var got []time.Duration
	var d time.Duration
	for i := 0; i < 5; i++ {
		d = b.next(d)
		got = append(got, d)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}, got)
}

func TestSetupControllerRetriesUntilReady(t *testing.T) {
	c := controller.New(megad.New("hall", "192.168.0.14", model.DeviceConfig{}, nil, megad.Options{}), controller.Options{})
	n := &fakeNotifier{}

	attempts := 0
	start := func(context.Context) (*controller.Coordinator, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return c, nil
	}

	var got *controller.Coordinator
	setupController(context.Background(), "hall", backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond}, n, start,
		func(ready *controller.Coordinator) { got = ready })

	assert.Equal(t, 3, attempts)
	assert.Same(t, c, got)
	assert.Equal(t, []string{"Controller setup failed", "Controller ready"}, n.sent())
}

func TestSetupControllerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := &fakeNotifier{}

	var mu sync.Mutex
	attempts := 0
	start := func(context.Context) (*controller.Coordinator, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		return nil, errors.New("no route to host")
	}

	done := make(chan struct{})
	go func() {
		setupController(ctx, "cellar", backoff{Initial: time.Hour, Max: time.Hour}, n, start,
			func(*controller.Coordinator) { t.Error("ready must not be called") })
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(n.sent()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("setup did not stop after cancel")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts)
}
