package broadcast

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPublishDeliversInOrder(t *testing.T) {
	b := New(32, zerolog.Nop())
	defer b.Close()

	var mu sync.Mutex
	var seen []uint64
	done := make(chan struct{})

	b.Subscribe("order", ConsumerFunc(func(r CycleResult) error {
		mu.Lock()
		seen = append(seen, r.Seq)
		full := len(seen) == 5
		mu.Unlock()
		if full {
			close(done)
		}
		return nil
	}))

	for i := uint64(1); i <= 5; i++ {
		b.Publish(CycleResult{Seq: i, At: time.Now()})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, seq := range seen {
		if seq != uint64(i+1) {
			t.Fatalf("out of order delivery: %v", seen)
		}
	}
}

func TestFailingConsumerIsIsolated(t *testing.T) {
	b := New(8, zerolog.Nop())
	defer b.Close()

	got := make(chan uint64, 1)
	b.Subscribe("broken", ConsumerFunc(func(r CycleResult) error {
		return errors.New("boom")
	}))
	b.Subscribe("healthy", ConsumerFunc(func(r CycleResult) error {
		got <- r.Seq
		return nil
	}))

	b.Publish(CycleResult{Seq: 42})

	select {
	case seq := <-got:
		if seq != 42 {
			t.Fatalf("expected seq 42, got %d", seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("healthy consumer should still receive results")
	}
}

func TestSlowConsumerDoesNotBlockPublish(t *testing.T) {
	b := New(1, zerolog.Nop())
	defer b.Close()

	release := make(chan struct{})
	b.Subscribe("slow", ConsumerFunc(func(r CycleResult) error {
		<-release
		return nil
	}))

	done := make(chan struct{})
	go func() {
		for i := uint64(1); i <= 50; i++ {
			b.Publish(CycleResult{Seq: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}
	close(release)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(8, zerolog.Nop())
	defer b.Close()

	got := make(chan uint64, 8)
	sub := b.Subscribe("transient", ConsumerFunc(func(r CycleResult) error {
		got <- r.Seq
		return nil
	}))

	b.Publish(CycleResult{Seq: 1})
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("expected delivery before unsubscribe")
	}

	b.Unsubscribe(sub)
	b.Publish(CycleResult{Seq: 2})

	select {
	case seq := <-got:
		t.Fatalf("unexpected delivery after unsubscribe: %d", seq)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFailureResultFlag(t *testing.T) {
	if (CycleResult{}).Failed() {
		t.Fatal("result without error must not be failed")
	}
	if !(CycleResult{Err: errors.New("fetch")}).Failed() {
		t.Fatal("result with error must be failed")
	}
}
