package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewBroadcaster(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	if b.ListenerCount() != 0 {
		t.Errorf("Initial ListenerCount = %d, want 0", b.ListenerCount())
	}
	if len(b.Listeners()) != 0 {
		t.Errorf("Initial Listeners = %v, want empty", b.Listeners())
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())

	l1 := b.Subscribe("wav")
	l2 := b.Subscribe("webrtc")
	if b.ListenerCount() != 2 {
		t.Errorf("After 2 subscribes: ListenerCount = %d, want 2", b.ListenerCount())
	}
	if l1.ID == l2.ID {
		t.Error("listeners share an ID")
	}

	kinds := map[string]bool{}
	for _, info := range b.Listeners() {
		kinds[info.Kind] = true
	}
	if !kinds["wav"] || !kinds["webrtc"] {
		t.Errorf("Listeners kinds = %v", kinds)
	}

	b.Unsubscribe(l1)
	b.Unsubscribe(l1) // second call is a no-op
	if b.ListenerCount() != 1 {
		t.Errorf("After 1 unsubscribe: ListenerCount = %d, want 1", b.ListenerCount())
	}

	b.Unsubscribe(l2)
	if b.ListenerCount() != 0 {
		t.Errorf("After all unsubscribed: ListenerCount = %d, want 0", b.ListenerCount())
	}
}

func TestBroadcastDelivers(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	listeners := make([]*Listener, 5)
	for i := range listeners {
		listeners[i] = b.Subscribe("wav")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16, 10)
	go b.Run(ctx, source)

	source <- []int16{42, -42}

	for i, l := range listeners {
		select {
		case got := <-l.C:
			if len(got) != 2 || got[0] != 42 || got[1] != -42 {
				t.Errorf("Listener %d got %v, want [42 -42]", i, got)
			}
		case <-time.After(time.Second):
			t.Errorf("Listener %d timed out", i)
		}
	}
}

func TestBroadcastDropsForSlowListener(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	slow := b.Subscribe("wav")
	fast := b.Subscribe("wav")

	source := make(chan []int16)
	finished := make(chan struct{})
	go func() {
		b.Run(context.Background(), source)
		close(finished)
	}()

	fastCount := 0
	for i := 0; i < 200; i++ {
		source <- []int16{int16(i)}
		select {
		case <-fast.C:
			fastCount++
		case <-time.After(time.Second):
			t.Fatalf("fast listener missed frame %d", i)
		}
	}
	close(source)
	<-finished

	if fastCount != 200 {
		t.Errorf("fast listener got %d frames, want 200", fastCount)
	}
	if len(slow.C) != listenerBuffer {
		t.Errorf("slow listener buffered %d frames, want %d", len(slow.C), listenerBuffer)
	}
	if got := slow.Dropped(); got != 200-listenerBuffer {
		t.Errorf("slow listener dropped %d frames, want %d", got, 200-listenerBuffer)
	}
	if fast.Dropped() != 0 {
		t.Errorf("fast listener dropped %d frames", fast.Dropped())
	}
}

func TestBroadcastStops(t *testing.T) {
	tests := []struct {
		name string
		stop func(cancel context.CancelFunc, source chan []int16)
	}{
		{"context cancel", func(cancel context.CancelFunc, _ chan []int16) { cancel() }},
		{"source close", func(_ context.CancelFunc, source chan []int16) { close(source) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBroadcaster(zerolog.Nop())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			source := make(chan []int16, 10)

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.Run(ctx, source)
			}()
			tt.stop(cancel, source)

			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("Broadcaster did not stop")
			}
		})
	}
}

func TestListenerDoneChannel(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	l := b.Subscribe("webrtc")
	b.Unsubscribe(l)

	select {
	case <-l.Done():
	default:
		t.Error("Listener done channel not closed after unsubscribe")
	}
}
