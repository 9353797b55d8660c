package journal

import (
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := newQueue[int](3)

	for i := 1; i <= 3; i++ {
		if !q.Send(i) {
			t.Fatalf("Send(%d) failed", i)
		}
	}
	if q.Send(4) {
		t.Error("Send succeeded on a full queue")
	}

	for want := 1; want <= 3; want++ {
		got, ok := q.Receive()
		if !ok || got != want {
			t.Errorf("Receive() = %d, %v; want %d, true", got, ok, want)
		}
	}
}

func TestQueue_Wraparound(t *testing.T) {
	q := newQueue[int](2)

	for i := 0; i < 10; i++ {
		q.Send(i)
		got, _ := q.Receive()
		if got != i {
			t.Fatalf("Receive() = %d, want %d", got, i)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestQueue_CloseDrains(t *testing.T) {
	q := newQueue[string](4)
	q.Send("a")
	q.Close()

	if q.Send("b") {
		t.Error("Send succeeded after Close")
	}
	if got, ok := q.Receive(); !ok || got != "a" {
		t.Errorf("Receive() = %q, %v; want a, true", got, ok)
	}
	if _, ok := q.Receive(); ok {
		t.Error("Receive() on closed empty queue returned true")
	}
}

func TestQueue_ReceiveBlocksUntilSend(t *testing.T) {
	q := newQueue[int](1)

	got := make(chan int, 1)
	go func() {
		v, _ := q.Receive()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Receive returned before Send")
	case <-time.After(20 * time.Millisecond):
	}

	q.Send(7)
	select {
	case v := <-got:
		if v != 7 {
			t.Errorf("Receive() = %d, want 7", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not wake up")
	}
}
