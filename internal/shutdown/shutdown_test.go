package shutdown

import (
	"testing"
	"time"
)

func TestSignalFiresOnce(t *testing.T) {
	s := New()
	if s.IsShutdown() {
		t.Fatal("fresh signal should not be shut down")
	}

	done := make(chan struct{})
	go func() {
		<-s.Done()
		close(done)
	}()

	s.Trigger()
	s.Trigger() // must not panic or block

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("receiver never observed trigger")
	}

	if !s.IsShutdown() {
		t.Fatal("signal should report shut down after Trigger")
	}
}

func TestMultipleReceiversAllWake(t *testing.T) {
	s := New()
	n := 8
	woke := make(chan int, n)
	for i := 0; i < n; i++ {
		go func(id int) {
			<-s.Done()
			woke <- id
		}(i)
	}

	s.Trigger()

	for i := 0; i < n; i++ {
		select {
		case <-woke:
		case <-time.After(time.Second):
			t.Fatalf("only %d/%d receivers woke", i, n)
		}
	}
}
