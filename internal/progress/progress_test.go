package progress

import (
	"testing"
	"time"
)

func TestSubscribe_EmitsCurrentStateImmediately(t *testing.T) {
	lookup := func(jobID string) (Frame, bool) {
		return Frame{State: "processing", Progress: 0.4, Timestamp: time.Now()}, true
	}
	c := New(lookup, Options{Cadence: time.Hour, SendDeadline: time.Second})
	sub := c.Subscribe("job1")
	defer sub.Close()

	select {
	case f := <-sub.Frames():
		if f.State != "processing" {
			t.Fatalf("state = %q, want processing", f.State)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial frame")
	}
}

func TestPublish_TerminalFrameClosesSubscription(t *testing.T) {
	lookup := func(jobID string) (Frame, bool) {
		return Frame{State: "processing", Progress: 0.1}, true
	}
	c := New(lookup, Options{Cadence: time.Hour, SendDeadline: time.Second})
	sub := c.Subscribe("job2")
	<-sub.Frames() // drain initial frame

	c.Publish("job2", Frame{State: "completed", Progress: 1.0})

	select {
	case f, ok := <-sub.Frames():
		if !ok {
			t.Fatal("channel closed before delivering terminal frame")
		}
		if f.State != "completed" {
			t.Fatalf("state = %q, want completed", f.State)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for terminal frame")
	}

	// The terminal frame is followed by a close-reason frame.
	select {
	case f, ok := <-sub.Frames():
		if !ok {
			t.Fatal("channel closed before delivering the close-reason frame")
		}
		if f.CloseReason != "completed" {
			t.Fatalf("close reason = %q, want completed", f.CloseReason)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close-reason frame")
	}

	// Channel should close shortly after the terminal frame.
	select {
	case _, ok := <-sub.Frames():
		if ok {
			t.Fatal("expected channel to be closed after terminal frame")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestPing_RespondsWithPongFrame(t *testing.T) {
	lookup := func(jobID string) (Frame, bool) { return Frame{State: "queued"}, true }
	c := New(lookup, Options{Cadence: time.Hour, SendDeadline: time.Second})
	sub := c.Subscribe("job3")
	<-sub.Frames() // drain initial frame

	sub.Ping()
	select {
	case f := <-sub.Frames():
		if f.State != "pong" {
			t.Fatalf("state = %q, want pong", f.State)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pong")
	}
}

func TestUnsubscribe_RemovesFromJobIndex(t *testing.T) {
	lookup := func(jobID string) (Frame, bool) { return Frame{State: "queued"}, true }
	c := New(lookup, Options{Cadence: time.Hour, SendDeadline: time.Second})
	sub := c.Subscribe("job4")
	<-sub.Frames()

	if c.SubscriberCount("job4") != 1 {
		t.Fatal("expected 1 subscriber before close")
	}
	sub.Close()
	if c.SubscriberCount("job4") != 0 {
		t.Fatal("expected 0 subscribers after close")
	}
}
