package transport

import (
	"context"
	"testing"
	"time"
)

func TestDeliverArrivesOnInbox(t *testing.T) {
	f := NewFake()
	msg := Message{Kind: KindTick, Address: "host-a", When: time.Now()}

	go f.Deliver(msg)

	select {
	case got := <-f.Inbox():
		if got.Address != "host-a" || got.Kind != KindTick {
			t.Fatalf("got %+v, want %+v", got, msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivered message")
	}
}

func TestPublishAndRequestRecordSent(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	if err := f.Publish(ctx, Message{Kind: KindTick, Address: "host-a"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := f.Request(ctx, "host-b", Message{Kind: KindAuthReply, Address: "host-a"}); err != nil {
		t.Fatalf("Request: %v", err)
	}

	if len(f.Sent) != 2 {
		t.Fatalf("Sent = %v, want 2 entries", f.Sent)
	}
}

func TestCloseClosesInbox(t *testing.T) {
	f := NewFake()
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-f.Inbox(); ok {
		t.Fatal("Inbox should be closed after Close")
	}
}
