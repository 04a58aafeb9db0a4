// Package transport defines the pub/sub and request/reply contract the
// Main Loop's I/O worker speaks to the rest of the cluster (spec §1:
// transport is external, described only by the contract the core
// consumes). The agent thread never touches a socket directly — the I/O
// worker copies Messages off the Inbox channel onto the agent thread's
// queue. The core itself does not call Publish or Request.
package transport

import (
	"context"
	"time"

	"github.com/cuemby/conclave/pkg/types"
)

// MessageKind distinguishes the wire messages the agent thread expects
// to receive through the I/O worker.
type MessageKind string

const (
	KindTick         MessageKind = "tick"
	KindProcessEvent MessageKind = "process_event"
	// KindAuthReply carries the spec §6 "auth" message: the outcome of a
	// check_address round. The agent's check worker hands it straight to
	// the local agent thread and does not send it over the transport —
	// check_address itself is an RPC straight to the checked host's
	// process manager (spec §4.4), never a transport round-trip.
	KindAuthReply MessageKind = "auth_reply"
)

// Message is the normalized shape every inbound transport frame is
// decoded into before it reaches the agent thread's queue.
type Message struct {
	Kind      MessageKind
	Address   string
	When      time.Time
	Process   *types.ProcessInfo
	Authorize *AuthPayload
}

// AuthPayload carries an authorization reply's body.
type AuthPayload struct {
	Authorized bool
	Snapshot   []types.ProcessInfo
}

// Transport is the contract a real pub/sub + req/reply binding
// implements. Publish and Request are both fire-and-forget from the
// caller's perspective — replies, if any, arrive later as Messages on
// Inbox.
type Transport interface {
	// Inbox delivers every message this peer receives, in arrival
	// order, until Close.
	Inbox() <-chan Message

	// Publish broadcasts a tick or process-event to the cluster.
	Publish(ctx context.Context, msg Message) error

	// Request sends msg point-to-point to address.
	Request(ctx context.Context, address string, msg Message) error

	Close() error
}

// Fake is an in-memory Transport for tests: Publish and Request append
// to Sent, and Deliver lets a test inject an inbound Message as if it
// had arrived over the wire.
type Fake struct {
	inbox chan Message
	Sent  []Message
}

func NewFake() *Fake {
	return &Fake{inbox: make(chan Message, 256)}
}

func (f *Fake) Inbox() <-chan Message { return f.inbox }

func (f *Fake) Publish(_ context.Context, msg Message) error {
	f.Sent = append(f.Sent, msg)
	return nil
}

func (f *Fake) Request(_ context.Context, _ string, msg Message) error {
	f.Sent = append(f.Sent, msg)
	return nil
}

func (f *Fake) Close() error {
	close(f.inbox)
	return nil
}

// Deliver injects msg into the inbox as though it had just arrived.
func (f *Fake) Deliver(msg Message) {
	f.inbox <- msg
}

var _ Transport = (*Fake)(nil)
