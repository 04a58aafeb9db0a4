// Package events implements the Event Publisher: a non-blocking broker
// broadcasting supervisor/address/application/process status changes to
// any subscriber. Fire-and-forget — a full subscriber buffer drops the
// event rather than blocking the publisher.
package events
