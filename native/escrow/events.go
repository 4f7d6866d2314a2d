package escrow

import (
	"encoding/hex"
	"strconv"

	"github.com/aerisfi/aeris-contracts/core/types"
)

const (
	EventTypeOrderCreated   = "escrow.order.created"
	EventTypeOrderCompleted = "escrow.order.completed"
	EventTypeOrderCancelled = "escrow.order.cancelled"
	EventTypeOrderRefunded  = "escrow.order.refunded"
	EventTypeTimeoutUpdated = "escrow.timeout_updated"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// NewOrderCreatedEvent returns the canonical event payload for a newly created
// order.
func NewOrderCreatedEvent(o *Order) *types.Event { return newOrderEvent(EventTypeOrderCreated, o) }

// NewOrderCompletedEvent returns the canonical event payload emitted when both
// legs of an order settle. The fulfiller is recorded for off-chain indexers.
func NewOrderCompletedEvent(o *Order, fulfiller [20]byte) *types.Event {
	evt := newOrderEvent(EventTypeOrderCompleted, o)
	evt.Attributes["fulfiller"] = hex.EncodeToString(fulfiller[:])
	return evt
}

// NewOrderCancelledEvent returns the canonical event payload for a creator
// cancellation.
func NewOrderCancelledEvent(o *Order) *types.Event { return newOrderEvent(EventTypeOrderCancelled, o) }

// NewOrderRefundedEvent returns the canonical event payload for a post-timeout
// refund.
func NewOrderRefundedEvent(o *Order) *types.Event { return newOrderEvent(EventTypeOrderRefunded, o) }

// NewTimeoutUpdatedEvent returns the event payload emitted when the admin
// adjusts the refund window.
func NewTimeoutUpdatedEvent(seconds int64) *types.Event {
	return &types.Event{
		Type: EventTypeTimeoutUpdated,
		Attributes: map[string]string{
			"timeoutSeconds": strconv.FormatInt(seconds, 10),
		},
	}
}

func newOrderEvent(eventType string, o *Order) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeOrder(o)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = sanitized.ID.String()
	attrs["creator"] = hex.EncodeToString(sanitized.Creator[:])
	attrs["inAsset"] = strconv.FormatInt(int64(sanitized.InAsset), 10)
	attrs["inAmount"] = sanitized.InAmount.String()
	attrs["outAsset"] = strconv.FormatInt(int64(sanitized.OutAsset), 10)
	attrs["outAmount"] = sanitized.OutAmount.String()
	attrs["kind"] = sanitized.Kind.String()
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	attrs["status"] = sanitized.Status.String()
	if sanitized.Kind == KindLimit {
		attrs["expiry"] = strconv.FormatInt(sanitized.Expiry, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
