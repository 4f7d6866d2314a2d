package escrow

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// OrderID is the caller-supplied 16-byte order identifier. Callers are
// responsible for uniqueness; once an identifier has been used it can never be
// reused, regardless of the terminal state the order ended in.
type OrderID [16]byte

// String renders the identifier as 0x-prefixed lowercase hex.
func (id OrderID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// ParseOrderID decodes a 0x-prefixed or bare 32-character hex string into an
// order identifier.
func ParseOrderID(value string) (OrderID, error) {
	var id OrderID
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != len(id)*2 {
		return id, fmt.Errorf("escrow: order id must be %d bytes (got %d hex chars)", len(id), len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("escrow: decode order id: %w", err)
	}
	copy(id[:], decoded)
	return id, nil
}

// OrderKind distinguishes market orders, fulfillable any time before
// cancellation or refund, from limit orders bounded by an expiry timestamp.
type OrderKind uint8

const (
	KindMarket OrderKind = iota
	KindLimit
)

// OrderStatus represents the lifecycle states of an escrowed order. The
// numbering matches the wire encoding used by external indexers.
type OrderStatus uint8

const (
	StatusAwaitingDelivery OrderStatus = iota
	StatusCompleted
	StatusRefunded
	StatusCancelled
)

// Terminal reports whether the status permits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRefunded, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether the status value is within the supported range.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusAwaitingDelivery, StatusCompleted, StatusRefunded, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether the kind value is within the supported range.
func (k OrderKind) Valid() bool {
	switch k {
	case KindMarket, KindLimit:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case StatusAwaitingDelivery:
		return "awaiting_delivery"
	case StatusCompleted:
		return "completed"
	case StatusRefunded:
		return "refunded"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

func (k OrderKind) String() string {
	switch k {
	case KindMarket:
		return "market"
	case KindLimit:
		return "limit"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Order captures the immutable terms and runtime status of a single escrowed
// swap. InAsset/InAmount describe the leg the creator deposited into custody;
// OutAsset/OutAmount describe the leg the creator demands in return. Asset
// fields are registry indices, not raw identifiers.
type Order struct {
	ID        OrderID
	Creator   [20]byte
	InAsset   int32
	InAmount  *big.Int
	OutAsset  int32
	OutAmount *big.Int
	Kind      OrderKind
	Expiry    int64
	CreatedAt int64
	Status    OrderStatus
}

// Clone returns a deep copy of the order so callers can safely mutate the copy
// without affecting the stored instance.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.InAmount != nil {
		clone.InAmount = new(big.Int).Set(o.InAmount)
	} else {
		clone.InAmount = big.NewInt(0)
	}
	if o.OutAmount != nil {
		clone.OutAmount = new(big.Int).Set(o.OutAmount)
	} else {
		clone.OutAmount = big.NewInt(0)
	}
	return &clone
}

// SanitizeOrder validates the supplied order definition and returns a cloned
// instance with non-nil amount fields. The function does not mutate the
// original value.
func SanitizeOrder(o *Order) (*Order, error) {
	if o == nil {
		return nil, fmt.Errorf("escrow: nil order")
	}
	clone := o.Clone()
	if clone.InAsset < 0 || clone.OutAsset < 0 {
		return nil, fmt.Errorf("escrow: negative asset index")
	}
	if clone.InAmount.Sign() < 0 || clone.OutAmount.Sign() < 0 {
		return nil, fmt.Errorf("escrow: order amounts must be non-negative")
	}
	if !clone.Kind.Valid() {
		return nil, fmt.Errorf("escrow: invalid order kind %d", clone.Kind)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid order status %d", clone.Status)
	}
	if clone.Kind == KindMarket && clone.Expiry != 0 {
		return nil, fmt.Errorf("escrow: market order carries expiry")
	}
	return clone, nil
}
