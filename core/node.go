package core

import (
	"errors"
	"math/big"
	"sync"

	"github.com/aerisfi/aeris-contracts/core/events"
	"github.com/aerisfi/aeris-contracts/core/state"
	"github.com/aerisfi/aeris-contracts/native/custodian"
	"github.com/aerisfi/aeris-contracts/native/escrow"
	"github.com/aerisfi/aeris-contracts/native/registry"
	"github.com/aerisfi/aeris-contracts/observability/metrics"
	"github.com/aerisfi/aeris-contracts/storage"
)

// Node wires the registry and escrow engines to a shared state manager and
// serializes every operation behind a single mutex. The engines themselves are
// sequential state machines; the node provides the execution environment that
// guarantees calls from different external callers never interleave, so of two
// racing fulfillments exactly one can succeed.
type Node struct {
	db       storage.Database
	state    *state.Manager
	registry *registry.Engine
	escrow   *escrow.Engine

	stateMu sync.Mutex
}

// NewNode assembles a node over the supplied database. The admin identity is
// the only caller accepted for asset registration and timeout changes.
func NewNode(db storage.Database, admin [20]byte) *Node {
	manager := state.NewManager(db)

	reg := registry.NewEngine()
	reg.SetState(manager)
	reg.SetAdmin(admin)

	esc := escrow.NewEngine()
	esc.SetState(manager)
	esc.SetAssets(reg)
	esc.SetLedger(manager)
	esc.SetAdmin(admin)

	return &Node{
		db:       db,
		state:    manager,
		registry: reg,
		escrow:   esc,
	}
}

// SetEmitter subscribes an event emitter to both engines.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.registry.SetEmitter(emitter)
	n.escrow.SetEmitter(emitter)
}

// SetCustodian forwards escrowed balances to an external yield custodian.
func (n *Node) SetCustodian(c custodian.Custodian) {
	n.escrow.SetCustodian(c)
}

// SetNowFunc overrides the escrow engine's time source, primarily for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.escrow.SetNowFunc(now)
}

// --- Registry surface ---

// RegisterAssets appends the supplied identifiers to the registry.
func (n *Node) RegisterAssets(caller [20]byte, assets []registry.AssetID) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if err := n.registry.Register(caller, assets); err != nil {
		metrics.Escrow().OperationRejected("register", reason(err))
		return err
	}
	if length, err := n.registry.Len(); err == nil {
		metrics.Escrow().SetRegisteredAssets(length)
	}
	return nil
}

// AssetIndexOf returns the registry index for the identifier, or the sentinel
// registry.IndexNotFound when unregistered.
func (n *Node) AssetIndexOf(asset registry.AssetID) (int32, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.registry.IndexOf(asset)
}

// AssetAt returns the identifier at the given registry index.
func (n *Node) AssetAt(index int32) (registry.AssetID, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.registry.AssetAt(index)
}

// --- Escrow surface ---

// CreateMarketOrder escrows the caller's deposit under a market order.
func (n *Node) CreateMarketOrder(caller [20]byte, id escrow.OrderID, inAsset int32, inAmount *big.Int, outAsset int32, outAmount *big.Int) (*escrow.Order, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	order, err := n.escrow.CreateMarketOrder(caller, id, inAsset, inAmount, outAsset, outAmount)
	n.recordCreate(order, err)
	return order, err
}

// CreateLimitOrder escrows the caller's deposit under an expiry-bounded order.
func (n *Node) CreateLimitOrder(caller [20]byte, id escrow.OrderID, inAsset int32, inAmount *big.Int, outAsset int32, outAmount *big.Int, expiry int64) (*escrow.Order, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	order, err := n.escrow.CreateLimitOrder(caller, id, inAsset, inAmount, outAsset, outAmount, expiry)
	n.recordCreate(order, err)
	return order, err
}

// FulfillOrder settles an awaiting order against the caller's mirrored deposit.
func (n *Node) FulfillOrder(caller [20]byte, id escrow.OrderID, inAsset int32, inAmount *big.Int, outAsset int32, outAmount *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if err := n.escrow.Fulfill(caller, id, inAsset, inAmount, outAsset, outAmount); err != nil {
		metrics.Escrow().OperationRejected("fulfill", reason(err))
		return err
	}
	metrics.Escrow().OrderCompleted()
	n.refreshCustody(inAsset)
	n.refreshCustody(outAsset)
	return nil
}

// CancelOrder returns the deposit of an awaiting order to its creator.
func (n *Node) CancelOrder(caller [20]byte, id escrow.OrderID) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	order, _ := n.escrow.GetOrder(id)
	if err := n.escrow.Cancel(caller, id); err != nil {
		metrics.Escrow().OperationRejected("cancel", reason(err))
		return err
	}
	metrics.Escrow().OrderCancelled()
	if order != nil {
		n.refreshCustody(order.InAsset)
	}
	return nil
}

// RefundOrder returns the deposit of a timed-out order to its creator.
func (n *Node) RefundOrder(caller [20]byte, id escrow.OrderID) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	order, _ := n.escrow.GetOrder(id)
	if err := n.escrow.Refund(caller, id); err != nil {
		metrics.Escrow().OperationRejected("refund", reason(err))
		return err
	}
	metrics.Escrow().OrderRefunded()
	if order != nil {
		n.refreshCustody(order.InAsset)
	}
	return nil
}

// SetOrderTimeout changes the refund eligibility window.
func (n *Node) SetOrderTimeout(caller [20]byte, seconds int64) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if err := n.escrow.SetTimeout(caller, seconds); err != nil {
		metrics.Escrow().OperationRejected("set_timeout", reason(err))
		return err
	}
	return nil
}

// SeedOrderTimeout persists the configured refund window on first run. An
// already-persisted window (set by a previous run or an admin call) wins.
func (n *Node) SeedOrderTimeout(seconds int64) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if _, ok, err := n.state.TimeoutGet(); err != nil {
		return err
	} else if ok {
		return nil
	}
	return n.state.TimeoutPut(seconds)
}

// OrderTimeout reports the refund eligibility window currently in force.
func (n *Node) OrderTimeout() (int64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.escrow.Timeout()
}

// GetOrder returns a copy of the stored order.
func (n *Node) GetOrder(id escrow.OrderID) (*escrow.Order, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.escrow.GetOrder(id)
}

// CustodyBalance reports the tracked custody amount for an asset index.
func (n *Node) CustodyBalance(asset int32) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.escrow.CustodyBalance(asset)
}

// --- Token surface ---

// TokenBalance reports an account's balance of the asset.
func (n *Node) TokenBalance(owner [20]byte, asset registry.AssetID) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.BalanceOf(owner, asset)
}

// MintToken credits freshly issued balance, used when provisioning
// deployments and integration environments.
func (n *Node) MintToken(owner [20]byte, asset registry.AssetID, amount *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Mint(owner, asset, amount)
}

func (n *Node) recordCreate(order *escrow.Order, err error) {
	if err != nil {
		metrics.Escrow().OperationRejected("create", reason(err))
		return
	}
	if order == nil {
		return
	}
	metrics.Escrow().OrderCreated(order.Kind.String())
	n.refreshCustody(order.InAsset)
}

func (n *Node) refreshCustody(asset int32) {
	balance, err := n.escrow.CustodyBalance(asset)
	if err != nil {
		return
	}
	metrics.Escrow().SetCustody(asset, balance)
}

func reason(err error) string {
	switch {
	case errors.Is(err, escrow.ErrDuplicateOrder):
		return "duplicate_order"
	case errors.Is(err, escrow.ErrUnknownAsset):
		return "unknown_asset"
	case errors.Is(err, escrow.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, escrow.ErrExpiryInPast):
		return "expiry_in_past"
	case errors.Is(err, escrow.ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, escrow.ErrOrderNotFulfillable):
		return "not_fulfillable"
	case errors.Is(err, escrow.ErrOrderExpired):
		return "expired"
	case errors.Is(err, escrow.ErrOrderMismatch):
		return "mismatch"
	case errors.Is(err, escrow.ErrNotAuthorized), errors.Is(err, registry.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, escrow.ErrTimeoutNotElapsed):
		return "timeout_not_elapsed"
	case errors.Is(err, escrow.ErrTransferFailed):
		return "transfer_failed"
	default:
		return "internal"
	}
}
