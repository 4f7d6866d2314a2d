package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/aerisfi/aeris-contracts/core/events"
	"github.com/aerisfi/aeris-contracts/core/types"
	"github.com/aerisfi/aeris-contracts/native/custodian"
	"github.com/aerisfi/aeris-contracts/native/registry"
)

var (
	errNilState  = errors.New("escrow engine: state not configured")
	errNilAssets = errors.New("escrow engine: asset directory not configured")
	errNilLedger = errors.New("escrow engine: token ledger not configured")

	// ErrDuplicateOrder rejects creation against an identifier that has ever
	// been used, including orders already in a terminal state.
	ErrDuplicateOrder = errors.New("escrow: order id already exists")
	// ErrUnknownAsset rejects orders referencing unregistered asset indices.
	ErrUnknownAsset = errors.New("escrow: unknown asset index")
	// ErrInvalidAmount rejects non-positive deposit or demand amounts.
	ErrInvalidAmount = errors.New("escrow: amount must be positive")
	// ErrExpiryInPast rejects limit orders whose expiry precedes creation.
	ErrExpiryInPast = errors.New("escrow: limit order expiry before creation time")
	// ErrOrderNotFound signals a lookup against an unknown identifier.
	ErrOrderNotFound = errors.New("escrow: order not found")
	// ErrOrderNotFulfillable signals that the order is not awaiting delivery;
	// the second of two racing fulfillments observes this error.
	ErrOrderNotFulfillable = errors.New("escrow: order not awaiting delivery")
	// ErrOrderExpired rejects fulfillment of a limit order past its expiry.
	ErrOrderExpired = errors.New("escrow: limit order expired")
	// ErrOrderMismatch rejects fulfillment whose legs are not the exact
	// mirror of the stored order.
	ErrOrderMismatch = errors.New("escrow: fulfillment does not mirror order terms")
	// ErrNotAuthorized rejects callers lacking the required identity.
	ErrNotAuthorized = errors.New("escrow: caller not authorized")
	// ErrTimeoutNotElapsed rejects refunds before the timeout window closes.
	ErrTimeoutNotElapsed = errors.New("escrow: refund timeout not elapsed")
	// ErrTransferFailed wraps any failure reported by the external token
	// ledger. The surrounding operation aborts with no state change.
	ErrTransferFailed = errors.New("escrow: token transfer failed")
)

// DefaultOrderTimeout applies until an admin overrides it via SetTimeout.
const DefaultOrderTimeout int64 = 24 * 60 * 60

// VaultAddress is the custody account all escrowed balances are held under.
// Deterministically derived so every deployment agrees on it.
var VaultAddress = deriveVault()

func deriveVault() [20]byte {
	var addr [20]byte
	digest := ethcrypto.Keccak256([]byte("aeris/escrow/vault"))
	copy(addr[:], digest[12:])
	return addr
}

type engineState interface {
	OrderPut(*Order) error
	OrderGet(OrderID) (*Order, bool)
	CustodyCredit(asset int32, amount *big.Int) error
	CustodyDebit(asset int32, amount *big.Int) error
	CustodyBalance(asset int32) (*big.Int, error)
	TimeoutPut(seconds int64) error
	TimeoutGet() (int64, bool, error)
}

// TokenLedger is the external fungible-asset collaborator. Implementations
// move balances between accounts; any non-nil error is surfaced by the engine
// as ErrTransferFailed and aborts the whole operation.
type TokenLedger interface {
	TransferFrom(owner, recipient [20]byte, asset registry.AssetID, amount *big.Int) error
	BalanceOf(owner [20]byte, asset registry.AssetID) (*big.Int, error)
}

type assetDirectory interface {
	AssetAt(index int32) (registry.AssetID, error)
	Contains(index int32) (bool, error)
}

// Engine owns the order table and enforces the escrow state machine: custody
// pulls on creation, mirror-matched atomic settlement, creator cancellation
// and post-timeout refunds. All order records and custodied balances are
// exclusively owned by the engine.
type Engine struct {
	state     engineState
	assets    assetDirectory
	ledger    TokenLedger
	custodian custodian.Custodian
	emitter   events.Emitter
	admin     [20]byte
	nowFn     func() int64
}

// NewEngine creates an escrow engine with a no-op emitter and no custodian.
func NewEngine() *Engine {
	return &Engine{
		emitter:   events.NoopEmitter{},
		custodian: custodian.Noop{},
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAssets configures the registry used to resolve asset indices.
func (e *Engine) SetAssets(assets assetDirectory) { e.assets = assets }

// SetLedger configures the external token ledger custody moves settle against.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetAdmin configures the single identity allowed to adjust the timeout.
func (e *Engine) SetAdmin(admin [20]byte) { e.admin = admin }

// SetCustodian forwards custodied balances to a yield custodian. Passing nil
// resets to the no-op custodian that leaves funds in the vault.
func (e *Engine) SetCustodian(c custodian.Custodian) {
	if c == nil {
		e.custodian = custodian.Noop{}
		return
	}
	e.custodian = c
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.assets == nil:
		return errNilAssets
	case e.ledger == nil:
		return errNilLedger
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) resolveAsset(index int32) (registry.AssetID, error) {
	ok, err := e.assets.Contains(index)
	if err != nil {
		return registry.AssetID{}, err
	}
	if !ok {
		return registry.AssetID{}, ErrUnknownAsset
	}
	return e.assets.AssetAt(index)
}

// Timeout returns the refund eligibility window currently in force.
func (e *Engine) Timeout() (int64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	seconds, ok, err := e.state.TimeoutGet()
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultOrderTimeout, nil
	}
	return seconds, nil
}

// SetTimeout changes the refund eligibility window for all orders going
// forward. Pending orders are judged against their own CreatedAt using the
// window in force at refund time, not a per-order snapshot.
func (e *Engine) SetTimeout(caller [20]byte, seconds int64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.admin {
		return ErrNotAuthorized
	}
	if seconds < 0 {
		return fmt.Errorf("escrow: timeout must be non-negative")
	}
	if err := e.state.TimeoutPut(seconds); err != nil {
		return err
	}
	e.emit(NewTimeoutUpdatedEvent(seconds))
	return nil
}

// CreateMarketOrder escrows the caller's input leg under a fresh order that is
// fulfillable any time before cancellation or refund.
func (e *Engine) CreateMarketOrder(caller [20]byte, id OrderID, inAsset int32, inAmount *big.Int, outAsset int32, outAmount *big.Int) (*Order, error) {
	return e.createOrder(caller, id, inAsset, inAmount, outAsset, outAmount, KindMarket, 0)
}

// CreateLimitOrder escrows the caller's input leg under a fresh order that is
// additionally bounded by an expiry timestamp.
func (e *Engine) CreateLimitOrder(caller [20]byte, id OrderID, inAsset int32, inAmount *big.Int, outAsset int32, outAmount *big.Int, expiry int64) (*Order, error) {
	return e.createOrder(caller, id, inAsset, inAmount, outAsset, outAmount, KindLimit, expiry)
}

func (e *Engine) createOrder(caller [20]byte, id OrderID, inAsset int32, inAmount *big.Int, outAsset int32, outAmount *big.Int, kind OrderKind, expiry int64) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, ok := e.state.OrderGet(id); ok {
		return nil, ErrDuplicateOrder
	}
	inAmt := cloneBigInt(inAmount)
	outAmt := cloneBigInt(outAmount)
	if inAmt.Sign() <= 0 || outAmt.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	depositAsset, err := e.resolveAsset(inAsset)
	if err != nil {
		return nil, err
	}
	if ok, err := e.assets.Contains(outAsset); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrUnknownAsset
	}
	now := e.now()
	if kind == KindLimit && expiry <= now {
		return nil, ErrExpiryInPast
	}
	// External moves run before any record is written; a failure unwinds
	// the moves already made so the caller's balances end where they
	// started.
	u := &unwinder{}
	if err := e.ledger.TransferFrom(caller, VaultAddress, depositAsset, inAmt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	u.push(func() error { return e.ledger.TransferFrom(VaultAddress, caller, depositAsset, inAmt) })
	if err := e.custodian.Deposit(depositAsset, inAmt); err != nil {
		u.unwind()
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	u.push(func() error { return e.custodian.Withdraw(depositAsset, inAmt) })
	if err := e.state.CustodyCredit(inAsset, inAmt); err != nil {
		u.unwind()
		return nil, err
	}
	order := &Order{
		ID:        id,
		Creator:   caller,
		InAsset:   inAsset,
		InAmount:  inAmt,
		OutAsset:  outAsset,
		OutAmount: outAmt,
		Kind:      kind,
		Expiry:    expiry,
		CreatedAt: now,
		Status:    StatusAwaitingDelivery,
	}
	if kind == KindMarket {
		order.Expiry = 0
	}
	if err := e.state.OrderPut(order); err != nil {
		_ = e.state.CustodyDebit(inAsset, inAmt)
		u.unwind()
		return nil, err
	}
	e.emit(NewOrderCreatedEvent(order))
	return order.Clone(), nil
}

// Fulfill settles an awaiting order against a counterparty deposit. The four
// supplied fields must be the exact mirror of the stored order; the mirror
// check makes settlement self-verifying, so a caller can never settle against
// unrelated terms. Both legs are released atomically and the order becomes
// COMPLETED.
func (e *Engine) Fulfill(caller [20]byte, id OrderID, inAsset int32, inAmount *big.Int, outAsset int32, outAmount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	order, ok := e.state.OrderGet(id)
	if !ok {
		return ErrOrderNotFound
	}
	if order.Status != StatusAwaitingDelivery {
		return ErrOrderNotFulfillable
	}
	now := e.now()
	if order.Kind == KindLimit && now > order.Expiry {
		return ErrOrderExpired
	}
	inAmt := cloneBigInt(inAmount)
	outAmt := cloneBigInt(outAmount)
	if inAsset != order.OutAsset || outAsset != order.InAsset ||
		inAmt.Cmp(order.OutAmount) != 0 || outAmt.Cmp(order.InAmount) != 0 {
		return ErrOrderMismatch
	}
	demandAsset, err := e.resolveAsset(order.OutAsset)
	if err != nil {
		return err
	}
	depositAsset, err := e.resolveAsset(order.InAsset)
	if err != nil {
		return err
	}
	// A misbehaving asset implementation can fail any transfer. Each
	// completed move is therefore unwound when a later one fails, so a
	// rejected settlement leaves every balance, the custody ledger and the
	// order exactly as before the call.
	u := &unwinder{}
	if err := e.ledger.TransferFrom(caller, VaultAddress, demandAsset, inAmt); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	u.push(func() error { return e.ledger.TransferFrom(VaultAddress, caller, demandAsset, inAmt) })
	if err := e.custodian.Withdraw(depositAsset, order.InAmount); err != nil {
		u.unwind()
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	u.push(func() error { return e.custodian.Deposit(depositAsset, order.InAmount) })
	if err := e.ledger.TransferFrom(VaultAddress, caller, depositAsset, order.InAmount); err != nil {
		u.unwind()
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	u.push(func() error { return e.ledger.TransferFrom(caller, VaultAddress, depositAsset, order.InAmount) })
	if err := e.ledger.TransferFrom(VaultAddress, order.Creator, demandAsset, inAmt); err != nil {
		u.unwind()
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	u.push(func() error { return e.ledger.TransferFrom(order.Creator, VaultAddress, demandAsset, inAmt) })
	if err := e.state.CustodyDebit(order.InAsset, order.InAmount); err != nil {
		u.unwind()
		return err
	}
	order.Status = StatusCompleted
	if err := e.state.OrderPut(order); err != nil {
		_ = e.state.CustodyCredit(order.InAsset, order.InAmount)
		u.unwind()
		return err
	}
	e.emit(NewOrderCompletedEvent(order, caller))
	return nil
}

// Cancel returns the escrowed deposit to the creator. Only the creator may
// cancel, any time while the order is awaiting delivery.
func (e *Engine) Cancel(caller [20]byte, id OrderID) error {
	if err := e.ready(); err != nil {
		return err
	}
	order, ok := e.state.OrderGet(id)
	if !ok {
		return ErrOrderNotFound
	}
	if order.Status != StatusAwaitingDelivery {
		return ErrOrderNotFulfillable
	}
	if caller != order.Creator {
		return ErrNotAuthorized
	}
	return e.returnDeposit(order, StatusCancelled, NewOrderCancelledEvent)
}

// Refund returns the escrowed deposit to the creator once the configured
// timeout has elapsed since creation. Refund is creator-only, symmetric with
// Cancel. Eligibility is evaluated lazily at call time.
func (e *Engine) Refund(caller [20]byte, id OrderID) error {
	if err := e.ready(); err != nil {
		return err
	}
	order, ok := e.state.OrderGet(id)
	if !ok {
		return ErrOrderNotFound
	}
	if order.Status != StatusAwaitingDelivery {
		return ErrOrderNotFulfillable
	}
	if caller != order.Creator {
		return ErrNotAuthorized
	}
	timeout, err := e.Timeout()
	if err != nil {
		return err
	}
	if e.now()-order.CreatedAt < timeout {
		return ErrTimeoutNotElapsed
	}
	return e.returnDeposit(order, StatusRefunded, NewOrderRefundedEvent)
}

// GetOrder returns a copy of the stored order.
func (e *Engine) GetOrder(id OrderID) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	order, ok := e.state.OrderGet(id)
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

// CustodyBalance reports the explicit custody accounting value for an asset:
// the sum of deposits of all orders in that asset still awaiting delivery.
func (e *Engine) CustodyBalance(asset int32) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.CustodyBalance(asset)
}

func (e *Engine) returnDeposit(order *Order, status OrderStatus, eventFn func(*Order) *types.Event) error {
	depositAsset, err := e.resolveAsset(order.InAsset)
	if err != nil {
		return err
	}
	// Same discipline as Fulfill: external moves first, records last, and a
	// failed move unwinds the ones before it.
	u := &unwinder{}
	if err := e.custodian.Withdraw(depositAsset, order.InAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	u.push(func() error { return e.custodian.Deposit(depositAsset, order.InAmount) })
	if err := e.ledger.TransferFrom(VaultAddress, order.Creator, depositAsset, order.InAmount); err != nil {
		u.unwind()
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	u.push(func() error { return e.ledger.TransferFrom(order.Creator, VaultAddress, depositAsset, order.InAmount) })
	if err := e.state.CustodyDebit(order.InAsset, order.InAmount); err != nil {
		u.unwind()
		return err
	}
	order.Status = status
	if err := e.state.OrderPut(order); err != nil {
		_ = e.state.CustodyCredit(order.InAsset, order.InAmount)
		u.unwind()
		return err
	}
	e.emit(eventFn(order))
	return nil
}

// unwinder stacks the compensating move for each external transfer an
// operation has performed. A later failure unwinds the stack in reverse so
// every balance returns to its pre-call position.
type unwinder struct {
	undos []func() error
}

func (u *unwinder) push(undo func() error) { u.undos = append(u.undos, undo) }

func (u *unwinder) unwind() {
	for i := len(u.undos) - 1; i >= 0; i-- {
		_ = u.undos[i]()
	}
}
