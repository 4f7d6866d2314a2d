// Package state persists the escrow service's mutable state (the order
// table, the asset registry, per-account token balances and the custody
// ledger) in a storage.Database key-value store.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/aerisfi/aeris-contracts/native/escrow"
	"github.com/aerisfi/aeris-contracts/native/registry"
	"github.com/aerisfi/aeris-contracts/storage"
)

var (
	keyRegistryLen = []byte("registry/len")
	keyTimeout     = []byte("escrow/params/timeout")

	prefixRegistryAsset = []byte("registry/asset/")
	prefixRegistryIndex = []byte("registry/index/")
	prefixOrder         = []byte("escrow/order/")
	prefixCustody       = []byte("escrow/custody/")
	prefixBalance       = []byte("token/balance/")
)

// ErrInsufficientBalance is returned by TransferFrom when the owner account
// cannot cover the amount.
var ErrInsufficientBalance = errors.New("state: insufficient token balance")

// Manager implements the state interfaces of the registry and escrow engines
// and doubles as the state-backed token ledger. All methods are single-writer:
// the owning node serializes access.
type Manager struct {
	db storage.Database
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

type storedOrder struct {
	ID        [16]byte
	Creator   [20]byte
	InAsset   uint32
	InAmount  *big.Int
	OutAsset  uint32
	OutAmount *big.Int
	Kind      uint8
	Expiry    uint64
	CreatedAt uint64
	Status    uint8
}

func indexKey(prefix []byte, index int32) []byte {
	key := make([]byte, 0, len(prefix)+4)
	key = append(key, prefix...)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(index))
	return append(key, buf[:]...)
}

func assetKey(prefix []byte, asset registry.AssetID) []byte {
	key := make([]byte, 0, len(prefix)+len(asset))
	key = append(key, prefix...)
	return append(key, asset[:]...)
}

// --- Registry state ---

// RegistryLen reports the number of registered assets.
func (m *Manager) RegistryLen() (int32, error) {
	raw, err := m.db.Get(keyRegistryLen)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var length uint32
	if err := rlp.DecodeBytes(raw, &length); err != nil {
		return 0, fmt.Errorf("state: decode registry length: %w", err)
	}
	return int32(length), nil
}

// RegistryAppend assigns the next sequential index to the asset. The caller
// (the registry engine) is responsible for duplicate screening.
func (m *Manager) RegistryAppend(asset registry.AssetID) (int32, error) {
	length, err := m.RegistryLen()
	if err != nil {
		return 0, err
	}
	index := length
	if err := m.db.Put(indexKey(prefixRegistryAsset, index), asset[:]); err != nil {
		return 0, err
	}
	encodedIndex, err := rlp.EncodeToBytes(uint32(index))
	if err != nil {
		return 0, err
	}
	if err := m.db.Put(assetKey(prefixRegistryIndex, asset), encodedIndex); err != nil {
		return 0, err
	}
	encodedLen, err := rlp.EncodeToBytes(uint32(length + 1))
	if err != nil {
		return 0, err
	}
	if err := m.db.Put(keyRegistryLen, encodedLen); err != nil {
		return 0, err
	}
	return index, nil
}

// RegistryIndexOf returns the index assigned to the asset, if any.
func (m *Manager) RegistryIndexOf(asset registry.AssetID) (int32, bool, error) {
	raw, err := m.db.Get(assetKey(prefixRegistryIndex, asset))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var index uint32
	if err := rlp.DecodeBytes(raw, &index); err != nil {
		return 0, false, fmt.Errorf("state: decode registry index: %w", err)
	}
	return int32(index), true, nil
}

// RegistryAssetAt returns the asset stored at the given index, if any.
func (m *Manager) RegistryAssetAt(index int32) (registry.AssetID, bool, error) {
	var asset registry.AssetID
	if index < 0 {
		return asset, false, nil
	}
	raw, err := m.db.Get(indexKey(prefixRegistryAsset, index))
	if errors.Is(err, storage.ErrNotFound) {
		return asset, false, nil
	}
	if err != nil {
		return asset, false, err
	}
	if len(raw) != len(asset) {
		return asset, false, fmt.Errorf("state: corrupt asset record at index %d", index)
	}
	copy(asset[:], raw)
	return asset, true, nil
}

// --- Order state ---

// OrderPut validates and persists the order record.
func (m *Manager) OrderPut(order *escrow.Order) error {
	sanitized, err := escrow.SanitizeOrder(order)
	if err != nil {
		return err
	}
	stored := storedOrder{
		ID:        sanitized.ID,
		Creator:   sanitized.Creator,
		InAsset:   uint32(sanitized.InAsset),
		InAmount:  sanitized.InAmount,
		OutAsset:  uint32(sanitized.OutAsset),
		OutAmount: sanitized.OutAmount,
		Kind:      uint8(sanitized.Kind),
		Expiry:    uint64(sanitized.Expiry),
		CreatedAt: uint64(sanitized.CreatedAt),
		Status:    uint8(sanitized.Status),
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode order: %w", err)
	}
	key := append(append([]byte(nil), prefixOrder...), sanitized.ID[:]...)
	return m.db.Put(key, encoded)
}

// OrderGet returns the stored order, if any.
func (m *Manager) OrderGet(id escrow.OrderID) (*escrow.Order, bool) {
	key := append(append([]byte(nil), prefixOrder...), id[:]...)
	raw, err := m.db.Get(key)
	if err != nil {
		return nil, false
	}
	var stored storedOrder
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false
	}
	order := &escrow.Order{
		ID:        stored.ID,
		Creator:   stored.Creator,
		InAsset:   int32(stored.InAsset),
		InAmount:  new(big.Int).Set(stored.InAmount),
		OutAsset:  int32(stored.OutAsset),
		OutAmount: new(big.Int).Set(stored.OutAmount),
		Kind:      escrow.OrderKind(stored.Kind),
		Expiry:    int64(stored.Expiry),
		CreatedAt: int64(stored.CreatedAt),
		Status:    escrow.OrderStatus(stored.Status),
	}
	return order, true
}

// --- Custody ledger ---

func (m *Manager) custody(asset int32) (*big.Int, error) {
	raw, err := m.db.Get(indexKey(prefixCustody, asset))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// CustodyBalance reports the tracked custody amount for the asset index.
func (m *Manager) CustodyBalance(asset int32) (*big.Int, error) {
	return m.custody(asset)
}

// CustodyCredit increases the tracked custody amount for the asset index.
func (m *Manager) CustodyCredit(asset int32, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: custody credit must be non-negative")
	}
	balance, err := m.custody(asset)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	return m.db.Put(indexKey(prefixCustody, asset), balance.Bytes())
}

// CustodyDebit decreases the tracked custody amount for the asset index. An
// attempted underflow reports corruption: custody must always cover the sum of
// awaiting orders.
func (m *Manager) CustodyDebit(asset int32, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: custody debit must be non-negative")
	}
	balance, err := m.custody(asset)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("state: custody underflow for asset %d", asset)
	}
	balance.Sub(balance, amount)
	return m.db.Put(indexKey(prefixCustody, asset), balance.Bytes())
}

// --- Parameters ---

// TimeoutPut persists the refund eligibility window.
func (m *Manager) TimeoutPut(seconds int64) error {
	if seconds < 0 {
		return fmt.Errorf("state: timeout must be non-negative")
	}
	encoded, err := rlp.EncodeToBytes(uint64(seconds))
	if err != nil {
		return err
	}
	return m.db.Put(keyTimeout, encoded)
}

// TimeoutGet returns the persisted refund window, if one has been set.
func (m *Manager) TimeoutGet() (int64, bool, error) {
	raw, err := m.db.Get(keyTimeout)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var seconds uint64
	if err := rlp.DecodeBytes(raw, &seconds); err != nil {
		return 0, false, fmt.Errorf("state: decode timeout: %w", err)
	}
	return int64(seconds), true, nil
}

// --- Token ledger ---

func balanceKey(asset registry.AssetID, owner [20]byte) []byte {
	key := make([]byte, 0, len(prefixBalance)+len(asset)+1+len(owner))
	key = append(key, prefixBalance...)
	key = append(key, asset[:]...)
	key = append(key, '/')
	return append(key, owner[:]...)
}

// BalanceOf reports the owner's balance of the asset.
func (m *Manager) BalanceOf(owner [20]byte, asset registry.AssetID) (*big.Int, error) {
	raw, err := m.db.Get(balanceKey(asset, owner))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// Mint credits freshly issued balance to the owner. Used for provisioning
// deployments and integration tests; the escrow engine itself never mints.
func (m *Manager) Mint(owner [20]byte, asset registry.AssetID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: mint amount must be positive")
	}
	balance, err := m.BalanceOf(owner, asset)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	return m.db.Put(balanceKey(asset, owner), balance.Bytes())
}

// TransferFrom moves balance between accounts, implementing the escrow
// engine's TokenLedger collaborator.
func (m *Manager) TransferFrom(owner, recipient [20]byte, asset registry.AssetID, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 || owner == recipient {
		return nil
	}
	fromBalance, err := m.BalanceOf(owner, asset)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := m.BalanceOf(recipient, asset)
	if err != nil {
		return err
	}
	fromBalance.Sub(fromBalance, amount)
	toBalance.Add(toBalance, amount)
	if err := m.db.Put(balanceKey(asset, owner), fromBalance.Bytes()); err != nil {
		return err
	}
	return m.db.Put(balanceKey(asset, recipient), toBalance.Bytes())
}
