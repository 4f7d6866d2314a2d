package core

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/aerisfi/aeris-contracts/native/escrow"
	"github.com/aerisfi/aeris-contracts/native/registry"
	"github.com/aerisfi/aeris-contracts/storage"
)

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func testAsset(fill byte) registry.AssetID {
	var asset registry.AssetID
	for i := range asset {
		asset[i] = fill
	}
	return asset
}

func orderID(s string) escrow.OrderID {
	var id escrow.OrderID
	copy(id[:], s)
	return id
}

type nodeHarness struct {
	node  *Node
	admin [20]byte
	now   int64
	mu    sync.Mutex
}

func newNodeHarness(t *testing.T) *nodeHarness {
	t.Helper()
	h := &nodeHarness{admin: testAddress(0xAD), now: 1_700_000_000}
	h.node = NewNode(storage.NewMemDB(), h.admin)
	h.node.SetNowFunc(func() int64 {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	})
	if err := h.node.RegisterAssets(h.admin, []registry.AssetID{testAsset(0xA1), testAsset(0xB2)}); err != nil {
		t.Fatalf("RegisterAssets: %v", err)
	}
	return h
}

func (h *nodeHarness) advance(seconds int64) {
	h.mu.Lock()
	h.now += seconds
	h.mu.Unlock()
}

func (h *nodeHarness) fund(t *testing.T, owner [20]byte, asset registry.AssetID, amount int64) {
	t.Helper()
	if err := h.node.MintToken(owner, asset, big.NewInt(amount)); err != nil {
		t.Fatalf("MintToken: %v", err)
	}
}

func TestNodeLifecycleRoundTrip(t *testing.T) {
	h := newNodeHarness(t)
	creator := testAddress(0x01)
	fulfiller := testAddress(0x02)
	h.fund(t, creator, testAsset(0xA1), 1_000_000)
	h.fund(t, fulfiller, testAsset(0xB2), 1_000_000)

	order, err := h.node.CreateMarketOrder(creator, orderID("1"), 0, big.NewInt(1_000_000), 1, big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("CreateMarketOrder: %v", err)
	}
	if order.Status != escrow.StatusAwaitingDelivery {
		t.Fatalf("expected awaiting delivery, got %s", order.Status)
	}
	custody, err := h.node.CustodyBalance(0)
	if err != nil {
		t.Fatalf("CustodyBalance: %v", err)
	}
	if custody.Int64() != 1_000_000 {
		t.Fatalf("expected custody 1000000, got %s", custody)
	}

	if err := h.node.FulfillOrder(fulfiller, orderID("1"), 1, big.NewInt(1_000_000), 0, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("FulfillOrder: %v", err)
	}

	balance, err := h.node.TokenBalance(creator, testAsset(0xB2))
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if balance.Int64() != 1_000_000 {
		t.Fatalf("expected creator to hold 1000000 of out asset, got %s", balance)
	}
	balance, err = h.node.TokenBalance(fulfiller, testAsset(0xA1))
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if balance.Int64() != 1_000_000 {
		t.Fatalf("expected fulfiller to hold 1000000 of deposit asset, got %s", balance)
	}
	for asset := int32(0); asset < 2; asset++ {
		custody, err := h.node.CustodyBalance(asset)
		if err != nil {
			t.Fatalf("CustodyBalance: %v", err)
		}
		if custody.Sign() != 0 {
			t.Fatalf("expected custody drained for asset %d, got %s", asset, custody)
		}
	}
}

func TestNodeRacingFulfillmentsSettleOnce(t *testing.T) {
	h := newNodeHarness(t)
	creator := testAddress(0x01)
	h.fund(t, creator, testAsset(0xA1), 1_000_000)

	if _, err := h.node.CreateMarketOrder(creator, orderID("1"), 0, big.NewInt(1_000_000), 1, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("CreateMarketOrder: %v", err)
	}

	fulfillers := [][20]byte{testAddress(0x02), testAddress(0x03)}
	for _, addr := range fulfillers {
		h.fund(t, addr, testAsset(0xB2), 1_000_000)
	}

	errs := make([]error, len(fulfillers))
	var wg sync.WaitGroup
	for i, addr := range fulfillers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.node.FulfillOrder(addr, orderID("1"), 1, big.NewInt(1_000_000), 0, big.NewInt(1_000_000))
		}()
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, escrow.ErrOrderNotFulfillable):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Fatalf("expected exactly one settlement, got %d successes and %d rejections", succeeded, rejected)
	}

	// The loser's funds are untouched and custody is fully drained.
	total := big.NewInt(0)
	for _, addr := range fulfillers {
		balance, err := h.node.TokenBalance(addr, testAsset(0xA1))
		if err != nil {
			t.Fatalf("TokenBalance: %v", err)
		}
		total.Add(total, balance)
	}
	if total.Int64() != 1_000_000 {
		t.Fatalf("expected the deposit to reach exactly one fulfiller, got %s", total)
	}
	custody, err := h.node.CustodyBalance(0)
	if err != nil {
		t.Fatalf("CustodyBalance: %v", err)
	}
	if custody.Sign() != 0 {
		t.Fatalf("expected custody drained, got %s", custody)
	}
}

func TestNodeRefundAfterTimeout(t *testing.T) {
	h := newNodeHarness(t)
	creator := testAddress(0x01)
	h.fund(t, creator, testAsset(0xA1), 1_000_000)

	if err := h.node.SetOrderTimeout(h.admin, 600); err != nil {
		t.Fatalf("SetOrderTimeout: %v", err)
	}
	if _, err := h.node.CreateMarketOrder(creator, orderID("1"), 0, big.NewInt(1_000_000), 1, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("CreateMarketOrder: %v", err)
	}
	if err := h.node.RefundOrder(creator, orderID("1")); !errors.Is(err, escrow.ErrTimeoutNotElapsed) {
		t.Fatalf("expected ErrTimeoutNotElapsed, got %v", err)
	}
	h.advance(600)
	if err := h.node.RefundOrder(creator, orderID("1")); err != nil {
		t.Fatalf("RefundOrder: %v", err)
	}
	balance, err := h.node.TokenBalance(creator, testAsset(0xA1))
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if balance.Int64() != 1_000_000 {
		t.Fatalf("expected full refund, got %s", balance)
	}
}

func TestNodeSeedOrderTimeout(t *testing.T) {
	h := newNodeHarness(t)

	if err := h.node.SeedOrderTimeout(3600); err != nil {
		t.Fatalf("SeedOrderTimeout: %v", err)
	}
	seconds, err := h.node.OrderTimeout()
	if err != nil {
		t.Fatalf("OrderTimeout: %v", err)
	}
	if seconds != 3600 {
		t.Fatalf("expected 3600, got %d", seconds)
	}

	// An already-persisted window wins over later seeds.
	if err := h.node.SeedOrderTimeout(60); err != nil {
		t.Fatalf("SeedOrderTimeout: %v", err)
	}
	seconds, err = h.node.OrderTimeout()
	if err != nil {
		t.Fatalf("OrderTimeout: %v", err)
	}
	if seconds != 3600 {
		t.Fatalf("expected seeded value preserved, got %d", seconds)
	}

	// An explicit admin change still overrides.
	if err := h.node.SetOrderTimeout(h.admin, 120); err != nil {
		t.Fatalf("SetOrderTimeout: %v", err)
	}
	seconds, err = h.node.OrderTimeout()
	if err != nil {
		t.Fatalf("OrderTimeout: %v", err)
	}
	if seconds != 120 {
		t.Fatalf("expected 120, got %d", seconds)
	}
}

func TestNodeRegistryLookups(t *testing.T) {
	h := newNodeHarness(t)

	index, err := h.node.AssetIndexOf(testAsset(0xA1))
	if err != nil {
		t.Fatalf("AssetIndexOf: %v", err)
	}
	if index != 0 {
		t.Fatalf("expected index 0, got %d", index)
	}
	index, err = h.node.AssetIndexOf(testAsset(0x99))
	if err != nil {
		t.Fatalf("AssetIndexOf: %v", err)
	}
	if index != registry.IndexNotFound {
		t.Fatalf("expected sentinel, got %d", index)
	}
	asset, err := h.node.AssetAt(1)
	if err != nil {
		t.Fatalf("AssetAt: %v", err)
	}
	if asset != testAsset(0xB2) {
		t.Fatal("AssetAt returned wrong asset")
	}
	if _, err := h.node.AssetAt(5); !errors.Is(err, registry.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if err := h.node.RegisterAssets(testAddress(0x01), []registry.AssetID{testAsset(0xC3)}); !errors.Is(err, registry.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}
