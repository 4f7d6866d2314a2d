package registry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aerisfi/aeris-contracts/core/events"
)

type mockState struct {
	assets  []AssetID
	indices map[AssetID]int32
}

func newMockState() *mockState {
	return &mockState{indices: make(map[AssetID]int32)}
}

func (m *mockState) RegistryAppend(asset AssetID) (int32, error) {
	index := int32(len(m.assets))
	m.assets = append(m.assets, asset)
	m.indices[asset] = index
	return index, nil
}

func (m *mockState) RegistryIndexOf(asset AssetID) (int32, bool, error) {
	index, ok := m.indices[asset]
	return index, ok, nil
}

func (m *mockState) RegistryAssetAt(index int32) (AssetID, bool, error) {
	if index < 0 || int(index) >= len(m.assets) {
		return AssetID{}, false, nil
	}
	return m.assets[index], true, nil
}

func (m *mockState) RegistryLen() (int32, error) {
	return int32(len(m.assets)), nil
}

type countingEmitter struct {
	emitted []string
}

func (c *countingEmitter) Emit(evt events.Event) {
	c.emitted = append(c.emitted, evt.EventType())
}

func testAsset(fill byte) AssetID {
	var asset AssetID
	for i := range asset {
		asset[i] = fill
	}
	return asset
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestEngine() (*Engine, *mockState, *countingEmitter) {
	state := newMockState()
	emitter := &countingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetAdmin(testAddress(0xAD))
	engine.SetEmitter(emitter)
	return engine, state, emitter
}

func TestRegisterAssignsSequentialIndices(t *testing.T) {
	engine, _, emitter := newTestEngine()
	admin := testAddress(0xAD)

	assets := make([]AssetID, 10)
	for i := range assets {
		assets[i] = testAsset(byte(i + 1))
	}
	if err := engine.Register(admin, assets); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for i, asset := range assets {
		index, err := engine.IndexOf(asset)
		if err != nil {
			t.Fatalf("IndexOf: %v", err)
		}
		if index != int32(i) {
			t.Fatalf("expected index %d for asset %d, got %d", i, i, index)
		}
		got, err := engine.AssetAt(int32(i))
		if err != nil {
			t.Fatalf("AssetAt(%d): %v", i, err)
		}
		if got != asset {
			t.Fatalf("AssetAt(%d) returned wrong asset", i)
		}
	}
	length, err := engine.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if length != 10 {
		t.Fatalf("expected 10 assets, got %d", length)
	}
	if len(emitter.emitted) != 10 {
		t.Fatalf("expected one event per new asset, got %d", len(emitter.emitted))
	}
	for _, eventType := range emitter.emitted {
		if eventType != EventTypeAssetRegistered {
			t.Fatalf("unexpected event type %q", eventType)
		}
	}
}

func TestRegisterSkipsKnownAssets(t *testing.T) {
	engine, _, emitter := newTestEngine()
	admin := testAddress(0xAD)

	if err := engine.Register(admin, []AssetID{testAsset(0x01), testAsset(0x02)}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// A repeated identifier keeps its index and emits nothing new.
	if err := engine.Register(admin, []AssetID{testAsset(0x01), testAsset(0x03)}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	index, err := engine.IndexOf(testAsset(0x01))
	if err != nil {
		t.Fatalf("IndexOf: %v", err)
	}
	if index != 0 {
		t.Fatalf("expected index 0 preserved, got %d", index)
	}
	length, err := engine.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if length != 3 {
		t.Fatalf("expected 3 assets, got %d", length)
	}
	if len(emitter.emitted) != 3 {
		t.Fatalf("expected 3 events total, got %d", len(emitter.emitted))
	}
}

func TestRegisterRejectsNonAdmin(t *testing.T) {
	engine, _, _ := newTestEngine()
	err := engine.Register(testAddress(0x01), []AssetID{testAsset(0x02)})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	length, err := engine.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if length != 0 {
		t.Fatalf("expected empty registry, got %d", length)
	}
}

func TestIndexOfUnknownAssetReturnsSentinel(t *testing.T) {
	engine, _, _ := newTestEngine()
	index, err := engine.IndexOf(testAsset(0x99))
	if err != nil {
		t.Fatalf("IndexOf: %v", err)
	}
	if index != IndexNotFound {
		t.Fatalf("expected %d, got %d", IndexNotFound, index)
	}
}

func TestAssetAtOutOfRange(t *testing.T) {
	engine, _, _ := newTestEngine()
	if err := engine.Register(testAddress(0xAD), []AssetID{testAsset(0x01)}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, index := range []int32{-1, 1, 42} {
		t.Run(fmt.Sprintf("index_%d", index), func(t *testing.T) {
			if _, err := engine.AssetAt(index); !errors.Is(err, ErrOutOfRange) {
				t.Fatalf("expected ErrOutOfRange, got %v", err)
			}
		})
	}
}

func TestContains(t *testing.T) {
	engine, _, _ := newTestEngine()
	if err := engine.Register(testAddress(0xAD), []AssetID{testAsset(0x01), testAsset(0x02)}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	cases := []struct {
		index int32
		want  bool
	}{
		{-1, false},
		{0, true},
		{1, true},
		{2, false},
	}
	for _, tc := range cases {
		ok, err := engine.Contains(tc.index)
		if err != nil {
			t.Fatalf("Contains(%d): %v", tc.index, err)
		}
		if ok != tc.want {
			t.Fatalf("Contains(%d) = %v, want %v", tc.index, ok, tc.want)
		}
	}
}

func TestParseAssetIDRoundTrip(t *testing.T) {
	original := testAsset(0x7F)
	parsed, err := ParseAssetID(original.String())
	if err != nil {
		t.Fatalf("ParseAssetID: %v", err)
	}
	if parsed != original {
		t.Fatalf("round trip mismatch: %s != %s", parsed, original)
	}
	if _, err := ParseAssetID("0x1234"); err == nil {
		t.Fatal("expected error for short identifier")
	}
	if _, err := ParseAssetID("not-hex"); err == nil {
		t.Fatal("expected error for non-hex identifier")
	}
}
