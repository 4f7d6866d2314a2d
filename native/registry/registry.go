package registry

import (
	"errors"

	"github.com/aerisfi/aeris-contracts/core/events"
	"github.com/aerisfi/aeris-contracts/core/types"
)

var (
	errNilState = errors.New("registry: state not configured")

	// ErrNotAuthorized rejects registration attempts from anyone other than
	// the configured admin.
	ErrNotAuthorized = errors.New("registry: caller not authorized")
	// ErrOutOfRange rejects lookups past the registry's current size.
	ErrOutOfRange = errors.New("registry: index out of range")
)

type engineState interface {
	RegistryAppend(AssetID) (int32, error)
	RegistryIndexOf(AssetID) (int32, bool, error)
	RegistryAssetAt(int32) (AssetID, bool, error)
	RegistryLen() (int32, error)
}

// Engine maintains the append-only asset registry: insertion order assigns
// dense, stable indices that the escrow engine uses as compact asset handles.
// Indices are never reused or shifted once assigned.
type Engine struct {
	state   engineState
	emitter events.Emitter
	admin   [20]byte
}

// NewEngine creates a registry engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAdmin configures the single identity allowed to register assets.
func (e *Engine) SetAdmin(admin [20]byte) { e.admin = admin }

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
	e.emitter.Emit(registryEvent{evt: event})
}

// Register appends every identifier that is not already present, assigning the
// next sequential index to each. Re-registering a known asset is an idempotent
// skip: the existing index is kept and no event is emitted for it.
func (e *Engine) Register(caller [20]byte, assets []AssetID) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.admin {
		return ErrNotAuthorized
	}
	for _, asset := range assets {
		if _, ok, err := e.state.RegistryIndexOf(asset); err != nil {
			return err
		} else if ok {
			continue
		}
		index, err := e.state.RegistryAppend(asset)
		if err != nil {
			return err
		}
		e.emit(NewAssetRegisteredEvent(asset, index))
	}
	return nil
}

// IndexOf returns the index assigned to the asset, or IndexNotFound when the
// asset has never been registered. Pure lookup, no side effects.
func (e *Engine) IndexOf(asset AssetID) (int32, error) {
	if e == nil || e.state == nil {
		return IndexNotFound, errNilState
	}
	index, ok, err := e.state.RegistryIndexOf(asset)
	if err != nil {
		return IndexNotFound, err
	}
	if !ok {
		return IndexNotFound, nil
	}
	return index, nil
}

// AssetAt returns the identifier stored at the given index.
func (e *Engine) AssetAt(index int32) (AssetID, error) {
	if e == nil || e.state == nil {
		return AssetID{}, errNilState
	}
	if index < 0 {
		return AssetID{}, ErrOutOfRange
	}
	asset, ok, err := e.state.RegistryAssetAt(index)
	if err != nil {
		return AssetID{}, err
	}
	if !ok {
		return AssetID{}, ErrOutOfRange
	}
	return asset, nil
}

// Len reports the number of registered assets.
func (e *Engine) Len() (int32, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.RegistryLen()
}

// Contains reports whether the index resolves to a registered asset.
func (e *Engine) Contains(index int32) (bool, error) {
	if index < 0 {
		return false, nil
	}
	length, err := e.Len()
	if err != nil {
		return false, err
	}
	return index < length, nil
}
