package registry

import (
	"strconv"

	"github.com/aerisfi/aeris-contracts/core/types"
)

const (
	// EventTypeAssetRegistered marks the assignment of a new registry index.
	EventTypeAssetRegistered = "registry.asset_registered"
)

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

// NewAssetRegisteredEvent returns the canonical event payload for a freshly
// registered asset.
func NewAssetRegisteredEvent(asset AssetID, index int32) *types.Event {
	return &types.Event{
		Type: EventTypeAssetRegistered,
		Attributes: map[string]string{
			"asset": asset.String(),
			"index": strconv.FormatInt(int64(index), 10),
		},
	}
}
