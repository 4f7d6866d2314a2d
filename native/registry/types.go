package registry

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AssetID is the 20-byte identifier of a tradable fungible asset, matching the
// address format of the external token contracts the escrow settles against.
type AssetID [20]byte

// IndexNotFound is the sentinel returned by IndexOf for unregistered assets.
// It is never a valid registry index.
const IndexNotFound int32 = -1

// String renders the identifier as 0x-prefixed lowercase hex.
func (a AssetID) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// ParseAssetID decodes a 0x-prefixed or bare 40-character hex string into an
// asset identifier.
func ParseAssetID(value string) (AssetID, error) {
	var id AssetID
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != len(id)*2 {
		return id, fmt.Errorf("registry: asset id must be %d bytes (got %d hex chars)", len(id), len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("registry: decode asset id: %w", err)
	}
	copy(id[:], decoded)
	return id, nil
}
