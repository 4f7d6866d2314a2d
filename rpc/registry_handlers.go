package rpc

import (
	"net/http"

	"github.com/aerisfi/aeris-contracts/native/registry"
)

type registryRegisterParams struct {
	Caller string   `json:"caller"`
	Assets []string `json:"assets"`
}

type registryAssetParams struct {
	Asset string `json:"asset"`
}

type registryIndexParams struct {
	Index int32 `json:"index"`
}

func (s *Server) handleRegistryRegister(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params registryRegisterParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	assets := make([]registry.AssetID, 0, len(params.Assets))
	for _, raw := range params.Assets {
		asset, err := registry.ParseAssetID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
			return
		}
		assets = append(assets, asset)
	}
	if err := s.node.RegisterAssets(caller, assets); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]int{"registered": len(assets)})
}

func (s *Server) handleRegistryIndexOf(w http.ResponseWriter, req *RPCRequest) {
	var params registryAssetParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := registry.ParseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	index, err := s.node.AssetIndexOf(asset)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]int32{"index": index})
}

func (s *Server) handleRegistryAssetAt(w http.ResponseWriter, req *RPCRequest) {
	var params registryIndexParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := s.node.AssetAt(params.Index)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"asset": asset.String()})
}
