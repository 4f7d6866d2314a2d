package rpc

import (
	"net/http"

	"github.com/aerisfi/aeris-contracts/native/registry"
)

type tokenBalanceParams struct {
	Owner string `json:"owner"`
	Asset string `json:"asset"`
}

type tokenMintParams struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, req *RPCRequest) {
	var params tokenBalanceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := registry.ParseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.TokenBalance(owner, asset)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
}

func (s *Server) handleTokenMint(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params tokenMintParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := registry.ParseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.MintToken(owner, asset, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "minted"})
}
