package rpc

import (
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/aerisfi/aeris-contracts/native/escrow"
)

type orderCreateParams struct {
	Caller    string `json:"caller"`
	ID        string `json:"id,omitempty"`
	InAsset   int32  `json:"inAsset"`
	InAmount  string `json:"inAmount"`
	OutAsset  int32  `json:"outAsset"`
	OutAmount string `json:"outAmount"`
	Expiry    int64  `json:"expiry,omitempty"`
}

type orderFulfillParams struct {
	Caller    string `json:"caller"`
	ID        string `json:"id"`
	InAsset   int32  `json:"inAsset"`
	InAmount  string `json:"inAmount"`
	OutAsset  int32  `json:"outAsset"`
	OutAmount string `json:"outAmount"`
}

type orderActorParams struct {
	Caller string `json:"caller"`
	ID     string `json:"id"`
}

type orderIDParams struct {
	ID string `json:"id"`
}

type timeoutParams struct {
	Caller  string `json:"caller"`
	Seconds int64  `json:"seconds"`
}

type custodyParams struct {
	Asset int32 `json:"asset"`
}

type orderJSON struct {
	ID        string `json:"id"`
	Creator   string `json:"creator"`
	InAsset   int32  `json:"inAsset"`
	InAmount  string `json:"inAmount"`
	OutAsset  int32  `json:"outAsset"`
	OutAmount string `json:"outAmount"`
	Kind      string `json:"kind"`
	Expiry    int64  `json:"expiry,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	Status    string `json:"status"`
}

func orderToJSON(o *escrow.Order) orderJSON {
	out := orderJSON{
		ID:        o.ID.String(),
		Creator:   "0x" + hex.EncodeToString(o.Creator[:]),
		InAsset:   o.InAsset,
		InAmount:  o.InAmount.String(),
		OutAsset:  o.OutAsset,
		OutAmount: o.OutAmount.String(),
		Kind:      o.Kind.String(),
		CreatedAt: o.CreatedAt,
		Status:    o.Status.String(),
	}
	if o.Kind == escrow.KindLimit {
		out.Expiry = o.Expiry
	}
	return out
}

// resolveOrderID parses the supplied id, or derives a fresh one from a random
// UUID when the caller leaves it empty. A UUID is exactly the 16 bytes the
// order identifier requires.
func resolveOrderID(value string) (escrow.OrderID, error) {
	if strings.TrimSpace(value) == "" {
		return escrow.OrderID(uuid.New()), nil
	}
	return escrow.ParseOrderID(value)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, req *RPCRequest, limit bool) {
	var params orderCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	orderID, err := resolveOrderID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	inAmount, err := parseAmount(params.InAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	outAmount, err := parseAmount(params.OutAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	var order *escrow.Order
	if limit {
		order, err = s.node.CreateLimitOrder(caller, orderID, params.InAsset, inAmount, params.OutAsset, outAmount, params.Expiry)
	} else {
		order, err = s.node.CreateMarketOrder(caller, orderID, params.InAsset, inAmount, params.OutAsset, outAmount)
	}
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) handleFulfill(w http.ResponseWriter, req *RPCRequest) {
	var params orderFulfillParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	orderID, err := escrow.ParseOrderID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	inAmount, err := parseAmount(params.InAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	outAmount, err := parseAmount(params.OutAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.FulfillOrder(caller, orderID, params.InAsset, inAmount, params.OutAsset, outAmount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "completed"})
}

func (s *Server) handleCancel(w http.ResponseWriter, req *RPCRequest) {
	s.handleCreatorAction(w, req, s.node.CancelOrder, "cancelled")
}

func (s *Server) handleRefund(w http.ResponseWriter, req *RPCRequest) {
	s.handleCreatorAction(w, req, s.node.RefundOrder, "refunded")
}

func (s *Server) handleCreatorAction(w http.ResponseWriter, req *RPCRequest, action func([20]byte, escrow.OrderID) error, status string) {
	var params orderActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	orderID, err := escrow.ParseOrderID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := action(caller, orderID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": status})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, req *RPCRequest) {
	var params orderIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	orderID, err := escrow.ParseOrderID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	order, err := s.node.GetOrder(orderID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) handleGetTimeout(w http.ResponseWriter, req *RPCRequest) {
	seconds, err := s.node.OrderTimeout()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]int64{"seconds": seconds})
}

func (s *Server) handleSetTimeout(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params timeoutParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.SetOrderTimeout(caller, params.Seconds); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]int64{"seconds": params.Seconds})
}

func (s *Server) handleCustodyBalance(w http.ResponseWriter, req *RPCRequest) {
	var params custodyParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.CustodyBalance(params.Asset)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
}
