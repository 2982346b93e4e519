package mintapi

import (
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/mint"
)

type keyEntry struct {
	Id     cashu.KeysetId    `json:"id"`
	Unit   string            `json:"unit"`
	Active bool              `json:"active"`
	Keys   map[string]string `json:"keys"`
}

// toKeyEntry renders a keyset's derived public keys as a decimal-amount
// -> hex-compressed-pubkey map, the wire shape of spec.md §6's
// `keys:[(amount,pubkey)]`.
func toKeyEntry(kk mint.KeysetKeys) keyEntry {
	keys := make(map[string]string, len(kk.Keys))
	for amount, pub := range kk.Keys {
		keys[strconv.FormatUint(amount, 10)] = hex.EncodeToString(pub.SerializeCompressed())
	}
	return keyEntry{Id: kk.Id, Unit: kk.Unit.String(), Active: kk.Active, Keys: keys}
}

type keysResponse struct {
	Keysets []keyEntry `json:"keysets"`
}

func (s *Server) getKeys(rw http.ResponseWriter, req *http.Request) {
	entries, err := s.mint.Keys(req.Context(), nil)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeKeysResponse(rw, entries)
}

func (s *Server) getKeysById(rw http.ResponseWriter, req *http.Request) {
	idStr := mux.Vars(req)["keyset_id"]
	id := cashu.KeysetId(idStr)
	entries, err := s.mint.Keys(req.Context(), &id)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeKeysResponse(rw, entries)
}

func writeKeysResponse(rw http.ResponseWriter, entries []mint.KeysetKeys) {
	resp := keysResponse{Keysets: make([]keyEntry, len(entries))}
	for i, e := range entries {
		resp.Keysets[i] = toKeyEntry(e)
	}
	writeJSON(rw, resp)
}

type keysetSummaryWire struct {
	Id     cashu.KeysetId `json:"id"`
	Unit   string         `json:"unit"`
	Active bool           `json:"active"`
}

type keysetsResponse struct {
	Keysets []keysetSummaryWire `json:"keysets"`
}

func (s *Server) getKeysets(rw http.ResponseWriter, req *http.Request) {
	rows, err := s.mint.Keysets(req.Context())
	if err != nil {
		writeError(rw, err)
		return
	}
	resp := keysetsResponse{Keysets: make([]keysetSummaryWire, len(rows))}
	for i, r := range rows {
		resp.Keysets[i] = keysetSummaryWire{Id: r.Id, Unit: r.Unit.String(), Active: r.Active}
	}
	writeJSON(rw, resp)
}

type mintQuoteRequest struct {
	Unit        string `json:"unit"`
	Amount      uint64 `json:"amount"`
	Description string `json:"description,omitempty"`
}

type mintQuoteResponse struct {
	QuoteId string `json:"quote"`
	Request string `json:"request"`
	State   string `json:"state"`
	Expiry  int64  `json:"expiry"`
}

func (s *Server) postMintQuote(rw http.ResponseWriter, req *http.Request) {
	method := mux.Vars(req)["method"]
	var body mintQuoteRequest
	if err := decodeJsonReqBody(req, &body); err != nil {
		writeError(rw, err)
		return
	}
	unit, ok := parseUnit(rw, body.Unit)
	if !ok {
		return
	}

	quote, err := s.mint.MintQuote(req.Context(), method, unit, body.Amount)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, mintQuoteResponse{
		QuoteId: quote.Id, Request: quote.PaymentPayload, State: quote.State.String(), Expiry: quote.Expiry,
	})
}

func (s *Server) getMintQuoteState(rw http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	state, err := s.mint.MintQuoteState(req.Context(), vars["method"], vars["quote_id"])
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, mintQuoteResponse{
		QuoteId: state.Id, Request: state.PaymentPayload, State: state.State.String(), Expiry: state.Expiry,
	})
}

type mintRequest struct {
	Quote   string                `json:"quote"`
	Outputs cashu.BlindedMessages `json:"outputs"`
}

type signaturesResponse struct {
	Signatures cashu.BlindedSignatures `json:"signatures"`
}

func (s *Server) postMint(rw http.ResponseWriter, req *http.Request) {
	method := mux.Vars(req)["method"]
	var body mintRequest
	if err := decodeJsonReqBody(req, &body); err != nil {
		writeError(rw, err)
		return
	}
	sigs, err := s.mint.Mint(req.Context(), method, body.Quote, body.Outputs)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, signaturesResponse{Signatures: sigs})
}

type meltQuoteRequest struct {
	Unit    string `json:"unit"`
	Request string `json:"request"`
}

type meltQuoteResponse struct {
	QuoteId     string   `json:"quote"`
	Amount      uint64   `json:"amount"`
	Fee         uint64   `json:"fee_reserve"`
	State       string   `json:"state"`
	Expiry      int64    `json:"expiry"`
	TransferIds []string `json:"transfer_ids,omitempty"`
}

func (s *Server) postMeltQuote(rw http.ResponseWriter, req *http.Request) {
	method := mux.Vars(req)["method"]
	var body meltQuoteRequest
	if err := decodeJsonReqBody(req, &body); err != nil {
		writeError(rw, err)
		return
	}
	unit, ok := parseUnit(rw, body.Unit)
	if !ok {
		return
	}
	quote, err := s.mint.MeltQuote(req.Context(), method, unit, body.Request)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, meltQuoteResponse{
		QuoteId: quote.Id, Amount: quote.Amount, Fee: quote.Fee, State: quote.State.String(), Expiry: quote.Expiry,
	})
}

func (s *Server) getMeltQuoteState(rw http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	state, err := s.mint.MeltQuoteState(req.Context(), vars["method"], vars["quote_id"])
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, meltQuoteResponse{
		QuoteId: state.Id, Amount: state.Amount, Fee: state.Fee, State: state.State.String(),
		Expiry: state.Expiry, TransferIds: state.TransferIds,
	})
}

type meltRequest struct {
	Quote  string       `json:"quote"`
	Inputs cashu.Proofs `json:"inputs"`
}

type meltResponse struct {
	State       string   `json:"state"`
	TransferIds []string `json:"transfer_ids,omitempty"`
}

func (s *Server) postMelt(rw http.ResponseWriter, req *http.Request) {
	method := mux.Vars(req)["method"]
	var body meltRequest
	if err := decodeJsonReqBody(req, &body); err != nil {
		writeError(rw, err)
		return
	}
	quote, err := s.mint.Melt(req.Context(), method, body.Quote, body.Inputs)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, meltResponse{State: quote.State.String(), TransferIds: quote.TransferIds})
}

type swapRequest struct {
	Inputs  cashu.Proofs          `json:"inputs"`
	Outputs cashu.BlindedMessages `json:"outputs"`
}

func (s *Server) postSwap(rw http.ResponseWriter, req *http.Request) {
	var body swapRequest
	if err := decodeJsonReqBody(req, &body); err != nil {
		writeError(rw, err)
		return
	}
	sigs, err := s.mint.Swap(req.Context(), body.Inputs, body.Outputs)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, signaturesResponse{Signatures: sigs})
}

type checkStateRequest struct {
	Ys []string `json:"Ys"`
}

type proofStateWire struct {
	Y     string `json:"Y"`
	State string `json:"state"`
}

type checkStateResponse struct {
	States []proofStateWire `json:"states"`
}

func (s *Server) postCheckState(rw http.ResponseWriter, req *http.Request) {
	var body checkStateRequest
	if err := decodeJsonReqBody(req, &body); err != nil {
		writeError(rw, err)
		return
	}
	states, err := s.mint.CheckState(req.Context(), body.Ys)
	if err != nil {
		writeError(rw, err)
		return
	}
	resp := checkStateResponse{States: make([]proofStateWire, 0, len(body.Ys))}
	for _, y := range body.Ys {
		resp.States = append(resp.States, proofStateWire{Y: y, State: states[y].String()})
	}
	writeJSON(rw, resp)
}

type restoreRequest struct {
	Outputs cashu.BlindedMessages `json:"outputs"`
}

type restoreResponse struct {
	Outputs    cashu.BlindedMessages   `json:"outputs"`
	Signatures cashu.BlindedSignatures `json:"signatures"`
}

func (s *Server) postRestore(rw http.ResponseWriter, req *http.Request) {
	var body restoreRequest
	if err := decodeJsonReqBody(req, &body); err != nil {
		writeError(rw, err)
		return
	}
	blindedSecrets := make([]string, len(body.Outputs))
	for i, bm := range body.Outputs {
		blindedSecrets[i] = bm.B_
	}
	rows, err := s.mint.Restore(req.Context(), blindedSecrets)
	if err != nil {
		writeError(rw, err)
		return
	}

	byB_ := make(map[string]cashu.BlindedSignature, len(rows))
	for _, row := range rows {
		byB_[row.B_] = row.Signature
	}

	resp := restoreResponse{}
	for _, bm := range body.Outputs {
		if sig, ok := byB_[bm.B_]; ok {
			resp.Outputs = append(resp.Outputs, bm)
			resp.Signatures = append(resp.Signatures, sig)
		}
	}
	writeJSON(rw, resp)
}

type mintInfoResponse struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Pubkey      string            `json:"pubkey"`
	Methods     []mint.MethodInfo `json:"methods"`
}

func (s *Server) getMintInfo(rw http.ResponseWriter, _ *http.Request) {
	info := s.mint.GetMintInfo()
	writeJSON(rw, mintInfoResponse{
		Name: info.Name, Description: info.Description, Pubkey: info.Pubkey, Methods: info.Methods,
	})
}
