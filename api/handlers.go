package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/vitwit/wrldpay"
	"github.com/vitwit/wrldpay/listener"
	"github.com/vitwit/wrldpay/types"
	"github.com/vitwit/wrldpay/utils"
)

type paymentRequest struct {
	Reference      string `json:"reference"`
	Network        string `json:"network" validate:"required,oneof=ethereum polygon"`
	Amount         string `json:"amount" validate:"required"`
	Identity       string `json:"identity" validate:"required,uuid"`
	Reason         string `json:"reason" validate:"max=128"`
	Payload        []byte `json:"payload"`
	AllowDuplicate bool   `json:"allowDuplicate"`
}

type peerPaymentRequest struct {
	Reference string `json:"reference"`
	Network   string `json:"network" validate:"required,oneof=ethereum polygon"`
	Amount    string `json:"amount" validate:"required"`
	From      string `json:"from" validate:"required,uuid"`
	To        string `json:"to" validate:"required,uuid,nefield=From"`
	Reason    string `json:"reason" validate:"max=128"`
}

type intentView struct {
	Kind           string    `json:"kind"`
	Reference      string    `json:"reference"`
	Network        string    `json:"network"`
	Amount         string    `json:"amount"`
	Identity       string    `json:"identity,omitempty"`
	From           string    `json:"from,omitempty"`
	To             string    `json:"to,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	AllowDuplicate bool      `json:"allowDuplicate,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type walletView struct {
	Address         string `json:"address"`
	PolygonBalance  string `json:"polygonBalance"`
	EthereumBalance string `json:"ethereumBalance"`
}

func paymentView(p types.PaymentIntent) intentView {
	return intentView{
		Kind:           "payment",
		Reference:      p.Reference.Dec(),
		Network:        p.Network.String(),
		Amount:         p.ExpectedAmount.String(),
		Identity:       p.Identity.String(),
		Reason:         p.Reason,
		AllowDuplicate: p.AllowDuplicateConsumption,
		CreatedAt:      p.CreatedAt,
	}
}

func peerView(p types.PeerToPeerIntent) intentView {
	return intentView{
		Kind:      "peer",
		Reference: p.Reference.Dec(),
		Network:   p.Network.String(),
		Amount:    p.ExpectedAmount.String(),
		From:      p.From.String(),
		To:        p.To.String(),
		Reason:    p.Reason,
		CreatedAt: p.CreatedAt,
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, "invalid payload")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			badRequest(w, fmt.Sprintf("%s failed %q", verrs[0].Field(), verrs[0].Tag()))
			return false
		}
		badRequest(w, err.Error())
		return false
	}
	return true
}

func optionalReference(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	return types.ParseReference(s)
}

// CreatePayment registers a pending payment.
func (s *Server) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !s.decode(w, r, &req) {
		return
	}
	ref, err := optionalReference(req.Reference)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := utils.ParseTokenAmount(req.Amount)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	intent, err := s.engine.RequestPayment(wrldpay.PaymentRequest{
		Reference:      ref,
		Network:        types.Network(req.Network),
		Amount:         amount,
		Identity:       uuid.MustParse(req.Identity),
		Reason:         req.Reason,
		Payload:        req.Payload,
		AllowDuplicate: req.AllowDuplicate,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentView(intent))
}

// CreatePeerPayment registers a pending peer-to-peer payment.
func (s *Server) CreatePeerPayment(w http.ResponseWriter, r *http.Request) {
	var req peerPaymentRequest
	if !s.decode(w, r, &req) {
		return
	}
	ref, err := optionalReference(req.Reference)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := utils.ParseTokenAmount(req.Amount)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	intent, err := s.engine.RequestPeerPayment(wrldpay.PeerPaymentRequest{
		Reference: ref,
		Network:   types.Network(req.Network),
		Amount:    amount,
		From:      uuid.MustParse(req.From),
		To:        uuid.MustParse(req.To),
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, peerView(intent))
}

// ListPayments returns every pending intent, payments first.
func (s *Server) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments := s.engine.PendingPayments()
	peers := s.engine.PendingPeerPayments()

	out := make([]intentView, 0, len(payments)+len(peers))
	for _, p := range payments {
		out = append(out, paymentView(p))
	}
	for _, p := range peers {
		out = append(out, peerView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// CancelPayment drops a pending intent by network and reference.
func (s *Server) CancelPayment(w http.ResponseWriter, r *http.Request) {
	network, err := types.ParseNetwork(chi.URLParam(r, "network"))
	if err != nil {
		writeError(w, err)
		return
	}
	ref, err := types.ParseReference(chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.CancelPayment(ref, network); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PlayerWallets returns the cached wallet balances of a player.
func (s *Server) PlayerWallets(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid player id")
		return
	}
	wallets := s.engine.Wallets(id)
	out := make([]walletView, 0, len(wallets))
	for _, wl := range wallets {
		out = append(out, walletView{
			Address:         wl.Address.Hex(),
			PolygonBalance:  wl.PolygonBalance.String(),
			EthereumBalance: wl.EthereumBalance.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Listeners reports the subscription state of every network.
func (s *Server) Listeners(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ListenerStates())
}

// Health is OK while every listener is subscribed.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	states := s.engine.ListenerStates()
	status := http.StatusOK
	for _, st := range states {
		if st.State != listener.StateActive {
			status = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, status, map[string]any{"ok": status == http.StatusOK, "listeners": states})
}
