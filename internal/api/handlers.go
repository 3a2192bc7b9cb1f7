package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/split"
)

func userIDVar(r *http.Request, name string) ledger.UserID {
	return ledger.UserID(strings.TrimSpace(mux.Vars(r)[name]))
}

func (a *API) handleOwedToMe(w http.ResponseWriter, r *http.Request) {
	debts, err := a.ledger.DebtsOwedToUser(r.Context(), userIDVar(r, "user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, debts)
}

func (a *API) handleIOwe(w http.ResponseWriter, r *http.Request) {
	debts, err := a.ledger.DebtsOwedByUser(r.Context(), userIDVar(r, "user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, debts)
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := a.ledger.Summary(r.Context(), userIDVar(r, "user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type billRequest struct {
	Name         string      `json:"name"`
	Amount       json.Number `json:"amount"`
	Participants []struct {
		UserID string   `json:"user_id"`
		Weight *float64 `json:"weight"`
	} `json:"participants"`
}

// handleCreateBill records an expense {user_id} advanced. Participants
// without a weight count as 1.
func (a *API) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	total, err := a.currency.Parse(req.Amount.String())
	if err != nil {
		writeError(w, r, err)
		return
	}

	shares := make([]split.Share, 0, len(req.Participants))
	for _, p := range req.Participants {
		weight := 1.0
		if p.Weight != nil {
			weight = *p.Weight
		}
		shares = append(shares, split.Share{UserID: ledger.UserID(p.UserID), Weight: weight})
	}

	bill, err := split.NewBill(req.Name, userIDVar(r, "user_id"), total, shares, time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.ledger.CreateBill(r.Context(), bill); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bill)
}

type paymentRequest struct {
	CreditorID     string      `json:"creditor_id"`
	Amount         json.Number `json:"amount"`
	Note           string      `json:"note"`
	PriorityBillID string      `json:"priority_bill_id"`
}

// handleRequestPayment issues a confirmation token for a payment from
// {user_id} to the creditor. Amount is a decimal in major units.
func (a *API) handleRequestPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := a.currency.Parse(req.Amount.String())
	if err != nil {
		writeError(w, r, err)
		return
	}

	issued, err := a.ledger.RequestPayment(r.Context(), ledger.PaymentRequest{
		PayerID:        userIDVar(r, "user_id"),
		RecipientID:    ledger.UserID(strings.TrimSpace(req.CreditorID)),
		Amount:         amount,
		Note:           req.Note,
		PriorityBillID: ledger.BillID(strings.TrimSpace(req.PriorityBillID)),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

func (a *API) handleBalance(w http.ResponseWriter, r *http.Request) {
	res, err := a.ledger.BalanceDebts(r.Context(), userIDVar(r, "user_id"), userIDVar(r, "other_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type inspectionResponse struct {
	Fresh          bool                       `json:"fresh"`
	PaymentID      ledger.PaymentID           `json:"payment_id,omitempty"`
	PayerID        ledger.UserID              `json:"payer_id,omitempty"`
	RecipientID    ledger.UserID              `json:"recipient_id,omitempty"`
	Amount         int64                      `json:"amount,omitempty"`
	Note           string                     `json:"note,omitempty"`
	PriorityBillID ledger.BillID              `json:"priority_bill_id,omitempty"`
	ExpiresAt      *time.Time                 `json:"expires_at,omitempty"`
	Record         *ledger.ConfirmationRecord `json:"record,omitempty"`
}

func (a *API) handleInspectConfirmation(w http.ResponseWriter, r *http.Request) {
	in, err := a.ledger.InspectConfirmation(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := inspectionResponse{Fresh: in.Fresh, Record: in.Record}
	if in.Fresh {
		p := in.Payload
		resp.PaymentID = p.PaymentID
		resp.PayerID = p.PayerID
		resp.RecipientID = p.RecipientID
		resp.Amount = p.Amount
		resp.Note = p.Note
		resp.PriorityBillID = p.PriorityBillID
		if !p.ExpiresAt.IsZero() {
			resp.ExpiresAt = &p.ExpiresAt
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type confirmRequest struct {
	Token       string `json:"token"`
	IsConfirmed *bool  `json:"is_confirmed"`
}

func (a *API) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Token) == "" || req.IsConfirmed == nil {
		writeError(w, r, fmt.Errorf("%w: token and is_confirmed are required", ledger.ErrBadRequest))
		return
	}

	res, err := a.ledger.ConfirmPayment(r.Context(), strings.TrimSpace(req.Token), ledger.Decision(*req.IsConfirmed))
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadyUsed) && res.Record != nil {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":  err.Error(),
				"record": res.Record,
			})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
