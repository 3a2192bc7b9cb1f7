package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/susu3304/warikan/internal/ledger"
)

type billModel struct {
	ID             string        `bson:"_id"`
	Name           string        `bson:"name"`
	PayerID        string        `bson:"payer_id"`
	ParticipantIDs []string      `bson:"participant_ids"`
	PaymentStatus  []statusModel `bson:"payment_status"`
	TotalAmount    int64         `bson:"total_amount"`
	CreatedAt      time.Time     `bson:"created_at"`
	IsSettled      bool          `bson:"is_settled"`
	OptedOutUsers  []string      `bson:"opted_out_users,omitempty"`
}

type statusModel struct {
	UserID     string     `bson:"user_id"`
	AmountOwed int64      `bson:"amount_owed"`
	AmountPaid int64      `bson:"amount_paid"`
	IsPaid     bool       `bson:"is_paid"`
	PaidDate   *time.Time `bson:"paid_date,omitempty"`
}

type confirmationModel struct {
	Token          string    `bson:"_id"`
	PaymentID      string    `bson:"payment_id"`
	RecipientID    string    `bson:"recipient_id"`
	PayerID        string    `bson:"payer_id"`
	Amount         int64     `bson:"amount"`
	IsConfirmed    bool      `bson:"is_confirmed"`
	ConfirmedAt    time.Time `bson:"confirmed_at"`
	PriorityBillID string    `bson:"priority_bill_id,omitempty"`
}

type journalModel struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	PaymentID string        `bson:"payment_id"`
	BillID    string        `bson:"bill_id"`
	BillName  string        `bson:"bill_name"`
	DebtorID  string        `bson:"debtor_id"`
	Amount    int64         `bson:"amount"`
	AppliedAt time.Time     `bson:"applied_at"`
}

func toBillModel(b ledger.Bill) *billModel {
	m := &billModel{
		ID:          string(b.ID),
		Name:        b.Name,
		PayerID:     string(b.PayerID),
		TotalAmount: b.TotalAmount,
		CreatedAt:   b.CreatedAt.UTC(),
	}
	for _, p := range b.ParticipantIDs {
		m.ParticipantIDs = append(m.ParticipantIDs, string(p))
	}
	for _, u := range b.OptedOutUsers {
		m.OptedOutUsers = append(m.OptedOutUsers, string(u))
	}
	settled := true
	for _, e := range b.Entries {
		if ledger.Same(e.UserID, b.PayerID) {
			continue
		}
		paid := e.AmountPaid >= e.AmountOwed
		if !paid {
			settled = false
		}
		m.PaymentStatus = append(m.PaymentStatus, statusModel{
			UserID:     string(e.UserID),
			AmountOwed: e.AmountOwed,
			AmountPaid: e.AmountPaid,
			IsPaid:     paid,
			PaidDate:   e.PaidDate,
		})
	}
	m.IsSettled = settled
	return m
}

func fromBillModel(m *billModel) ledger.Bill {
	b := ledger.Bill{
		ID:          ledger.BillID(m.ID),
		Name:        m.Name,
		PayerID:     ledger.UserID(m.PayerID),
		TotalAmount: m.TotalAmount,
		CreatedAt:   m.CreatedAt,
		IsSettled:   m.IsSettled,
	}
	for _, p := range m.ParticipantIDs {
		b.ParticipantIDs = append(b.ParticipantIDs, ledger.UserID(p))
	}
	for _, u := range m.OptedOutUsers {
		b.OptedOutUsers = append(b.OptedOutUsers, ledger.UserID(u))
	}
	for _, s := range m.PaymentStatus {
		b.Entries = append(b.Entries, ledger.PaymentStatusEntry{
			UserID:     ledger.UserID(s.UserID),
			AmountOwed: s.AmountOwed,
			AmountPaid: s.AmountPaid,
			IsPaid:     s.IsPaid,
			PaidDate:   s.PaidDate,
		})
	}
	return b
}

func toConfirmationModel(r ledger.ConfirmationRecord) *confirmationModel {
	return &confirmationModel{
		Token:          r.Token,
		PaymentID:      string(r.PaymentID),
		RecipientID:    string(r.RecipientID),
		PayerID:        string(r.PayerID),
		Amount:         r.Amount,
		IsConfirmed:    r.IsConfirmed,
		ConfirmedAt:    r.ConfirmedAt.UTC(),
		PriorityBillID: string(r.PriorityBillID),
	}
}

func fromConfirmationModel(m *confirmationModel) ledger.ConfirmationRecord {
	return ledger.ConfirmationRecord{
		PaymentID:      ledger.PaymentID(m.PaymentID),
		Token:          m.Token,
		RecipientID:    ledger.UserID(m.RecipientID),
		PayerID:        ledger.UserID(m.PayerID),
		Amount:         m.Amount,
		IsConfirmed:    m.IsConfirmed,
		ConfirmedAt:    m.ConfirmedAt,
		PriorityBillID: ledger.BillID(m.PriorityBillID),
	}
}
