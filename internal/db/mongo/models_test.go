package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/susu3304/warikan/internal/ledger"
)

func TestBillModelDerivesFlags(t *testing.T) {
	created := time.Date(2025, 5, 1, 9, 0, 0, 0, time.FixedZone("JST", 9*3600))
	b := ledger.Bill{
		ID:             "bill_1",
		Name:           "焼肉",
		PayerID:        "1",
		ParticipantIDs: []ledger.UserID{"1", "2", "3"},
		Entries: []ledger.PaymentStatusEntry{
			{UserID: "1", AmountOwed: 100},
			{UserID: "2", AmountOwed: 100, AmountPaid: 100},
			{UserID: "3", AmountOwed: 100, AmountPaid: 40},
		},
		TotalAmount: 300,
		CreatedAt:   created,
	}

	m := toBillModel(b)
	assert.Len(t, m.PaymentStatus, 2, "payer entry is dropped")
	assert.True(t, m.PaymentStatus[0].IsPaid)
	assert.False(t, m.PaymentStatus[1].IsPaid)
	assert.False(t, m.IsSettled)
	assert.Equal(t, time.UTC, m.CreatedAt.Location())

	back := fromBillModel(m)
	assert.Equal(t, b.ID, back.ID)
	assert.Equal(t, b.ParticipantIDs, back.ParticipantIDs)
	assert.Equal(t, int64(60), back.RemainingFor("3"))
	assert.Zero(t, back.RemainingFor("1"))
	assert.True(t, created.Equal(back.CreatedAt))
}

func TestConfirmationModelRoundTrip(t *testing.T) {
	rec := ledger.ConfirmationRecord{
		PaymentID:      "pay_1",
		Token:          "tok",
		RecipientID:    "1",
		PayerID:        "2",
		Amount:         500,
		IsConfirmed:    true,
		ConfirmedAt:    time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
		PriorityBillID: "bill_1",
	}
	assert.Equal(t, rec, fromConfirmationModel(toConfirmationModel(rec)))
}
