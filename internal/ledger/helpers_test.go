package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/susu3304/warikan/internal/db/memory"
	"github.com/susu3304/warikan/internal/ledger"
)

const (
	userX ledger.UserID = "100000000000000001"
	userY ledger.UserID = "100000000000000002"
	userZ ledger.UserID = "100000000000000003"
)

var day0 = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

type share struct {
	user ledger.UserID
	owed int64
	paid int64
}

// seedBill stores a bill paid by payer, created `age` days after day0.
func seedBill(t *testing.T, s *memory.Store, id ledger.BillID, payer ledger.UserID, age int, shares ...share) ledger.Bill {
	t.Helper()
	b := ledger.Bill{
		ID:             id,
		Name:           "bill " + string(id),
		PayerID:        payer,
		ParticipantIDs: []ledger.UserID{payer},
		CreatedAt:      day0.AddDate(0, 0, age),
	}
	for _, sh := range shares {
		b.ParticipantIDs = append(b.ParticipantIDs, sh.user)
		b.Entries = append(b.Entries, ledger.PaymentStatusEntry{UserID: sh.user, AmountOwed: sh.owed, AmountPaid: sh.paid})
		b.TotalAmount += sh.owed
	}
	require.NoError(t, s.CreateBill(context.Background(), b))
	return b
}

func entryOf(t *testing.T, s *memory.Store, bill ledger.BillID, user ledger.UserID) ledger.PaymentStatusEntry {
	t.Helper()
	b, err := s.GetBill(context.Background(), bill)
	require.NoError(t, err)
	e, ok := b.Entry(user)
	require.True(t, ok, "no entry for %s on %s", user, bill)
	return *e
}
