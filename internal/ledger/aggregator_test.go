package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/warikan/internal/db/memory"
	"github.com/susu3304/warikan/internal/ledger"
)

func seedNetwork(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	seedBill(t, s, "dinner", userX, 0, share{user: userY, owed: 1200}, share{user: userZ, owed: 1200, paid: 200})
	seedBill(t, s, "taxi", userX, 1, share{user: userY, owed: 800, paid: 800})
	seedBill(t, s, "karaoke", userY, 2, share{user: userX, owed: 500}, share{user: userZ, owed: 500})
	return s
}

func TestDebtsOwedToUser(t *testing.T) {
	agg := ledger.NewAggregator(seedNetwork(t))

	debts, err := agg.DebtsOwedToUser(context.Background(), userX)
	require.NoError(t, err)
	require.Len(t, debts, 2)

	// Y owes 1200 on dinner, Z owes the 1000 left of theirs
	assert.Equal(t, userY, debts[0].CounterpartyID)
	assert.Equal(t, int64(1200), debts[0].TotalAmount)
	assert.Equal(t, []ledger.DebtBill{{BillID: "dinner", BillName: "bill dinner", AmountOwed: 1200, RemainingAmount: 1200}}, debts[0].Bills)
	assert.Equal(t, userZ, debts[1].CounterpartyID)
	assert.Equal(t, int64(1000), debts[1].TotalAmount)
	assert.Equal(t, int64(200), debts[1].Bills[0].AmountPaid)
}

func TestDebtsOwedByUser(t *testing.T) {
	agg := ledger.NewAggregator(seedNetwork(t))

	debts, err := agg.DebtsOwedByUser(context.Background(), userZ)
	require.NoError(t, err)
	require.Len(t, debts, 2)
	assert.Equal(t, userX, debts[0].CounterpartyID)
	assert.Equal(t, int64(1000), debts[0].TotalAmount)
	assert.Equal(t, userY, debts[1].CounterpartyID)
	assert.Equal(t, int64(500), debts[1].TotalAmount)

	none, err := agg.DebtsOwedByUser(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAggregationSymmetry(t *testing.T) {
	agg := ledger.NewAggregator(seedNetwork(t))
	ctx := context.Background()
	users := []ledger.UserID{userX, userY, userZ}

	for _, owner := range users {
		owed, err := agg.DebtsOwedToUser(ctx, owner)
		require.NoError(t, err)
		for _, d := range owed {
			back, err := agg.DebtsOwedByUser(ctx, d.CounterpartyID)
			require.NoError(t, err)
			var found bool
			for _, b := range back {
				if ledger.Same(b.CounterpartyID, owner) {
					found = true
					assert.Equal(t, d.TotalAmount, b.TotalAmount, "%s -> %s", d.CounterpartyID, owner)
				}
			}
			assert.True(t, found, "%s missing %s", d.CounterpartyID, owner)
		}
	}
}

func TestSummary(t *testing.T) {
	agg := ledger.NewAggregator(seedNetwork(t))

	sum, err := agg.Summary(context.Background(), userX)
	require.NoError(t, err)
	assert.Equal(t, int64(2200), sum.TotalOwedToMe)
	assert.Equal(t, int64(500), sum.TotalIOwe)
	assert.Equal(t, int64(1700), sum.NetBalance)
	assert.Len(t, sum.IOwe, 1)
}

func TestDebtBetween(t *testing.T) {
	agg := ledger.NewAggregator(seedNetwork(t))
	ctx := context.Background()

	xy, err := agg.DebtBetween(ctx, userX, userY)
	require.NoError(t, err)
	yx, err := agg.DebtBetween(ctx, userY, userX)
	require.NoError(t, err)

	// X owes Y 500 (karaoke), Y owes X 1200 (dinner)
	assert.Equal(t, int64(-700), xy)
	assert.Equal(t, int64(700), yx)
}
