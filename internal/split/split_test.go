package split

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/warikan/internal/ledger"
)

func TestAmounts(t *testing.T) {
	tests := []struct {
		name   string
		total  int64
		shares []Share
		want   []int64
	}{
		{"even", 3000, Equal("a", "b", "c"), []int64{1000, 1000, 1000}},
		{"remainder to earliest", 100, Equal("a", "b", "c"), []int64{34, 33, 33}},
		{"weighted", 1000, []Share{{"a", 2}, {"b", 1}, {"c", 1}}, []int64{500, 250, 250}},
		{"largest fraction wins", 10, []Share{{"a", 1}, {"b", 2}}, []int64{3, 7}},
		{"zero weight", 999, []Share{{"a", 1}, {"b", 0}, {"c", 1}}, []int64{500, 0, 499}},
		{"fractional weights", 7, []Share{{"a", 0.5}, {"b", 0.5}}, []int64{4, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Amounts(tt.total, tt.shares)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			var sum int64
			for _, v := range got {
				sum += v
			}
			assert.Equal(t, tt.total, sum)
		})
	}
}

func TestAmountsErrors(t *testing.T) {
	_, err := Amounts(0, Equal("a"))
	assert.ErrorIs(t, err, ledger.ErrBadRequest)

	_, err = Amounts(100, []Share{{"a", 0}})
	assert.ErrorIs(t, err, ledger.ErrBadRequest)

	_, err = Amounts(100, []Share{{"a", -1}, {"b", 2}})
	assert.ErrorIs(t, err, ledger.ErrBadRequest)
}

func TestNewBill(t *testing.T) {
	now := time.Date(2025, 5, 1, 21, 0, 0, 0, time.FixedZone("JST", 9*3600))
	b, err := NewBill(" 焼肉 ", "payer", 9000, Equal("payer", "x", "y", "x", " "), now)
	require.NoError(t, err)

	assert.Regexp(t, `^bill_`, string(b.ID))
	assert.Equal(t, "焼肉", b.Name)
	assert.Equal(t, ledger.UserID("payer"), b.PayerID)
	assert.Equal(t, []ledger.UserID{"payer", "x", "y"}, b.ParticipantIDs)
	assert.Equal(t, int64(9000), b.TotalAmount)
	assert.Equal(t, time.UTC, b.CreatedAt.Location())
	require.Len(t, b.Entries, 2)
	for _, e := range b.Entries {
		assert.Equal(t, int64(3000), e.AmountOwed)
		assert.False(t, e.IsPaid)
	}
	assert.False(t, b.IsSettled)

	_, ok := b.Entry("payer")
	assert.False(t, ok)
}

func TestNewBillPayerNotSharing(t *testing.T) {
	b, err := NewBill("taxi", "payer", 1000, Equal("x", "y"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(500), b.RemainingFor("x"))
	assert.Equal(t, int64(500), b.RemainingFor("y"))
}

func TestNewBillErrors(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		bill   string
		payer  ledger.UserID
		total  int64
		shares []Share
	}{
		{"no name", "", "p", 100, Equal("x")},
		{"no payer", "n", "", 100, Equal("x")},
		{"no participants", "n", "p", 100, nil},
		{"only payer", "n", "p", 100, Equal("p")},
		{"zero total", "n", "p", 0, Equal("x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBill(tt.bill, tt.payer, tt.total, tt.shares, now)
			assert.ErrorIs(t, err, ledger.ErrBadRequest)
		})
	}
}
