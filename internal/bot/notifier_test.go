package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/money"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type fakeSession struct {
	mu       sync.Mutex
	sent     []string
	channels []string
	sendErrs []error
	openErr  error
}

func (f *fakeSession) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.channels = append(f.channels, recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.sent = append(f.sent, channelID+"|"+content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func newTestNotifier(s *fakeSession) *Notifier {
	n := NewNotifier(s, money.JPY)
	n.backoff = func() time.Duration { return 0 }
	return n
}

func TestNotifierDMsCounterparty(t *testing.T) {
	s := &fakeSession{}
	n := newTestNotifier(s)

	err := n.Record(context.Background(), ledger.Event{
		Type:           ledger.EventPaymentConfirmed,
		ActorID:        "100",
		CounterpartyID: "200",
		Amount:         1500,
		Allocations: []ledger.Allocation{
			{BillID: "b1", BillName: "dinner", DebtorID: "200", AmountPaid: 1500},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"200"}, s.channels)
	require.Len(t, s.sent, 1)
	assert.Contains(t, s.sent[0], "dm-200|<@100> が 1500 円 の支払いを承認しました")
	assert.Contains(t, s.sent[0], "・dinner (<@200>): 1500 円")
}

func TestNotifierMessages(t *testing.T) {
	n := newTestNotifier(&fakeSession{})
	tests := []struct {
		typ  ledger.EventType
		want string
	}{
		{ledger.EventPaymentRejected, "<@1> が 300 円 の支払いを却下しました"},
		{ledger.EventDebtBalanced, "<@1> があなたとの貸し借り 300 円 を相殺しました"},
	}
	for _, tt := range tests {
		msg := n.message(ledger.Event{Type: tt.typ, ActorID: "1", CounterpartyID: "2", Amount: 300})
		assert.Contains(t, msg, tt.want)
	}
	assert.Empty(t, n.message(ledger.Event{Type: "unknown"}))
}

func TestNotifierSkipsUnknownEvents(t *testing.T) {
	s := &fakeSession{}
	n := newTestNotifier(s)
	require.NoError(t, n.Record(context.Background(), ledger.Event{Type: "unknown", CounterpartyID: "2"}))
	assert.Empty(t, s.channels)
}

func TestNotifierRetriesTimeouts(t *testing.T) {
	s := &fakeSession{sendErrs: []error{timeoutErr{}}}
	n := newTestNotifier(s)

	err := n.Record(context.Background(), ledger.Event{Type: ledger.EventPaymentRejected, ActorID: "1", CounterpartyID: "2"})
	require.NoError(t, err)
	assert.Len(t, s.sent, 1)
}

func TestNotifierGivesUpOnPermanentErrors(t *testing.T) {
	boom := errors.New("missing access")
	s := &fakeSession{sendErrs: []error{boom, nil}}
	n := newTestNotifier(s)

	err := n.Record(context.Background(), ledger.Event{Type: ledger.EventPaymentRejected, ActorID: "1", CounterpartyID: "2"})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, s.sent)
}

func TestNotifierOpenChannelFailure(t *testing.T) {
	s := &fakeSession{openErr: errors.New("cannot dm")}
	n := newTestNotifier(s)

	err := n.Record(context.Background(), ledger.Event{Type: ledger.EventDebtBalanced, ActorID: "1", CounterpartyID: "2"})
	assert.ErrorContains(t, err, "open dm with 2")
}

func TestIsTemporaryOrTimeout(t *testing.T) {
	assert.True(t, isTemporaryOrTimeout(timeoutErr{}))
	assert.True(t, isTemporaryOrTimeout(context.DeadlineExceeded))
	assert.False(t, isTemporaryOrTimeout(errors.New("nope")))
	assert.False(t, isTemporaryOrTimeout(nil))
}
