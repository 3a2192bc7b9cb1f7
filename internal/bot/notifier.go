package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/warikan/internal/commands"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/money"
)

// Minimal session interface for opening DM channels and sending messages.
type dmSession interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier DMs the counterparty of each ledger event.
// It implements activity.Recorder.
type Notifier struct {
	session  dmSession
	currency money.Currency
	backoff  func() time.Duration
}

func NewNotifier(session dmSession, cur money.Currency) *Notifier {
	return &Notifier{
		session:  session,
		currency: cur,
		backoff: func() time.Duration {
			return time.Duration(300+rand.Intn(500)) * time.Millisecond
		},
	}
}

func (n *Notifier) Record(ctx context.Context, ev ledger.Event) error {
	msg := n.message(ev)
	if msg == "" || ev.CounterpartyID == "" {
		return nil
	}
	ch, err := n.session.UserChannelCreate(string(ev.CounterpartyID), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm with %s: %w", ev.CounterpartyID, err)
	}
	if err := n.sendWithRetry(ctx, ch.ID, msg); err != nil {
		return fmt.Errorf("dm %s: %w", ev.CounterpartyID, err)
	}
	return nil
}

func (n *Notifier) message(ev ledger.Event) string {
	var b strings.Builder
	switch ev.Type {
	case ledger.EventPaymentConfirmed:
		fmt.Fprintf(&b, "<@%s> が %s の支払いを承認しました", ev.ActorID, n.currency.Format(ev.Amount))
	case ledger.EventPaymentRejected:
		fmt.Fprintf(&b, "<@%s> が %s の支払いを却下しました", ev.ActorID, n.currency.Format(ev.Amount))
	case ledger.EventDebtBalanced:
		fmt.Fprintf(&b, "<@%s> があなたとの貸し借り %s を相殺しました", ev.ActorID, n.currency.Format(ev.Amount))
	default:
		return ""
	}
	if len(ev.Allocations) > 0 {
		b.WriteString("\n")
		b.WriteString(commands.FormatAllocations(ev.Allocations, n.currency))
	}
	b.WriteString("\n\n※このメッセージは自動送信です")
	return b.String()
}

func (n *Notifier) sendWithRetry(ctx context.Context, channelID, content string) error {
	const attemptTimeout = 12 * time.Second
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		_, err := n.session.ChannelMessageSend(channelID, content, discordgo.WithContext(sendCtx))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTemporaryOrTimeout(err) || attempt == maxAttempts {
			return err
		}
		select {
		case <-time.After(n.backoff()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func isTemporaryOrTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
