package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/money"
)

// Discord rejects message content over this many characters.
const maxMessageLen = 2000

func FormatSummary(s ledger.Summary, cur money.Currency) string {
	var b strings.Builder
	fmt.Fprintf(&b, "受け取る予定: %s\n", cur.Format(s.TotalOwedToMe))
	fmt.Fprintf(&b, "支払う予定: %s\n", cur.Format(s.TotalIOwe))
	switch {
	case s.NetBalance > 0:
		fmt.Fprintf(&b, "差し引き: %s の受け取り", cur.Format(s.NetBalance))
	case s.NetBalance < 0:
		fmt.Fprintf(&b, "差し引き: %s の支払い", cur.Format(-s.NetBalance))
	default:
		b.WriteString("差し引き: 貸し借りなし")
	}
	return b.String()
}

// FormatDebts lists one line per counterparty with the bills underneath.
// owedToMe picks the wording for the direction.
func FormatDebts(debts []ledger.Debt, owedToMe bool, cur money.Currency) string {
	if len(debts) == 0 {
		if owedToMe {
			return "あなたへの未払いはありません"
		}
		return "未払いの立て替えはありません"
	}
	var b strings.Builder
	for _, d := range debts {
		if owedToMe {
			fmt.Fprintf(&b, "<@%s> から %s\n", d.CounterpartyID, cur.Format(d.TotalAmount))
		} else {
			fmt.Fprintf(&b, "<@%s> へ %s\n", d.CounterpartyID, cur.Format(d.TotalAmount))
		}
		for _, bill := range d.Bills {
			fmt.Fprintf(&b, "・%s: 残り %s (%s / %s)\n",
				bill.BillName, cur.Format(bill.RemainingAmount), cur.Format(bill.AmountPaid), cur.Format(bill.AmountOwed))
		}
	}
	return truncate(strings.TrimRight(b.String(), "\n"))
}

func FormatAllocations(allocs []ledger.Allocation, cur money.Currency) string {
	var b strings.Builder
	for _, a := range allocs {
		fmt.Fprintf(&b, "・%s (<@%s>): %s\n", a.BillName, a.DebtorID, cur.Format(a.AmountPaid))
	}
	return strings.TrimRight(b.String(), "\n")
}

func FormatConfirmResult(res ledger.ConfirmResult, cur money.Currency) string {
	rec := res.Record
	if rec == nil {
		return "確認に失敗しました"
	}
	if !rec.IsConfirmed {
		return fmt.Sprintf("<@%s> からの %s の支払いを却下しました", rec.PayerID, cur.Format(rec.Amount))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<@%s> からの %s の支払いを承認しました", rec.PayerID, cur.Format(rec.Amount))
	if len(res.Allocations) > 0 {
		b.WriteString("\n")
		b.WriteString(FormatAllocations(res.Allocations, cur))
	}
	if res.LeftoverAmount > 0 {
		fmt.Fprintf(&b, "\n※ %s は充てる立て替えがありませんでした", cur.Format(res.LeftoverAmount))
	}
	return truncate(b.String())
}

func FormatBalance(other ledger.UserID, res ledger.BalanceResult, cur money.Currency) string {
	var b strings.Builder
	if len(res.Allocations) == 0 {
		b.WriteString("相殺できる立て替えはありませんでした")
	} else {
		fmt.Fprintf(&b, "<@%s> との貸し借りを相殺しました\n", other)
		b.WriteString(FormatAllocations(res.Allocations, cur))
	}
	switch {
	case res.NetDebt > 0:
		fmt.Fprintf(&b, "\n残り: あなたから <@%s> へ %s", other, cur.Format(res.NetDebt))
	case res.NetDebt < 0:
		fmt.Fprintf(&b, "\n残り: <@%s> からあなたへ %s", other, cur.Format(-res.NetDebt))
	default:
		b.WriteString("\n残り: なし")
	}
	return truncate(b.String())
}

func FormatBill(b ledger.Bill, cur money.Currency) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "「%s」%s を <@%s> が立て替えました (ID: `%s`)\n", b.Name, cur.Format(b.TotalAmount), b.PayerID, b.ID)
	for _, e := range b.Entries {
		fmt.Fprintf(&sb, "・<@%s>: %s\n", e.UserID, cur.Format(e.AmountOwed))
	}
	return truncate(strings.TrimRight(sb.String(), "\n"))
}

// FormatPaymentRequest is the DM sent to the creditor.
func FormatPaymentRequest(payer ledger.UserID, amount int64, note, token string, expiresAt time.Time, cur money.Currency) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<@%s> から %s の支払い報告が届きました\n", payer, cur.Format(amount))
	if note != "" {
		fmt.Fprintf(&b, "メモ: %s\n", note)
	}
	fmt.Fprintf(&b, "期限: %s\n", expiresAt.In(jst).Format("2006/01/02 15:04"))
	b.WriteString("受け取った場合は `/debts confirm accept:true`、受け取っていない場合は `accept:false` を次のコードと一緒に実行してください\n")
	fmt.Fprintf(&b, "```\n%s\n```", token)
	return b.String()
}

// ErrorMessage turns ledger errors into something a user can act on.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrAlreadyUsed):
		return "この支払いは既に処理済みです"
	case errors.Is(err, ledger.ErrUnauthorized):
		return "確認コードが無効か期限切れです"
	case errors.Is(err, ledger.ErrNothingToBalance):
		return "相殺できる貸し借りがありません"
	case errors.Is(err, ledger.ErrConflict):
		return "他の操作と競合しました。もう一度お試しください"
	case errors.Is(err, ledger.ErrNotFound):
		return "対象が見つかりません"
	case errors.Is(err, money.ErrTooPrecise), errors.Is(err, money.ErrInvalidAmount):
		return "金額の形式が正しくありません"
	case errors.Is(err, ledger.ErrBadRequest):
		return "入力内容を確認してください"
	default:
		return "処理に失敗しました"
	}
}

var jst = time.FixedZone("JST", 9*60*60)

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	const suffix = "\n…"
	cut := maxMessageLen - len(suffix)
	// back up to a rune boundary
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + suffix
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
