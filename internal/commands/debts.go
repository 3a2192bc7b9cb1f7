package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/money"
	"github.com/susu3304/warikan/internal/split"
)

// Ledger is the part of the engine the slash command drives.
type Ledger interface {
	Summary(ctx context.Context, user ledger.UserID) (ledger.Summary, error)
	DebtsOwedToUser(ctx context.Context, user ledger.UserID) ([]ledger.Debt, error)
	DebtsOwedByUser(ctx context.Context, user ledger.UserID) ([]ledger.Debt, error)
	BalanceDebts(ctx context.Context, a, b ledger.UserID) (ledger.BalanceResult, error)
	RequestPayment(ctx context.Context, req ledger.PaymentRequest) (ledger.IssuedPayment, error)
	InspectConfirmation(ctx context.Context, token string) (ledger.Inspection, error)
	ConfirmPayment(ctx context.Context, token string, d ledger.Decision) (ledger.ConfirmResult, error)
	CreateBill(ctx context.Context, b ledger.Bill) error
}

const commandTimeout = 10 * time.Second

// HandleDebts routes /debts subcommands.
func HandleDebts(s *discordgo.Session, i *discordgo.InteractionCreate, svc Ledger, cur money.Currency) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		respondPrivate(s, i, "サブコマンドを指定してください")
		return
	}
	sub := data.Options[0]
	user := ledger.UserID(invokerID(i))
	if user == "" {
		respondPrivate(s, i, "ユーザーを特定できませんでした")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var (
		content string
		private = true
	)
	switch sub.Name {
	case "summary":
		content = debtsSummary(ctx, svc, user, cur)
	case "owed":
		content = debtsList(ctx, svc, user, true, cur)
	case "owing":
		content = debtsList(ctx, svc, user, false, cur)
	case "balance":
		content, private = debtsBalance(ctx, svc, user, ledger.UserID(getUserID(sub, "user")), cur)
	case "bill":
		content, private = debtsBill(ctx, svc, user, sub, cur)
	case "pay":
		content = debtsPay(ctx, s, svc, user, sub, cur)
	case "confirm":
		content = debtsConfirm(ctx, svc, user, sub, cur)
	default:
		content = "不明なサブコマンドです"
	}

	if private {
		respondPrivate(s, i, content)
	} else {
		respondText(s, i, content)
	}
}

func debtsSummary(ctx context.Context, svc Ledger, user ledger.UserID, cur money.Currency) string {
	sum, err := svc.Summary(ctx, user)
	if err != nil {
		log.Printf("commands: summary for %s: %v", user, err)
		return ErrorMessage(err)
	}
	return FormatSummary(sum, cur)
}

func debtsList(ctx context.Context, svc Ledger, user ledger.UserID, owedToMe bool, cur money.Currency) string {
	var (
		debts []ledger.Debt
		err   error
	)
	if owedToMe {
		debts, err = svc.DebtsOwedToUser(ctx, user)
	} else {
		debts, err = svc.DebtsOwedByUser(ctx, user)
	}
	if err != nil {
		log.Printf("commands: list debts for %s: %v", user, err)
		return ErrorMessage(err)
	}
	return FormatDebts(debts, owedToMe, cur)
}

// debtsBalance posts the result publicly so both sides see it.
func debtsBalance(ctx context.Context, svc Ledger, user, other ledger.UserID, cur money.Currency) (string, bool) {
	if other == "" {
		return "相手を指定してください", true
	}
	res, err := svc.BalanceDebts(ctx, user, other)
	if err != nil {
		if !errors.Is(err, ledger.ErrNothingToBalance) {
			log.Printf("commands: balance %s with %s: %v", user, other, err)
		}
		return ErrorMessage(err), true
	}
	return FormatBalance(other, res, cur), false
}

// debtsBill records an expense the invoker advanced, split evenly.
func debtsBill(ctx context.Context, svc Ledger, payer ledger.UserID, sub *discordgo.ApplicationCommandInteractionDataOption, cur money.Currency) (string, bool) {
	name := getStringOption(sub.Options, "name")
	rawAmount := getStringOption(sub.Options, "amount")
	users := getStringOption(sub.Options, "users")
	if name == nil || rawAmount == nil || users == nil {
		return "name, amount, users の指定が必要です", true
	}
	total, err := cur.Parse(*rawAmount)
	if err != nil {
		return ErrorMessage(err), true
	}
	ids := parseMentionIDs(*users)
	if len(ids) == 0 {
		return "ユーザーのメンション/IDを認識できませんでした", true
	}

	var members []ledger.UserID
	if includeMe := getBoolOption(sub.Options, "include_me"); includeMe == nil || *includeMe {
		members = append(members, payer)
	}
	for _, id := range ids {
		members = append(members, ledger.UserID(id))
	}

	b, err := split.NewBill(*name, payer, total, split.Equal(members...), time.Now())
	if err != nil {
		return ErrorMessage(err), true
	}
	if err := svc.CreateBill(ctx, b); err != nil {
		log.Printf("commands: create bill for %s: %v", payer, err)
		return ErrorMessage(err), true
	}
	return FormatBill(b, cur), false
}

func debtsPay(ctx context.Context, s *discordgo.Session, svc Ledger, payer ledger.UserID, sub *discordgo.ApplicationCommandInteractionDataOption, cur money.Currency) string {
	recipient := ledger.UserID(getUserID(sub, "user"))
	if recipient == "" {
		return "支払った相手を指定してください"
	}
	rawAmount := getStringOption(sub.Options, "amount")
	if rawAmount == nil {
		return "金額を指定してください"
	}
	amount, err := cur.Parse(*rawAmount)
	if err != nil {
		return ErrorMessage(err)
	}

	req := ledger.PaymentRequest{PayerID: payer, RecipientID: recipient, Amount: amount}
	if note := getStringOption(sub.Options, "note"); note != nil {
		req.Note = strings.TrimSpace(*note)
	}
	if bill := getStringOption(sub.Options, "bill"); bill != nil {
		req.PriorityBillID = ledger.BillID(strings.TrimSpace(*bill))
	}

	issued, err := svc.RequestPayment(ctx, req)
	if err != nil {
		if !errors.Is(err, ledger.ErrBadRequest) {
			log.Printf("commands: request payment %s -> %s: %v", payer, recipient, err)
		}
		return ErrorMessage(err)
	}

	dm := FormatPaymentRequest(payer, amount, req.Note, issued.Token, issued.ExpiresAt, cur)
	if err := sendDM(s, string(recipient), dm); err != nil {
		log.Printf("commands: dm payment %s to %s: %v", issued.PaymentID, recipient, err)
		return fmt.Sprintf("<@%s> にDMを送れませんでした。次の確認コードを直接渡してください\n```\n%s\n```", recipient, issued.Token)
	}
	return fmt.Sprintf("<@%s> に %s の支払い確認を送りました", recipient, cur.Format(amount))
}

func debtsConfirm(ctx context.Context, svc Ledger, user ledger.UserID, sub *discordgo.ApplicationCommandInteractionDataOption, cur money.Currency) string {
	tok := getStringOption(sub.Options, "token")
	accept := getBoolOption(sub.Options, "accept")
	if tok == nil || accept == nil {
		return "確認コードと承認の有無を指定してください"
	}
	token := strings.TrimSpace(*tok)

	in, err := svc.InspectConfirmation(ctx, token)
	if err != nil {
		return ErrorMessage(err)
	}
	recipient := in.Payload.RecipientID
	if !in.Fresh && in.Record != nil {
		recipient = in.Record.RecipientID
	}
	if !ledger.Same(recipient, user) {
		return "この支払いを確認できるのは受け取った本人だけです"
	}
	if !in.Fresh {
		return ErrorMessage(ledger.ErrAlreadyUsed)
	}

	res, err := svc.ConfirmPayment(ctx, token, ledger.Decision(*accept))
	if err != nil {
		if !errors.Is(err, ledger.ErrAlreadyUsed) {
			log.Printf("commands: confirm payment for %s: %v", user, err)
		}
		return ErrorMessage(err)
	}
	return FormatConfirmResult(res, cur)
}

func sendDM(s *discordgo.Session, userID, content string) error {
	ch, err := s.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = s.ChannelMessageSend(ch.ID, content)
	return err
}
