package bot

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/warikan/internal/commands"
	"github.com/susu3304/warikan/internal/money"
)

type Bot struct {
	session  *discordgo.Session
	ledger   commands.Ledger
	currency money.Currency
}

func New(token string, svc commands.Ledger, cur money.Currency) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	bot := &Bot{
		session:  session,
		ledger:   svc,
		currency: cur,
	}

	// Register event handlers
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onInteractionCreate)

	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsDirectMessages

	return bot, nil
}

// Notifier returns a DM notifier that shares the bot's gateway session.
func (b *Bot) Notifier() *Notifier {
	return NewNotifier(b.session, b.currency)
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	log.Println("Discord bot is running")
	return nil
}

func (b *Bot) Stop() error {
	return b.session.Close()
}
