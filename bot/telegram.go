package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"car-sniper/models"
	"car-sniper/services"
	"car-sniper/storage"
	"car-sniper/utils"
)

const (
	greeting = "Hi! I will send you new car listings matching your filters.\n\n" +
		"/filter - set up filters step by step\n" +
		"/myfilter - show your saved filters\n" +
		"/history - the last listings I sent you\n" +
		"/cancel - abort the setup\n" +
		"/whoami - show your chat id"
	noSessionHint = "Use /filter to set up your filters."
	historySize   = 5
)

// messenger is the part of the Telegram client the bot needs.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Store is what the command surface reads and writes.
type Store interface {
	storage.FilterStore
	storage.History
}

// Bot serves subscriber commands and delivers notifications.
type Bot struct {
	client  *tgbotapi.BotAPI
	api     messenger
	store   Store
	wizard  *services.Wizard
	limiter *rate.Limiter
	logger  *utils.Logger
}

// New connects to Telegram. sendRate caps outgoing messages per second.
func New(token string, store Store, wizard *services.Wizard, sendRate float64, logger *utils.Logger) (*Bot, error) {
	client, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("bot: connect: %w", err)
	}
	logger.Info("[bot] Authorized as @%s", client.Self.UserName)
	b := newBot(client, store, wizard, sendRate, logger)
	b.client = client
	return b, nil
}

func newBot(api messenger, store Store, wizard *services.Wizard, sendRate float64, logger *utils.Logger) *Bot {
	limit := rate.Inf
	if sendRate > 0 {
		limit = rate.Limit(sendRate)
	}
	return &Bot{
		api:     api,
		store:   store,
		wizard:  wizard,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Run long-polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.client.GetUpdatesChan(u)
	defer b.client.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("[bot] Stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// Notify implements services.Notifier.
func (b *Bot) Notify(ctx context.Context, subscriberID int64, rec *models.ListingRecord) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("bot: rate limit: %w", err)
	}
	msg := tgbotapi.NewMessage(subscriberID, services.FormatNotification(rec))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	// The client has no context support; give up waiting once ctx ends.
	// A send that completes anyway is not recorded and may repeat next tick.
	done := make(chan error, 1)
	go func() {
		_, err := b.api.Send(msg)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("bot: send to %d: %w", subscriberID, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("bot: send to %d: %w", subscriberID, ctx.Err())
	}
}

// HandleUpdate dispatches one update. Failures are logged; subscribers
// never see internal errors beyond a short apology.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID

	if !m.IsCommand() {
		reply, ok := b.wizard.HandleText(chatID, m.Text)
		if !ok {
			b.reply(chatID, noSessionHint, nil)
			return
		}
		if reply.ShowBrands {
			kb := brandKeyboard(nil)
			b.reply(chatID, reply.Text, &kb)
			return
		}
		b.reply(chatID, reply.Text, nil)
		return
	}

	switch m.Command() {
	case "start", "help":
		b.reply(chatID, greeting, nil)
	case "filter":
		b.reply(chatID, b.wizard.Start(chatID).Text, nil)
	case "cancel":
		if b.wizard.Cancel(chatID) {
			b.reply(chatID, "Setup cancelled.", nil)
		} else {
			b.reply(chatID, "Nothing to cancel.", nil)
		}
	case "myfilter":
		b.showFilter(ctx, chatID)
	case "history":
		b.showHistory(ctx, chatID)
	case "whoami":
		b.reply(chatID, "Your chat id: "+strconv.FormatInt(chatID, 10), nil)
	default:
		b.reply(chatID, "Unknown command.\n\n"+greeting, nil)
	}
}

func (b *Bot) showFilter(ctx context.Context, chatID int64) {
	spec, found, err := b.store.LoadFilterSpec(ctx, chatID)
	if err != nil {
		b.logger.Error("[bot] Load filter for %d: %v", chatID, err)
		b.reply(chatID, "Sorry, I could not read your filters right now.", nil)
		return
	}
	if !found {
		b.reply(chatID, "No filters saved yet. "+noSessionHint, nil)
		return
	}
	if spec.IsEmpty() {
		b.reply(chatID, "Your filters are empty: every listing matches.", nil)
		return
	}
	b.reply(chatID, "Your filters:\n"+spec.Describe(), nil)
}

func (b *Bot) showHistory(ctx context.Context, chatID int64) {
	entries, err := b.store.LedgerEntries(ctx, chatID, historySize)
	if err != nil {
		b.logger.Error("[bot] Load history for %d: %v", chatID, err)
		b.reply(chatID, "Sorry, I could not read your history right now.", nil)
		return
	}
	if len(entries) == 0 {
		b.reply(chatID, "I have not sent you anything yet.", nil)
		return
	}
	var sb strings.Builder
	sb.WriteString("Recently sent:\n")
	for _, e := range entries {
		price := "-"
		if e.Price != nil {
			price = models.GroupThousands(*e.Price) + " €"
		}
		fmt.Fprintf(&sb, "• %s, %s, %s\n  %s\n", e.NotifiedAt.Format("2006-01-02 15:04"), e.Meta.Title, price, e.Meta.URL)
	}
	b.reply(chatID, strings.TrimRight(sb.String(), "\n"), nil)
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.logger.Debug("[bot] Answer callback: %v", err)
	}
	if q.Message == nil {
		return
	}
	chatID := q.Message.Chat.ID
	msgID := q.Message.MessageID

	switch data := q.Data; {
	case strings.HasPrefix(data, brandPrefix):
		selected, ok := b.wizard.ToggleBrand(chatID, strings.TrimPrefix(data, brandPrefix))
		if !ok {
			b.edit(chatID, msgID, "This setup has expired. "+noSessionHint, nil)
			return
		}
		kb := brandKeyboard(selected)
		b.edit(chatID, msgID, selectionText(selected), &kb)

	case data == confirmSave:
		spec, ok := b.wizard.Confirm(chatID)
		if !ok {
			b.edit(chatID, msgID, "This setup has expired. "+noSessionHint, nil)
			return
		}
		if err := b.store.SaveFilterSpec(ctx, chatID, spec); err != nil {
			b.logger.Error("[bot] Save filter for %d: %v", chatID, err)
			b.edit(chatID, msgID, "Sorry, saving failed. Please run /filter again.", nil)
			return
		}
		b.logger.Info("[bot] Subscriber %d saved filters %q", chatID, spec.Encode())
		b.edit(chatID, msgID, "Filters saved ✅\n"+spec.Describe(), nil)

	case data == confirmCancel:
		b.wizard.Cancel(chatID)
		b.edit(chatID, msgID, "Setup cancelled.", nil)
	}
}

func (b *Bot) reply(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("[bot] Reply to %d failed: %v", chatID, err)
	}
}

func (b *Bot) edit(chatID int64, msgID int, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	var c tgbotapi.Chattable
	if kb != nil {
		c = tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, text, *kb)
	} else {
		c = tgbotapi.NewEditMessageText(chatID, msgID, text)
	}
	if _, err := b.api.Send(c); err != nil {
		b.logger.Debug("[bot] Edit message %d for %d failed: %v", msgID, chatID, err)
	}
}
