package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"smartfit-coach/internal/app"
	"smartfit-coach/internal/body"
	"smartfit-coach/internal/config"
	"smartfit-coach/internal/food"
	"smartfit-coach/internal/llm"
	"smartfit-coach/internal/profile"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const handleTimeout = 2 * time.Minute

// botAPI is the part of tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot logs meals and answers analysis commands for allowed Telegram users.
type Bot struct {
	api        botAPI
	app        *app.App
	cfg        *config.Config
	httpClient *http.Client
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, a *app.App) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	slog.Info("telegram bot authorized", "account", bot.Self.UserName)

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook for %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := bot.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	slog.Info("telegram webhook set", "description", resp.Description)

	return newBot(bot, a, cfg), nil
}

func newBot(api botAPI, a *app.App, cfg *config.Config) *Bot {
	return &Bot{api: api, app: a, cfg: cfg, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// ServeHTTP receives webhook updates. Messages are handled in the background so
// Telegram gets its answer right away.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Warn("parsing telegram update", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	if update.Message == nil || update.Message.From == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		b.handleMessage(ctx, update.Message)
	}()
}

func (b *Bot) allowed(telegramID int64) bool {
	return slices.Contains(b.cfg.TelegramAllowedUserIDs, telegramID)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !b.allowed(msg.From.ID) {
		slog.Warn("unauthorized telegram access attempt", "telegram_id", msg.From.ID, "username", msg.From.UserName)
		return
	}

	user, err := b.app.Users.UserByTelegramID(ctx, msg.From.ID)
	if errors.Is(err, profile.ErrNotFound) {
		b.reply(msg.Chat.ID, "⛔ This Telegram account is not linked to a SmartFit user.")
		return
	}
	if err != nil {
		slog.Error("looking up telegram user", "telegram_id", msg.From.ID, "error", err)
		b.reply(msg.Chat.ID, "❌ Something went wrong, please try again later.")
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, user, msg)
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, user, msg)
	case strings.TrimSpace(msg.Text) != "":
		b.handleMeal(ctx, user, msg)
	}
}

func (b *Bot) handleCommand(ctx context.Context, user *profile.User, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "peso":
		text, err := b.app.Analyst.AnalyzeWeights(ctx, user.ID, 0)
		b.replyAnalysis(msg.Chat.ID, "⚖️ *Weight trend*", text, err)
	case "misure":
		text, err := b.app.Analyst.AnalyzeMeasurements(ctx, user.ID, 0)
		b.replyAnalysis(msg.Chat.ID, "📏 *Body measurements*", text, err)
	case "metrics":
		if !user.IsAdmin && msg.From.ID != b.cfg.AdminTelegramID {
			b.reply(msg.Chat.ID, "⛔ *Access Denied*: Admin only.")
			return
		}
		b.handleMetricsCommand(ctx, msg.Chat.ID)
	default:
		b.reply(msg.Chat.ID, helpText)
	}
}

const helpText = "🥗 *SmartFit Coach*\n\n" +
	"• Write what you ate to log a meal\n" +
	"• Send a photo of your plate, optionally with a caption\n" +
	"• /peso comments on your weight trend\n" +
	"• /misure comments on your body measurements"

func (b *Bot) handleMeal(ctx context.Context, user *profile.User, msg *tgbotapi.Message) {
	foods, err := b.app.Food.ParseMeal(ctx, user.ID, msg.Text)
	if err != nil {
		slog.Error("parsing meal from telegram", "user_id", user.ID, "error", err)
		b.replyError(msg.Chat.ID, "reading your meal", err)
		return
	}
	b.reply(msg.Chat.ID, formatFoods(foods))
}

func (b *Bot) handlePhoto(ctx context.Context, user *profile.User, msg *tgbotapi.Message) {
	largest := msg.Photo[len(msg.Photo)-1]
	image, err := b.downloadImage(ctx, largest.FileID)
	if err != nil {
		slog.Error("downloading telegram photo", "file_id", largest.FileID, "error", err)
		b.reply(msg.Chat.ID, "❌ I could not download the photo.")
		return
	}
	foods, err := b.app.Food.ParseMealImage(ctx, user.ID, image, msg.Caption)
	if err != nil {
		slog.Error("parsing meal photo from telegram", "user_id", user.ID, "error", err)
		b.replyError(msg.Chat.ID, "reading your photo", err)
		return
	}
	b.reply(msg.Chat.ID, formatFoods(foods))
}

func (b *Bot) downloadImage(ctx context.Context, fileID string) (llm.Image, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return llm.Image{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return llm.Image{}, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return llm.Image{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return llm.Image{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Image{}, err
	}
	return llm.NewImage(data, resp.Header.Get("Content-Type")), nil
}

// escape quotes model-written text for the Markdown parse mode.
func escape(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, text)
}

// formatFoods renders resolved foods, marking fabricated and unresolved ones.
func formatFoods(foods []food.ResolvedFood) string {
	if len(foods) == 0 {
		return "🤔 I could not find any food in your message."
	}
	var sb strings.Builder
	sb.WriteString("🍽 *Foods recognized*\n\n")
	for _, f := range foods {
		sb.WriteString(fmt.Sprintf("• %s, %gg", escape(f.Meal), f.Quantity))
		switch {
		case f.FoodItemName == nil:
			sb.WriteString(" → _not found_")
		case f.Fabricated:
			sb.WriteString(fmt.Sprintf(" → %s (new)", escape(*f.FoodItemName)))
		default:
			sb.WriteString(fmt.Sprintf(" → %s", escape(*f.FoodItemName)))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (b *Bot) replyAnalysis(chatID int64, title, text string, err error) {
	if errors.Is(err, body.ErrNoData) {
		b.reply(chatID, fmt.Sprintf("%s\n\n_No data in the last %d days._", title, body.DefaultWindowDays))
		return
	}
	if err != nil {
		slog.Error("telegram analysis failed", "error", err)
		b.replyError(chatID, "writing the analysis", err)
		return
	}
	b.reply(chatID, fmt.Sprintf("%s\n\n%s", title, escape(text)))
}

func (b *Bot) replyError(chatID int64, action string, err error) {
	safeErr := strings.ReplaceAll(err.Error(), "`", "'")
	b.reply(chatID, fmt.Sprintf("❌ *Error %s:*\n```\n%v\n```", action, safeErr))
}

func (b *Bot) handleMetricsCommand(ctx context.Context, chatID int64) {
	usage, err := b.app.Metrics.GetDailyUsage(ctx, 7)
	if err != nil {
		b.reply(chatID, "❌ Error fetching metrics.")
		return
	}

	health := b.app.Health()

	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent LLM Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d tokens (%d execs)\n", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Host: %dMB / %dMB used, CPU %.0f%%\n", health.HostUsedMB, health.HostMemoryMB, health.HostCPU))
	sb.WriteString(fmt.Sprintf("• Disk Data: %s\n", health.DataDiskSize))

	b.reply(chatID, sb.String())
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		slog.Error("sending telegram message", "chat_id", chatID, "error", err)
	}
}
