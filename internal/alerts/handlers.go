package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"options-scalping-bot/config"
	"options-scalping-bot/internal/logging"
)

// LogHandler writes every alert to the structured log. Always registered
// so the journal has a complete record even with no external sinks.
type LogHandler struct {
	log *logging.Logger
}

// NewLogHandler creates a log sink.
func NewLogHandler(log *logging.Logger) *LogHandler {
	return &LogHandler{log: log.WithComponent("alert_log")}
}

func (h *LogHandler) Name() string { return "log" }

func (h *LogHandler) Handle(_ context.Context, alert Alert) error {
	args := []interface{}{"kind", string(alert.Kind), "title", alert.Title, "message", alert.Message}
	if alert.Symbol != "" {
		args = append(args, "symbol", alert.Symbol)
	}
	switch alert.Level {
	case LevelCritical:
		h.log.Error("alert", args...)
	case LevelWarning:
		h.log.Warn("alert", args...)
	default:
		h.log.Info("alert", args...)
	}
	return nil
}

// WebhookHandler POSTs alerts as JSON to a configured URL.
type WebhookHandler struct {
	url    string
	client *http.Client
}

// NewWebhookHandler creates a webhook sink.
func NewWebhookHandler(url string) *WebhookHandler {
	return &WebhookHandler{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *WebhookHandler) Name() string { return "webhook" }

func (h *WebhookHandler) Handle(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	default:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
}

// EmailHandler sends alerts over SMTP. Only WARNING and CRITICAL alerts
// go out by email to keep the inbox usable.
type EmailHandler struct {
	cfg config.EmailConfig
}

// NewEmailHandler creates an SMTP sink.
func NewEmailHandler(cfg config.EmailConfig) *EmailHandler {
	return &EmailHandler{cfg: cfg}
}

func (h *EmailHandler) Name() string { return "email" }

func (h *EmailHandler) Handle(_ context.Context, alert Alert) error {
	if alert.Level == LevelInfo {
		return nil
	}

	subject := fmt.Sprintf("[%s] %s", alert.Level, alert.Title)
	message := []byte(
		"From: " + h.cfg.From + "\r\n" +
			"To: " + h.cfg.To + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n" +
			"\r\n" +
			alert.Message + "\r\n",
	)

	auth := smtp.PlainAuth("", h.cfg.Username, h.cfg.Password, h.cfg.Host)
	addr := h.cfg.Host + ":" + h.cfg.Port
	if err := smtp.SendMail(addr, auth, h.cfg.From, []string{h.cfg.To}, message); err != nil {
		return fmt.Errorf("SMTP error: %w", err)
	}
	return nil
}

// TelegramHandler sends alerts through a Telegram bot.
type TelegramHandler struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramHandler creates a Telegram sink. Fails if the token is
// invalid or Telegram is unreachable.
func NewTelegramHandler(token, chatID string) (*TelegramHandler, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	return &TelegramHandler{bot: bot, chatID: id}, nil
}

func (h *TelegramHandler) Name() string { return "telegram" }

func (h *TelegramHandler) Handle(_ context.Context, alert Alert) error {
	text := fmt.Sprintf("*%s*\n\n%s", alert.Title, alert.Message)
	if alert.Symbol != "" {
		text += fmt.Sprintf("\nSymbol: `%s`", alert.Symbol)
	}
	msg := tgbotapi.NewMessage(h.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := h.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
