// Package telegram provides a client for delivering signal alerts via the
// Telegram Bot API.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/polywatcher/engine/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a detection error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Detection error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Detection recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// Send sends a notification with the ranked detected signals.
func (c *Client) Send(signals []models.Signal) error {
	return c.sendMarkdownV2(c.formatMessage(signals))
}

var typeEmoji = map[models.SignalType]string{
	models.SignalPriceJump:       "📈",
	models.SignalPriceDrop:       "📉",
	models.SignalVolatilitySpike: "⚡",
	models.SignalSustainedTrend:  "🔁",
}

// formatMessage formats ranked signals into a Telegram MarkdownV2 message.
func (c *Client) formatMessage(signals []models.Signal) string {
	message := "🚨 *Market Signals*\n\n"

	if len(signals) > 0 {
		dateStr := escapeMarkdownV2(signals[0].DetectedAt.Format("2006-01-02 15:04:05"))
		message += fmt.Sprintf("📅 Detected: %s\n\n", dateStr)
	}

	for i, sig := range signals {
		emoji := typeEmoji[sig.Type]
		if emoji == "" {
			emoji = "🔔"
		}

		message += fmt.Sprintf("%d\\. %s\n", i+1, escapeMarkdownV2(sig.Question))
		message += fmt.Sprintf("   %s *%s* \\(%s\\) over %dh\n",
			emoji,
			escapeMarkdownV2(string(sig.Type)),
			escapeMarkdownV2(string(sig.Strength)),
			sig.WindowHours,
		)

		prevStr := escapeMarkdownV2(fmt.Sprintf("%.1f%%", sig.PreviousPrice*100))
		currStr := escapeMarkdownV2(fmt.Sprintf("%.1f%%", sig.CurrentPrice*100))
		confStr := escapeMarkdownV2(fmt.Sprintf("%.0f%%", sig.Confidence*100))
		message += fmt.Sprintf("   %s → %s, confidence %s\n", prevStr, currStr, confStr)

		if sig.PredictedOutcome != "" {
			message += fmt.Sprintf("   🎯 Predicted: %s\n", escapeMarkdownV2(sig.PredictedOutcome))
		}

		message += "\n"
	}

	return message
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
