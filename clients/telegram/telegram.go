package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"predictwatch/clients/notifier"
	"predictwatch/config"
)

const telegramAPIURL = "https://api.telegram.org/bot%s/%s"

// TelegramClient sends alerts to Telegram.
// Implements notifier.Notifier.
type TelegramClient struct {
	logger   *zap.Logger
	botToken string
	chatID   string
	apiURL   string
	client   *http.Client
}

func NewTelegramClient(logger *zap.Logger, cfg *config.Config) *TelegramClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	chatID := cfg.Telegram.BetaChatID
	if cfg.IsProd {
		chatID = cfg.Telegram.ProdChatID
	}

	token := cfg.Telegram.BotToken
	if token == "" {
		logger.Warn("telegram bot token not set, Telegram alerts disabled")
		return &TelegramClient{
			logger: logger,
			chatID: chatID,
			apiURL: telegramAPIURL,
		}
	}

	logger.Info("telegram bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("chatID", chatID),
	)

	return &TelegramClient{
		logger:   logger,
		botToken: token,
		chatID:   chatID,
		apiURL:   telegramAPIURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers one alert. Not configured counts as success so a missing
// token never blocks the dispatch gate.
func (tc *TelegramClient) Send(ctx context.Context, alert notifier.Alert) error {
	if tc.botToken == "" || tc.chatID == "" {
		tc.logger.Warn("telegram not configured, skipping alert")
		return nil
	}

	message := tc.buildAlertMessage(alert)
	if err := tc.sendMessage(ctx, message); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}

	tc.logger.Info("sent telegram alert",
		zap.String("kind", string(alert.Kind)),
		zap.String("market", alert.MarketID),
	)
	return nil
}

func (tc *TelegramClient) Close() error { return nil }

func (tc *TelegramClient) buildAlertMessage(alert notifier.Alert) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("*%s*\n\n", alertTitle(alert.Kind)))

	marketLabel := alert.Market
	if marketLabel == "" {
		marketLabel = alert.MarketID
	}
	sb.WriteString(fmt.Sprintf("*Market:* %s\n", escapeMarkdown(marketLabel)))

	switch alert.Kind {
	case notifier.KindWhale:
		sb.WriteString(fmt.Sprintf("*Wallet:* `%s`\n", shortAddress(alert.Wallet)))
		sb.WriteString(fmt.Sprintf("*Side:* %s\n", alert.Side))
		sb.WriteString(fmt.Sprintf("*Amount:* $%.2f\n", alert.Amount))
		if alert.HasPrice {
			sb.WriteString(fmt.Sprintf("*Price:* $%.3f\n", alert.Price))
		}
		if alert.HasWinRate {
			sb.WriteString(fmt.Sprintf("*Est. Win Rate:* %.0f%%\n", alert.WinRate))
		}

	case notifier.KindCoordinated:
		sb.WriteString(fmt.Sprintf("*Side:* %s\n", alert.Side))
		sb.WriteString(fmt.Sprintf("*Wallets:* %d\n", alert.WalletCount))
		sb.WriteString(fmt.Sprintf("*Combined:* $%.2f\n", alert.TotalAmount))

	case notifier.KindTracked:
		name := alert.Nickname
		if name == "" {
			name = shortAddress(alert.Wallet)
		}
		sb.WriteString(fmt.Sprintf("*Wallet:* %s (`%s`)\n", escapeMarkdown(name), shortAddress(alert.Wallet)))
		sb.WriteString(fmt.Sprintf("*Side:* %s\n", alert.Side))
		sb.WriteString(fmt.Sprintf("*Amount:* $%.2f\n", alert.Amount))

	case notifier.KindVolumeSpike:
		sb.WriteString(fmt.Sprintf("*Volume:* $%.2f (%.1fx average of $%.2f)\n",
			alert.CurrentVolume, alert.SpikeRatio, alert.AverageVolume))
		if alert.DominantSide != "" {
			if alert.DominantPct > 0 {
				sb.WriteString(fmt.Sprintf("*Dominant Side:* %s (%.1f%%)\n", alert.DominantSide, alert.DominantPct))
			} else {
				sb.WriteString(fmt.Sprintf("*Dominant Side:* %s\n", alert.DominantSide))
			}
		}
	}

	if alert.HasScore {
		sb.WriteString(fmt.Sprintf("\n*Entry Quality:* %d/100", alert.Score))
		if alert.PositionPct > 0 {
			sb.WriteString(fmt.Sprintf(" (suggested size %d%%)", alert.PositionPct))
		} else {
			sb.WriteString(" (skip)")
		}
		sb.WriteString("\n")
		for _, w := range alert.Warnings {
			sb.WriteString(fmt.Sprintf("⚠️ %s\n", escapeMarkdown(w)))
		}
	}

	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	sb.WriteString(fmt.Sprintf("\n_predictwatch • %s_", ts.UTC().Format("1/2/2006, 3:04:05PM (UTC)")))

	return sb.String()
}

func alertTitle(kind notifier.Kind) string {
	switch kind {
	case notifier.KindWhale:
		return "🐋 Whale Bet"
	case notifier.KindCoordinated:
		return "🤝 Coordinated Betting"
	case notifier.KindTracked:
		return "👀 Tracked Wallet Trade"
	case notifier.KindVolumeSpike:
		return "📈 Volume Spike"
	default:
		return "Alert"
	}
}

func (tc *TelegramClient) sendMessage(ctx context.Context, text string) error {
	payload := map[string]any{
		"chat_id":                  tc.chatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf(tc.apiURL, tc.botToken, "sendMessage")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram api status=%d body=%s", resp.StatusCode, string(respBody))
	}

	return nil
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return replacer.Replace(s)
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
