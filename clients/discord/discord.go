package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"predictwatch/clients/notifier"
	"predictwatch/config"
)

// DiscordClient sends alerts to a Discord channel.
// Implements notifier.Notifier. Alerts go over the REST API only; no
// gateway connection is opened.
type DiscordClient struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) (*DiscordClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	channelID := cfg.Discord.BetaChannelID
	if cfg.IsProd {
		channelID = cfg.Discord.ProdChannelID
	}

	if cfg.Discord.BotToken == "" {
		logger.Warn("discord bot token not set, Discord alerts disabled")
		return &DiscordClient{logger: logger, channelID: channelID}, nil
	}

	session, err := discordgo.New("Bot " + cfg.Discord.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	logger.Info("discord client initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("channelID", channelID),
	)

	return &DiscordClient{
		logger:    logger,
		session:   session,
		channelID: channelID,
	}, nil
}

func (dc *DiscordClient) Send(ctx context.Context, alert notifier.Alert) error {
	if dc.session == nil || dc.channelID == "" {
		dc.logger.Warn("discord not configured, skipping alert")
		return nil
	}

	embed := dc.buildEmbed(alert)
	if _, err := dc.session.ChannelMessageSendEmbed(dc.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}

	dc.logger.Info("sent discord alert",
		zap.String("kind", string(alert.Kind)),
		zap.String("market", alert.MarketID),
	)
	return nil
}

func (dc *DiscordClient) Close() error {
	if dc.session == nil {
		return nil
	}
	return dc.session.Close()
}

func (dc *DiscordClient) buildEmbed(alert notifier.Alert) *discordgo.MessageEmbed {
	marketLabel := alert.Market
	if marketLabel == "" {
		marketLabel = alert.MarketID
	}

	embed := &discordgo.MessageEmbed{
		Title: embedTitle(alert.Kind),
		Color: embedColor(alert.Kind),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Market", Value: marketLabel, Inline: false},
		},
	}

	addField := func(name, value string, inline bool) {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: name, Value: value, Inline: inline,
		})
	}

	switch alert.Kind {
	case notifier.KindWhale:
		addField("Wallet", alert.Wallet, true)
		addField("Side", alert.Side, true)
		addField("Amount", fmt.Sprintf("$%.2f", alert.Amount), true)
		if alert.HasWinRate {
			addField("Est. Win Rate", fmt.Sprintf("%.0f%%", alert.WinRate), true)
		}
	case notifier.KindCoordinated:
		addField("Side", alert.Side, true)
		addField("Wallets", fmt.Sprintf("%d", alert.WalletCount), true)
		addField("Combined", fmt.Sprintf("$%.2f", alert.TotalAmount), true)
	case notifier.KindTracked:
		name := alert.Nickname
		if name == "" {
			name = alert.Wallet
		}
		addField("Wallet", name, true)
		addField("Side", alert.Side, true)
		addField("Amount", fmt.Sprintf("$%.2f", alert.Amount), true)
	case notifier.KindVolumeSpike:
		addField("Volume", fmt.Sprintf("$%.2f", alert.CurrentVolume), true)
		addField("Ratio", fmt.Sprintf("%.1fx", alert.SpikeRatio), true)
		if alert.DominantSide != "" {
			side := alert.DominantSide
			if alert.DominantPct > 0 {
				side = fmt.Sprintf("%s (%.1f%%)", side, alert.DominantPct)
			}
			addField("Dominant Side", side, true)
		}
	}

	if alert.HasScore {
		sizing := "skip"
		if alert.PositionPct > 0 {
			sizing = fmt.Sprintf("%d%%", alert.PositionPct)
		}
		addField("Entry Quality", fmt.Sprintf("%d/100 (size %s)", alert.Score, sizing), false)
	}

	return embed
}

func embedTitle(kind notifier.Kind) string {
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

func embedColor(kind notifier.Kind) int {
	switch kind {
	case notifier.KindWhale:
		return 0x3498db
	case notifier.KindCoordinated:
		return 0xe67e22
	case notifier.KindTracked:
		return 0x9b59b6
	case notifier.KindVolumeSpike:
		return 0x2ecc71
	default:
		return 0x95a5a6
	}
}
