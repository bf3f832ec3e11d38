package clients

import (
	"go.uber.org/zap"

	"predictwatch/clients/discord"
	"predictwatch/clients/notifier"
	"predictwatch/clients/predictapi"
	"predictwatch/clients/telegram"
	"predictwatch/config"
)

// Clients bundles the external collaborators the runner needs.
type Clients struct {
	Logger   *zap.Logger
	Predict  *predictapi.Client
	Notifier notifier.Notifier
}

// NewClients builds the client set from config. Notification channels that
// are not configured are still constructed; they no-op on send.
func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	if logger == nil {
		logger = zap.NewNop()
	}

	predict := predictapi.New(logger.Named("predictapi"), cfg)
	tg := telegram.NewTelegramClient(logger.Named("telegram"), cfg)

	channels := []notifier.Notifier{tg}
	dc, err := discord.NewDiscordClient(logger.Named("discord"), cfg)
	if err != nil {
		logger.Warn("discord client unavailable", zap.Error(err))
	} else {
		channels = append(channels, dc)
	}

	return &Clients{
		Logger:   logger,
		Predict:  predict,
		Notifier: notifier.NewMultiNotifier(logger.Named("notifier"), channels...),
	}
}

// Close shuts down notification channels.
func (c *Clients) Close() error {
	if c.Notifier == nil {
		return nil
	}
	return c.Notifier.Close()
}
