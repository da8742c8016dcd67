package telegram

import (
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/veltapay/paybot/core/config"
)

const defaultLongPollTimeout = 10 * time.Second

// BuildPoller returns the update poller for the configured run mode. Config
// validation has already normalized the mode and checked the webhook fields,
// so anything but webhook falls back to long polling.
func BuildPoller(tg coreconfig.TelegramConfig, wh coreconfig.WebhookConfig) tele.Poller {
	if tg.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:   fmt.Sprintf("%s:%d", wh.Listen, wh.Port),
			Endpoint: &tele.WebhookEndpoint{PublicURL: wh.URL},
		}
	}
	return &tele.LongPoller{Timeout: longPollTimeout(tg.LongPollTimeoutSeconds)}
}

func longPollTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultLongPollTimeout
	}
	return time.Duration(seconds) * time.Second
}
