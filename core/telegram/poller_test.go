package telegram

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/veltapay/paybot/core/config"
)

func TestBuildPollerLongpoll(t *testing.T) {
	p := BuildPoller(coreconfig.TelegramConfig{
		RunMode:                coreconfig.RunModeLongpoll,
		LongPollTimeoutSeconds: 25,
	}, coreconfig.WebhookConfig{})

	lp, ok := p.(*tele.LongPoller)
	if !ok {
		t.Fatalf("expected *tele.LongPoller, got %T", p)
	}
	if lp.Timeout != 25*time.Second {
		t.Errorf("timeout = %v, want 25s", lp.Timeout)
	}
}

func TestBuildPollerLongpollDefaultTimeout(t *testing.T) {
	p := BuildPoller(coreconfig.TelegramConfig{RunMode: coreconfig.RunModeLongpoll}, coreconfig.WebhookConfig{})

	lp, ok := p.(*tele.LongPoller)
	if !ok {
		t.Fatalf("expected *tele.LongPoller, got %T", p)
	}
	if lp.Timeout != defaultLongPollTimeout {
		t.Errorf("timeout = %v, want %v", lp.Timeout, defaultLongPollTimeout)
	}
}

func TestBuildPollerWebhook(t *testing.T) {
	p := BuildPoller(coreconfig.TelegramConfig{RunMode: coreconfig.RunModeWebhook}, coreconfig.WebhookConfig{
		URL:    "https://bot.example.com/updates",
		Listen: "0.0.0.0",
		Port:   8443,
	})

	wh, ok := p.(*tele.Webhook)
	if !ok {
		t.Fatalf("expected *tele.Webhook, got %T", p)
	}
	if wh.Listen != "0.0.0.0:8443" {
		t.Errorf("listen = %q, want 0.0.0.0:8443", wh.Listen)
	}
	if wh.Endpoint.PublicURL != "https://bot.example.com/updates" {
		t.Errorf("public url = %q", wh.Endpoint.PublicURL)
	}
}
