package main

import (
	"log"

	"github.com/veltapay/paybot/core/bootstrap"
	"github.com/veltapay/paybot/core/buildinfo"
	"github.com/veltapay/paybot/core/cmd"
	coreconfig "github.com/veltapay/paybot/core/config"
	"github.com/veltapay/paybot/internal/app"
	"github.com/veltapay/paybot/internal/session"
)

func main() {
	log.Printf("paybot %s (%s)", buildinfo.Version, buildinfo.Commit)

	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		Bootstrap: func(cfg *coreconfig.Config) (cmd.TelegramApp, error) {
			res, err := bootstrap.Run(bootstrap.Options{
				Config:  cfg,
				Connect: session.Connect,
			})
			if err != nil {
				return nil, err
			}
			return app.New(cfg, res.Redis), nil
		},
	})
	if err != nil {
		log.Fatalf("paybot: %v", err)
	}
}
