package main

import (
	"context"
	"log"
	"os"

	corecmd "github.com/m3rciful/trainerbot/core/cmd"
	"github.com/m3rciful/trainerbot/core/telegram/netutil"
	"github.com/m3rciful/trainerbot/internal/app"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.App, error) {
			return app.Bootstrap(ctx, cfg.(*app.Config))
		},
	})
	if err != nil {
		log.Printf("trainerbot: %s", netutil.Redact(err))
		os.Exit(1)
	}
}
