package main

import (
	"context"
	"log"

	corecmd "github.com/m3rciful/quizbot/core/cmd"
	"github.com/m3rciful/quizbot/quizbot"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		Build: func(ctx context.Context, path string) (corecmd.App, error) {
			cfg, err := quizbot.LoadConfig(path)
			if err != nil {
				return nil, err
			}
			return quizbot.NewApp(ctx, cfg)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
