package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/syncbridge/syncbridge/pkg/auth"
	"github.com/syncbridge/syncbridge/pkg/config"
)

func main() {
	log := logger.New()

	var opts struct {
		Secret string `short:"s" long:"secret" description:"Override the configured JWT secret"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/generate-token <service-name>")
		os.Exit(1)
	}

	secret := opts.Secret
	if secret == "" {
		cfg, err := config.New()
		if err != nil {
			log.Err(err).Fatal("config error")
		}
		secret = cfg.JWTSecret
	}
	if secret == "" {
		log.Err(errors.New("no JWT secret configured")).Fatal("token generation error")
	}

	token, err := auth.NewService(secret).GenerateToken(args[0])
	if err != nil {
		log.Err(err).Fatal("token generation error")
	}
	fmt.Println(token)
}
