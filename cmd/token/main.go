// Command token mints a bearer token signed with JWT_SECRET for local testing
// against the gateway.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bimbel/storagegw/internal/auth"
	"github.com/bimbel/storagegw/internal/config"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	subject := flag.String("sub", "dev-tutor", "token subject (user id)")
	role := flag.String("role", "TUTOR", "role claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.Load()
	if cfg.IsProduction() {
		log.Fatal().Msg("refusing to mint tokens with APP_ENV=production")
	}

	token, err := auth.NewIssuer(cfg.JWTSecret, *ttl).Issue(*subject, *role)
	if err != nil {
		log.Fatal().Err(err).Msg("sign token")
	}
	fmt.Println(token)
}
