// Command upload sends files to the storage gateway, directly to the bucket
// when possible and through the gateway otherwise.
//
//	upload -server http://localhost:8080 -token $TOKEN lesson.mp4 worksheet.pdf
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bimbel/storagegw/internal/uploader"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	serverURL := flag.String("server", envOr("STORAGEGW_URL", "http://localhost:8080"), "gateway base URL")
	token := flag.String("token", os.Getenv("STORAGEGW_TOKEN"), "bearer token")
	contentType := flag.String("type", "", "content type for every file (guessed from the extension when empty)")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall time limit")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client := uploader.NewHTTPClient(*serverURL, *token, nil)
	orch := uploader.NewOrchestrator(client, client, client, log.Logger)
	out := json.NewEncoder(os.Stdout)

	failed := 0
	for _, path := range flag.Args() {
		f, err := uploader.OpenFile(path, *contentType)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("cannot read file")
			failed++
			continue
		}
		res, err := orch.Upload(ctx, f)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("upload failed")
			failed++
			if ctx.Err() != nil {
				break
			}
			continue
		}
		_ = out.Encode(struct {
			File string `json:"file"`
			*uploader.Result
		}{File: path, Result: res})
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
