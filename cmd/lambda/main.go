// Command lambda serves the nmtflow pipeline as an AWS Lambda function.
//
// Requests are JSON objects with an "action" field: translate_texts,
// translate_html, clear_cache or cache_stats. Configuration comes from
// NMTFLOW_* environment variables and the optional file named by
// NMTFLOW_CONFIG.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/ZaguanLabs/nmtflow/config"
	"github.com/ZaguanLabs/nmtflow/internal/app"
)

var (
	initOnce sync.Once
	handler  *Handler
	initErr  error
)

func main() {
	lambda.Start(handleRequest)
}

// getHandler builds the pipeline once per Lambda instance.
func getHandler(ctx context.Context) (*Handler, error) {
	initOnce.Do(func() {
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		cfg, err := config.Load(config.New(), os.Getenv("NMTFLOW_CONFIG"))
		if err != nil {
			initErr = err
			return
		}
		a, err := app.New(ctx, cfg, app.Options{Sanitize: true}, logger)
		if err != nil {
			initErr = err
			return
		}
		a.Handle.LoadAsync(context.Background())
		handler = NewHandler(a)
	})
	return handler, initErr
}

func handleRequest(ctx context.Context, event json.RawMessage) (any, error) {
	h, err := getHandler(ctx)
	if err != nil {
		return nil, err
	}

	if warmup, ok := IsWarmupEvent(event); ok {
		return h.HandleWarmup(ctx, warmup), nil
	}

	var req Request
	if err := json.Unmarshal(event, &req); err != nil {
		return nil, err
	}
	return h.Handle(ctx, req), nil
}
