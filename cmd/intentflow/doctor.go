package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"intentflow/internal/config"
)

type check struct {
	Name string
	Fn   func(ctx context.Context) error
	// Skip explains why the check does not apply to this config.
	Skip string
}

func doctorChecks(cfg config.Config) []check {
	checks := []check{
		{Name: "daemon", Fn: func(ctx context.Context) error { return pingHTTP(ctx, localHTTPBase(cfg)+"/healthz") }},
		{Name: "tesseract", Fn: lookPath(cfg.OCR.Tesseract)},
		{Name: "pdftoppm", Fn: lookPath(cfg.OCR.Pdftoppm)},
		{Name: "yt-dlp", Fn: lookPath(cfg.YouTube.Ytdlp)},
		{Name: "llm", Fn: func(context.Context) error {
			if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
				return fmt.Errorf("missing api key")
			}
			return nil
		}},
		{Name: "database", Fn: func(ctx context.Context) error { return pingDatabase(ctx, cfg.Database.DSN) }},
		{Name: "redis", Fn: func(ctx context.Context) error { return pingRedis(ctx, cfg.Redis.URL) }},
	}
	if cfg.LLM.Provider != "openai" {
		checks[4].Skip = "provider " + cfg.LLM.Provider
	}
	if cfg.Database.DSN == "" {
		checks[5].Skip = "no database.dsn"
	}
	if cfg.Redis.URL == "" {
		checks[6].Skip = "no redis.url"
	}
	return checks
}

func doctor(cfg config.Config, out io.Writer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, c := range doctorChecks(cfg) {
		if c.Skip != "" {
			fmt.Fprintf(out, "%s: SKIP (%s)\n", c.Name, c.Skip)
			continue
		}
		if err := c.Fn(ctx); err != nil {
			fmt.Fprintf(out, "%s: FAIL (%v)\n", c.Name, err)
			continue
		}
		fmt.Fprintf(out, "%s: OK\n", c.Name)
	}
}

func lookPath(bin string) func(context.Context) error {
	return func(context.Context) error {
		_, err := exec.LookPath(bin)
		return err
	}
}

func pingHTTP(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func pingDatabase(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}

func pingRedis(ctx context.Context, rawURL string) error {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return err
	}
	client := redis.NewClient(opts)
	defer client.Close()
	return client.Ping(ctx).Err()
}
