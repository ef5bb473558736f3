package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"intentflow/internal/config"
	"intentflow/internal/extract"
	"intentflow/internal/intent"
	"intentflow/internal/llm"
	"intentflow/internal/logger"
	"intentflow/internal/mcp"
	"intentflow/internal/observability"
	"intentflow/internal/orchestrator"
	"intentflow/internal/sentiment"
	"intentflow/internal/server"
	"intentflow/internal/session"
	"intentflow/internal/store"
	"intentflow/internal/tasks"
)

type App struct {
	Config       config.Config
	Log          logger.Logger
	Store        *store.Store
	Sessions     session.Store
	LLM          llm.Provider
	Observer     *observability.OutcomeObserver
	Orchestrator *orchestrator.Orchestrator
	MCP          *mcp.Server
	Server       *server.Server

	redis *session.Redis
}

func New(ctx context.Context, cfg config.Config, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{Config: cfg, Log: log}

	if cfg.Database.DSN != "" {
		st, err := store.Open(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx, st.DB()); err != nil {
			_ = st.Close()
			return nil, err
		}
		a.Store = st
	}

	sessions, err := a.selectSessions(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Sessions = sessions

	a.LLM = selectLLM(cfg, log)
	a.Observer = observability.NewOutcomeObserver(log)

	registry := tasks.NewRegistry(tasks.Options{
		LLM:       a.LLM,
		Sentiment: selectSentiment(cfg),
		Timeout:   cfg.Orchestrator.TaskTimeout,
		Logger:    log,
	})

	opts := orchestrator.Options{
		Extractors:      selectExtractors(cfg, log),
		Oracle:          selectOracle(cfg, a.LLM),
		Tasks:           registry,
		Sessions:        a.Sessions,
		Observer:        a.Observer,
		Logger:          log,
		ExtractTimeout:  cfg.Orchestrator.ExtractTimeout,
		ClassifyTimeout: cfg.Orchestrator.ClassifyTimeout,
		MaxRounds:       cfg.Session.MaxRounds,
	}
	if a.Store != nil {
		opts.Audit = a.Store
	}
	a.Orchestrator = orchestrator.New(opts)
	a.MCP = mcp.NewServer(cfg, a.Orchestrator, a.Sessions, log)

	srvOpts := server.Options{
		Config:    cfg,
		Processor: a.Orchestrator,
		MCP:       a.MCP,
		Observer:  a.Observer,
		Checks:    map[string]server.Check{},
		Logger:    log,
	}
	if a.Store != nil {
		srvOpts.Recent = a.Store
		srvOpts.Checks["postgres"] = a.Store.Ping
	}
	if a.redis != nil {
		srvOpts.Checks["redis"] = a.redis.Ping
	}
	a.Server = server.New(srvOpts)

	log.Info("app.ready",
		"llm", a.LLM.Name(),
		"model", a.LLM.Model(),
		"sessions", cfg.Session.Backend,
		"audit", a.Store != nil,
	)
	return a, nil
}

func (a *App) Close() error {
	var err error
	if a.Store != nil {
		err = a.Store.Close()
	}
	if a.redis != nil {
		err = errors.Join(err, a.redis.Close())
	}
	return err
}

func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           a.Server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.Log.Info("http.listen", "addr", a.Config.HTTP.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) selectSessions(cfg config.Config) (session.Store, error) {
	if cfg.Session.Backend == "redis" {
		rs, err := session.NewRedis(cfg.Redis.URL, cfg.Session.KeyPrefix, cfg.Session.TTL)
		if err != nil {
			return nil, err
		}
		a.redis = rs
		return rs, nil
	}
	return session.NewMemory(cfg.Session.Capacity, cfg.Session.TTL), nil
}

func selectLLM(cfg config.Config, log logger.Logger) llm.Provider {
	switch cfg.LLM.Provider {
	case "openai":
		if cfg.LLM.APIKey != "" {
			return llm.NewOpenAI(llm.OpenAIConfig{
				BaseURL:    cfg.LLM.BaseURL,
				APIKey:     cfg.LLM.APIKey,
				Model:      cfg.LLM.Model,
				Timeout:    cfg.LLM.Timeout,
				MaxRetries: cfg.LLM.MaxRetries,
			}, log)
		}
	}
	return llm.Disabled{Reason: "llm provider " + cfg.LLM.Provider}
}

// selectOracle uses keyword rules in noop mode so dev setups still route
// requests without a hosted model.
func selectOracle(cfg config.Config, provider llm.Provider) intent.Oracle {
	if cfg.LLM.Provider == "noop" {
		return intent.NewKeywordOracle()
	}
	return intent.NewLLMOracle(provider)
}

func selectSentiment(cfg config.Config) sentiment.Model {
	switch cfg.Sentiment.Provider {
	case "huggingface":
		return sentiment.NewHuggingFace(sentiment.HuggingFaceConfig{
			URL:     cfg.Sentiment.URL,
			APIKey:  cfg.Sentiment.APIKey,
			Model:   cfg.Sentiment.Model,
			Timeout: cfg.Sentiment.Timeout,
		})
	case "lexicon":
		return sentiment.NewLexicon()
	default:
		return sentiment.Disabled{}
	}
}

func selectExtractors(cfg config.Config, log logger.Logger) extract.Set {
	runner := extract.ExecRunner{Log: log}
	ocr := extract.OCRConfig{
		Tesseract: cfg.OCR.Tesseract,
		Pdftoppm:  cfg.OCR.Pdftoppm,
		Lang:      cfg.OCR.Lang,
		DPI:       cfg.OCR.DPI,
		MaxPages:  cfg.OCR.MaxPages,
	}
	set := extract.Set{
		Image:   extract.NewImage(ocr, runner),
		PDF:     extract.NewPDF(ocr, runner, log),
		YouTube: extract.NewYouTube(extract.YouTubeConfig{Ytdlp: cfg.YouTube.Ytdlp, Lang: cfg.YouTube.Lang}, runner),
		Text:    extract.Text{},
		Audio:   extract.Unavailable{Kind: extract.KindAudio, Reason: "audio transcription disabled"},
	}
	if cfg.Audio.Provider == "whisper" {
		set.Audio = extract.NewWhisper(extract.WhisperConfig{
			BaseURL: cfg.Audio.BaseURL,
			APIKey:  cfg.Audio.APIKey,
			Model:   cfg.Audio.Model,
			Timeout: cfg.LLM.Timeout,
		})
	}
	return set
}
