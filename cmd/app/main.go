package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"

    "github.com/gorilla/mux"
    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"

    "github.com/local/chopdok/internal/ai"
    cfgpkg "github.com/local/chopdok/internal/config"
    "github.com/local/chopdok/internal/converter"
    "github.com/local/chopdok/internal/folders"
    "github.com/local/chopdok/internal/imagerender"
    "github.com/local/chopdok/internal/limiter"
    logpkg "github.com/local/chopdok/internal/logger"
    "github.com/local/chopdok/internal/metrics"
    "github.com/local/chopdok/internal/orchestrator"
    "github.com/local/chopdok/internal/statuscheck"
    "github.com/local/chopdok/internal/storage"
    "github.com/local/chopdok/internal/store"
    "github.com/local/chopdok/internal/summarizer"
    "github.com/local/chopdok/internal/web"
)

func main() {
    // .env is optional; real environment variables win.
    _ = godotenv.Load()
    cfg := cfgpkg.FromEnv()

    _ = logpkg.Init(logpkg.Options{
        Service:      "chopdok",
        Level:        cfg.Logging.Level,
        Pretty:       cfg.Logging.Pretty,
        File:         cfg.Logging.File,
        MaxSizeMB:    cfg.Logging.MaxSizeMB,
        MaxBackups:   cfg.Logging.MaxBackups,
        MaxAgeDays:   cfg.Logging.MaxAgeDays,
        Compress:     cfg.Logging.Compress,
        SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey:  cfg.Axiom.APIKey,
        AxiomOrgID:   cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush:   cfg.Axiom.FlushInterval,
    })
    defer logpkg.Close()
    metrics.Init()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    // Stores
    docs, err := store.OpenDocumentStore(ctx, cfg.Store.DocumentsDB)
    if err != nil { log.Fatal().Err(err).Str("path", cfg.Store.DocumentsDB).Msg("failed to open documents db") }
    defer docs.Close()
    projects, err := store.OpenProjectStore(ctx, cfg.Store.ProjectsDB)
    if err != nil { log.Fatal().Err(err).Str("path", cfg.Store.ProjectsDB).Msg("failed to open projects db") }
    defer projects.Close()

    health := statuscheck.Options{
        Documents: docs.DB(),
        Projects:  projects.DB(),
        OllamaURL: cfg.Summarizer.OllamaURL,
        Python:    cfg.Summarizer.Python,
        Script:    cfg.Summarizer.Script,
        Soffice:   cfg.Summarizer.OfficeBinary,
    }

    // Summary cache (optional)
    var cache *store.SummaryCache
    if cfg.Cache.RedisURL != "" {
        cache, err = store.NewSummaryCache(cfg.Cache.RedisURL, cfg.Cache.SummaryTTL)
        if err != nil {
            log.Warn().Err(err).Msg("redis unavailable, summaries are read from sqlite only")
            cache = nil
        } else {
            defer cache.Close()
            health.Cache = cache
        }
    }
    summaries := store.NewSummaries(docs, cache)

    // Summarizer
    lim, err := limiter.New(limiter.Options{
        RedisURL:    cfg.Cache.RedisURL,
        MaxInflight: cfg.Summarizer.MaxInflight,
        BaseBackoff: cfg.Summarizer.CooldownBase,
        MaxBackoff:  cfg.Summarizer.CooldownMax,
    })
    if err != nil { log.Fatal().Err(err).Msg("failed to init limiter") }
    defer lim.CloseClient()

    hc := ai.DefaultHTTPClient(cfg.Summarizer.RequestTimeout)
    clients := []ai.Client{ai.NewOllamaClient(cfg.Summarizer.OllamaURL, hc)}
    if cfg.Summarizer.OpenAIKey != "" {
        clients = append(clients, ai.NewOpenAIClient(cfg.Summarizer.OpenAIURL, cfg.Summarizer.OpenAIKey, hc))
    }
    if cfg.Summarizer.AnthropicKey != "" {
        clients = append(clients, ai.NewAnthropicClient(cfg.Summarizer.AnthropicURL, cfg.Summarizer.AnthropicKey, hc))
    }
    var office summarizer.OfficeConverter
    lo := converter.NewLibreOffice(converter.Options{
        Binary:     cfg.Summarizer.OfficeBinary,
        MaxWorkers: cfg.Summarizer.OfficeWorkers,
        Timeout:    cfg.Summarizer.OfficeTimeout,
    })
    if lo.Available() {
        office = lo
    } else {
        log.Warn().Str("binary", lo.Binary()).Msg("LibreOffice not found, office uploads cannot be summarized")
    }
    sum := summarizer.New(summaries, &summarizer.Script{
        Python:  cfg.Summarizer.Python,
        Path:    cfg.Summarizer.Script,
        Timeout: cfg.Summarizer.ScriptTimeout,
    }, lim, summarizer.Options{
        Timeout:         cfg.Summarizer.RequestTimeout,
        MaxChars:        cfg.Summarizer.MaxChars,
        TextThreshold:   cfg.Summarizer.TextThreshold,
        BreakerFailures: uint32(cfg.Summarizer.BreakerFailures),
        BreakerCooldown: cfg.Summarizer.BreakerCooldown,
        Office:          office,
    }, clients...)

    lister := folders.New(cfg.Folders.Root, docs, summaries, docs)

    // Split sessions
    deps := orchestrator.Dependencies{
        Files:   lister,
        TTL:     cfg.Split.SessionTTL,
        Workers: cfg.Split.Workers,
        Thumbnails: imagerender.Options{
            DPI:       cfg.Split.ThumbnailDPI,
            Quality:   cfg.Split.ThumbnailQuality,
            ColorMode: imagerender.DefaultOptions.ColorMode,
        },
    }
    if cfg.Export.Enabled() {
        exp, err := storage.NewS3Exporter(ctx, storage.Options{
            Bucket:    cfg.Export.Bucket,
            Region:    cfg.Export.Region,
            Endpoint:  cfg.Export.Endpoint,
            AccessKey: cfg.Export.AccessKey,
            SecretKey: cfg.Export.SecretKey,
            Prefix:    cfg.Export.Prefix,
            Password:  cfg.Export.Password,
        })
        if err != nil {
            log.Warn().Err(err).Msg("s3 export disabled")
        } else {
            deps.Exporter = exp
            health.Export = exp
        }
    }
    orch := orchestrator.New(deps)
    go orch.RunJanitor(ctx, cfg.Split.JanitorEvery)

    w := web.New(web.Dependencies{
        Projects:         projects,
        Names:            docs,
        Summaries:        summaries,
        Folders:          lister,
        Summarizer:       sum,
        Health:           statuscheck.New(health),
        AuthUser:         cfg.Server.AuthUser,
        AuthPasswordHash: cfg.Server.AuthPasswordHash,
        MaxUploadBytes:   cfg.Server.MaxUploadBytes,
    })
    router := w.Router(func(r *mux.Router) { orch.RegisterRoutes(r, cfg.Server.MaxUploadBytes) })

    srv := &http.Server{
        Addr:         cfg.Server.Addr,
        Handler:      router,
        ReadTimeout:  cfg.Server.ReadTimeout,
        WriteTimeout: cfg.Server.WriteTimeout,
    }

    go func() {
        log.Info().Str("addr", cfg.Server.Addr).Str("root", lister.Root()).Msg("HTTP server listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    // Graceful shutdown
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.Error().Err(err).Msg("shutdown")
    }
    log.Info().Int("sessions", orch.Count()).Msg("shutdown complete")
}
