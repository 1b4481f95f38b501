package config

import (
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
    Addr            string
    ReadTimeout     time.Duration
    WriteTimeout    time.Duration
    ShutdownTimeout time.Duration
    MaxUploadBytes  int64
    // Basic auth on /api; disabled when PasswordHash is empty.
    AuthUser         string
    AuthPasswordHash string
}

// StoreConfig points at the SQLite databases.
type StoreConfig struct {
    DocumentsDB string
    ProjectsDB  string
}

// FoldersConfig is the document tree served by the folder lister.
type FoldersConfig struct {
    Root string
}

// SummarizerConfig defines summarization backends and limits.
type SummarizerConfig struct {
    OllamaURL       string
    OpenAIURL       string
    OpenAIKey       string
    AnthropicURL    string
    AnthropicKey    string
    Python          string
    Script          string
    ScriptTimeout   time.Duration
    RequestTimeout  time.Duration
    MaxChars        int
    TextThreshold   int
    MaxInflight     int
    BreakerFailures int
    BreakerCooldown time.Duration
    CooldownBase    time.Duration
    CooldownMax     time.Duration
    // LibreOffice for office uploads; conversion is off when the binary is missing.
    OfficeBinary    string
    OfficeTimeout   time.Duration
    OfficeWorkers   int
}

// SplitConfig controls split sessions.
type SplitConfig struct {
    SessionTTL     time.Duration
    JanitorEvery   time.Duration
    Workers        int
    ThumbnailDPI   int
    ThumbnailQuality int
}

// CacheConfig enables the redis summary cache and shared rate limit state.
type CacheConfig struct {
    RedisURL   string
    SummaryTTL time.Duration
}

// ExportConfig enables archive export to S3.
type ExportConfig struct {
    Bucket    string
    Region    string
    Endpoint  string
    AccessKey string
    SecretKey string
    Prefix    string
    Password  string
}

func (e ExportConfig) Enabled() bool { return e.Bucket != "" }

// Config is the top-level configuration.
type Config struct {
    Server     ServerConfig
    Store      StoreConfig
    Folders    FoldersConfig
    Summarizer SummarizerConfig
    Split      SplitConfig
    Cache      CacheConfig
    Export     ExportConfig
    Logging    LoggingConfig
    Axiom      AxiomConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    cfg.Server = ServerConfig{
        Addr:             getEnv("HTTP_ADDR", ":"+getEnv("PORT", "8080")),
        ReadTimeout:      parseDuration(getEnv("HTTP_READ_TIMEOUT", "60s"), 60*time.Second),
        WriteTimeout:     parseDuration(getEnv("HTTP_WRITE_TIMEOUT", "300s"), 300*time.Second),
        ShutdownTimeout:  parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
        MaxUploadBytes:   int64(parseInt(getEnv("MAX_UPLOAD_MB", "200"), 200)) << 20,
        AuthUser:         getEnv("AUTH_USER", "admin"),
        AuthPasswordHash: getEnv("AUTH_PASSWORD_HASH", ""),
    }

    dataDir := getEnv("DATA_DIR", "data")
    cfg.Store = StoreConfig{
        DocumentsDB: getEnv("DOCUMENTS_DB", filepath.Join(dataDir, "directories.db")),
        ProjectsDB:  getEnv("PROJECTS_DB", filepath.Join(dataDir, "projects.db")),
    }

    cfg.Folders = FoldersConfig{Root: getEnv("ROOT_FOLDER", ".")}

    cfg.Summarizer = SummarizerConfig{
        OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
        OpenAIURL:       getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
        OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
        AnthropicURL:    getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
        AnthropicKey:    getEnv("ANTHROPIC_API_KEY", ""),
        Python:          getEnv("SUMMARIZE_PYTHON", "python"),
        Script:          getEnv("SUMMARIZE_SCRIPT", "scripts/summarize.py"),
        ScriptTimeout:   parseDuration(getEnv("SUMMARIZE_SCRIPT_TIMEOUT", "180s"), 180*time.Second),
        RequestTimeout:  parseDuration(getEnv("SUMMARIZE_TIMEOUT", "120s"), 120*time.Second),
        MaxChars:        parseInt(getEnv("SUMMARIZE_MAX_CHARS", "60000"), 60000),
        TextThreshold:   parseInt(getEnv("PDF_TEXT_THRESHOLD", "20"), 20),
        MaxInflight:     parseInt(getEnv("MAX_INFLIGHT_PER_MODEL", "2"), 2),
        BreakerFailures: parseInt(getEnv("BREAKER_FAILURES", "3"), 3),
        BreakerCooldown: parseDuration(getEnv("BREAKER_COOLDOWN", "30s"), 30*time.Second),
        CooldownBase:    parseDuration(getEnv("RATE_LIMIT_BASE_BACKOFF", "30s"), 30*time.Second),
        CooldownMax:     parseDuration(getEnv("RATE_LIMIT_MAX_BACKOFF", "5m"), 5*time.Minute),
        OfficeBinary:    getEnv("SOFFICE_BIN", "soffice"),
        OfficeTimeout:   parseDuration(getEnv("SOFFICE_TIMEOUT", "180s"), 180*time.Second),
        OfficeWorkers:   parseInt(getEnv("SOFFICE_WORKERS", "2"), 2),
    }

    cfg.Split = SplitConfig{
        SessionTTL:       parseDuration(getEnv("SPLIT_SESSION_TTL", "30m"), 30*time.Minute),
        JanitorEvery:     parseDuration(getEnv("SPLIT_JANITOR_INTERVAL", "1m"), time.Minute),
        Workers:          parseInt(getEnv("SPLIT_WORKERS", "0"), 0),
        ThumbnailDPI:     parseInt(getEnv("THUMBNAIL_DPI", "36"), 36),
        ThumbnailQuality: parseInt(getEnv("THUMBNAIL_QUALITY", "70"), 70),
    }

    cfg.Cache = CacheConfig{
        RedisURL:   getEnv("REDIS_URL", ""),
        SummaryTTL: parseDuration(getEnv("SUMMARY_CACHE_TTL", "24h"), 24*time.Hour),
    }

    cfg.Export = ExportConfig{
        Bucket:    getEnv("EXPORT_S3_BUCKET", ""),
        Region:    getEnv("AWS_REGION", "eu-central-1"),
        Endpoint:  getEnv("EXPORT_S3_ENDPOINT", ""),
        AccessKey: getEnv("EXPORT_S3_ACCESS_KEY", ""),
        SecretKey: getEnv("EXPORT_S3_SECRET_KEY", ""),
        Prefix:    getEnv("EXPORT_S3_PREFIX", "chopdok"),
        Password:  getEnv("EXPORT_PASSWORD", ""),
    }

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/chopdok.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_chopdok",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    return cfg
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
