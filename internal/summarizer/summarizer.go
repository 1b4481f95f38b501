// Package summarizer forwards a document to a model server or the external
// summarization script and stores the resulting text.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/local/chopdok/internal/ai"
	"github.com/local/chopdok/internal/apperr"
	"github.com/local/chopdok/internal/filetype"
	"github.com/local/chopdok/internal/limiter"
	"github.com/local/chopdok/internal/metrics"
	"github.com/local/chopdok/internal/mupdf"
	"github.com/local/chopdok/internal/pdftest"
)

// Request is one summarization call. Path is the store key; it defaults to
// FileName.
type Request struct {
	FileName       string
	Path           string
	Content        []byte
	Provider       string
	Model          string
	PromptTemplate string
}

type Result struct {
	Path     string        `json:"path"`
	Summary  string        `json:"summary"`
	Backend  string        `json:"backend"`
	Duration time.Duration `json:"-"`
}

// OfficeConverter turns office documents into PDF.
type OfficeConverter interface {
	ToPDF(ctx context.Context, fileName string, data []byte) ([]byte, error)
}

// SummaryWriter persists summaries.
type SummaryWriter interface {
	UpsertSummary(ctx context.Context, path, summary string) error
}

type Options struct {
	// Timeout bounds a single backend call.
	Timeout time.Duration
	// MaxChars caps the document text sent to a model; zero means unlimited.
	MaxChars int
	// TextThreshold is the minimum sampled character count for a PDF to
	// count as having text.
	TextThreshold int
	// BreakerFailures consecutive transient failures open a backend's breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long an open breaker rejects calls.
	BreakerCooldown time.Duration
	// Office converts office uploads to PDF for model backends; nil rejects them.
	Office OfficeConverter
}

// Service picks the backend for a request, guards it with a concurrency cap
// and a circuit breaker, and stores successful summaries.
type Service struct {
	clients  map[string]ai.Client
	script   *Script
	store    SummaryWriter
	limiter  *limiter.Adaptive
	text     *mupdf.TextExtractor
	detector *filetype.Detector
	opts     Options

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New builds a Service. Clients are keyed by their lowercased Name; any
// provider without a client goes to script. lim may be nil.
func New(store SummaryWriter, script *Script, lim *limiter.Adaptive, opts Options, clients ...ai.Client) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 3
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}
	s := &Service{
		clients:  map[string]ai.Client{},
		script:   script,
		store:    store,
		limiter:  lim,
		text:     mupdf.NewTextExtractor(opts.MaxChars),
		detector: filetype.New(),
		opts:     opts,
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}
	for _, c := range clients {
		s.clients[strings.ToLower(c.Name())] = c
	}
	return s
}

// Backend returns the name of the backend that serves provider.
func (s *Service) Backend(provider string) string {
	if _, ok := s.clients[strings.ToLower(provider)]; ok {
		return strings.ToLower(provider)
	}
	return "script"
}

func (r Request) validate() error {
	var missing []string
	if r.FileName == "" || len(r.Content) == 0 {
		missing = append(missing, "file")
	}
	if r.Provider == "" {
		missing = append(missing, "modelProvider")
	}
	if r.Model == "" {
		missing = append(missing, "modelOption")
	}
	if r.PromptTemplate == "" {
		missing = append(missing, "promptTemplate")
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Summarize runs req against its backend and stores the summary under
// req.Path. A failed call leaves any stored summary untouched.
func (s *Service) Summarize(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	if req.Path == "" {
		req.Path = req.FileName
	}
	backend := s.Backend(req.Provider)
	start := time.Now()

	summary, err := s.run(ctx, backend, req)
	dur := time.Since(start)
	if err != nil {
		metrics.ObserveSummarize(backend, string(apperr.KindOf(err)), dur)
		log.Warn().Err(err).Str("backend", backend).Str("model", req.Model).Str("path", req.Path).Msg("summarize failed")
		return Result{}, err
	}
	if strings.TrimSpace(summary) == "" {
		metrics.ObserveSummarize(backend, "empty", dur)
		return Result{}, apperr.BackendUnavailable(ai.ErrNoOutput, "%s returned an empty summary", backend)
	}

	if err := s.store.UpsertSummary(ctx, req.Path, summary); err != nil {
		metrics.ObserveSummarize(backend, "store_error", dur)
		return Result{}, fmt.Errorf("store summary: %w", err)
	}
	metrics.ObserveSummarize(backend, "ok", dur)
	log.Info().Str("backend", backend).Str("model", req.Model).Str("path", req.Path).Int("chars", len(summary)).Dur("duration", dur).Msg("summary stored")
	return Result{Path: req.Path, Summary: summary, Backend: backend, Duration: dur}, nil
}

func (s *Service) run(ctx context.Context, backend string, req Request) (string, error) {
	var call func(context.Context) (string, error)
	if client, ok := s.clients[backend]; ok {
		prompt, err := s.prompt(ctx, req)
		if err != nil {
			return "", err
		}
		call = func(ctx context.Context) (string, error) {
			resp, err := client.Do(ctx, ai.Request{Model: req.Model, Prompt: prompt})
			return resp.Text, err
		}
	} else {
		if s.script == nil || s.script.Path == "" {
			return "", apperr.BackendUnavailable(nil, "no summarize script configured for provider %q", req.Provider)
		}
		call = func(ctx context.Context) (string, error) {
			return s.script.Run(ctx, req.FileName, req.Content, req.Provider, req.Model, req.PromptTemplate)
		}
	}

	if s.limiter != nil {
		if s.limiter.IsOpen(ctx, backend, req.Model) {
			return "", apperr.BackendUnavailable(ai.ErrRateLimited, "%s is cooling down after rate limiting", backend)
		}
		release, ok := s.limiter.Allow(backend, req.Model)
		if !ok {
			return "", apperr.BackendUnavailable(nil, "%s busy, too many summaries in flight", backend)
		}
		defer release()
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	out, err := s.breaker(backend).Execute(func() (interface{}, error) {
		return call(callCtx)
	})
	if err != nil {
		if s.limiter != nil && ai.IsRateLimited(err) {
			d := s.limiter.Open(ctx, backend, req.Model)
			log.Warn().Str("backend", backend).Dur("cooldown", d).Msg("rate limited, cooling down")
		}
		return "", classify(backend, err)
	}
	if s.limiter != nil {
		s.limiter.Close(ctx, backend, req.Model)
	}
	return out.(string), nil
}

// prompt builds "<template>\n\n<document text>" for model backends.
func (s *Service) prompt(ctx context.Context, req Request) (string, error) {
	info := s.detector.DetectBytes(req.Content, req.FileName)
	var (
		text string
		err  error
	)
	switch info.Kind {
	case filetype.KindPDF:
		if text, err = s.pdfText(req.FileName, req.Content); err != nil {
			return "", err
		}
	case filetype.KindOffice:
		if s.opts.Office == nil {
			return "", apperr.Input(nil, "%s (%s) cannot be sent to %s; use the script provider", req.FileName, info.Description, req.Provider)
		}
		pdf, err := s.opts.Office.ToPDF(ctx, req.FileName, req.Content)
		if err != nil {
			return "", err
		}
		if text, err = s.pdfText(req.FileName, pdf); err != nil {
			return "", err
		}
	case filetype.KindText:
		text = strings.ToValidUTF8(string(req.Content), "\uFFFD")
		if s.opts.MaxChars > 0 && utf8.RuneCountInString(text) > s.opts.MaxChars {
			text = string([]rune(text)[:s.opts.MaxChars])
		}
	default:
		return "", apperr.Input(nil, "%s (%s) cannot be sent to %s; use the script provider", req.FileName, info.Description, req.Provider)
	}
	return req.PromptTemplate + "\n\n" + text, nil
}

// pdfText extracts the text of a PDF, rejecting scans without a text layer.
func (s *Service) pdfText(name string, data []byte) (string, error) {
	ok, diag, err := pdftest.HasExtractableText(name, data, s.opts.TextThreshold)
	if err != nil {
		return "", apperr.Input(err, "cannot read PDF %s", name)
	}
	if !ok {
		return "", apperr.Input(nil, "%s has no extractable text (%d chars sampled)", name, diag.TotalCharsInSample)
	}
	text, err := s.text.ExtractText(data)
	if err != nil {
		return "", apperr.Input(err, "cannot extract text from %s", name)
	}
	return text, nil
}

func (s *Service) breaker(backend string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.breakers[backend]; ok {
		return cb
	}
	failures := s.opts.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        backend,
		MaxRequests: 1,
		Timeout:     s.opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("backend", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			metrics.BreakerChanged(name, to.String())
		},
	})
	s.breakers[backend] = cb
	return cb
}

// BreakerState reports the breaker state for backend, "closed" if unused.
func (s *Service) BreakerState(backend string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.breakers[backend]; ok {
		return cb.State().String()
	}
	return gobreaker.StateClosed.String()
}
