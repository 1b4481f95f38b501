package logger

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    "github.com/axiomhq/axiom-go/axiom"
    "github.com/axiomhq/axiom-go/axiom/ingest"
    "github.com/rs/zerolog"
)

const (
    axiomBatch  = 200
    axiomBuffer = 1000
)

// axiomShipper is a zerolog.LevelWriter that batches info+ events and
// ingests them in the background. Events are dropped when the buffer is full.
type axiomShipper struct {
    client  *axiom.Client
    dataset string
    service string
    events  chan axiom.Event
    stop    context.CancelFunc
    done    sync.WaitGroup
}

func newAxiomShipper(opts Options) (*axiomShipper, error) {
    dataset := opts.AxiomDataset
    if dataset == "" { dataset = "dev_" + opts.Service }
    flushEvery := opts.AxiomFlush
    if flushEvery <= 0 { flushEvery = 10 * time.Second }

    clientOpts := []axiom.Option{axiom.SetToken(opts.AxiomAPIKey)}
    if opts.AxiomOrgID != "" { clientOpts = append(clientOpts, axiom.SetOrganizationID(opts.AxiomOrgID)) }
    client, err := axiom.NewClient(clientOpts...)
    if err != nil { return nil, err }

    ctx, cancel := context.WithCancel(context.Background())
    s := &axiomShipper{
        client:  client,
        dataset: dataset,
        service: opts.Service,
        events:  make(chan axiom.Event, axiomBuffer),
        stop:    cancel,
    }
    s.done.Add(1)
    go s.run(ctx, flushEvery)
    return s, nil
}

func (s *axiomShipper) Write(p []byte) (int, error) {
    return s.WriteLevel(zerolog.InfoLevel, p)
}

func (s *axiomShipper) WriteLevel(level zerolog.Level, p []byte) (int, error) {
    if level < zerolog.InfoLevel { return len(p), nil }
    ev := axiom.Event{}
    if err := json.Unmarshal(p, &ev); err != nil {
        ev = axiom.Event{"message": string(p), "level": level.String()}
    }
    ev["service"] = s.service
    if _, ok := ev[ingest.TimestampField]; !ok { ev[ingest.TimestampField] = time.Now() }
    select {
    case s.events <- ev:
    default:
    }
    return len(p), nil
}

func (s *axiomShipper) run(ctx context.Context, flushEvery time.Duration) {
    defer s.done.Done()
    ticker := time.NewTicker(flushEvery)
    defer ticker.Stop()

    batch := make([]axiom.Event, 0, axiomBatch)
    flush := func() {
        if len(batch) == 0 { return }
        ingestCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
        _, _ = s.client.IngestEvents(ingestCtx, s.dataset, batch)
        cancel()
        batch = batch[:0]
    }
    for {
        select {
        case <-ctx.Done():
            flush()
            return
        case <-ticker.C:
            flush()
        case ev := <-s.events:
            batch = append(batch, ev)
            if len(batch) >= axiomBatch { flush() }
        }
    }
}

// Close stops the shipper after a final flush.
func (s *axiomShipper) Close() {
    s.stop()
    s.done.Wait()
}
