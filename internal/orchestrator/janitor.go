package orchestrator

import (
    "context"
    "time"

    "github.com/local/chopdok/internal/metrics"
)

// RunJanitor expires idle sessions every interval until ctx is done.
func (o *Orchestrator) RunJanitor(ctx context.Context, interval time.Duration) {
    if interval <= 0 { interval = time.Minute }
    ticker := time.NewTicker(interval)
    defer ticker.Stop()

    o.log.Info().Dur("interval", interval).Dur("ttl", o.deps.TTL).Msg("started split session janitor")
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            if n := o.Expire(); n > 0 {
                o.log.Info().Int("expired", n).Msg("expired idle split sessions")
            }
        }
    }
}

// Expire removes sessions idle for longer than the TTL and reports how many.
func (o *Orchestrator) Expire() int {
    cutoff := o.deps.Now().Add(-o.deps.TTL)

    o.mu.RLock()
    all := make([]*session, 0, len(o.sessions))
    for _, s := range o.sessions { all = append(all, s) }
    o.mu.RUnlock()

    expired := 0
    for _, s := range all {
        s.mu.Lock()
        idle := s.touched.Before(cutoff)
        if idle {
            s.outputs = nil
            s.generation++
        }
        s.mu.Unlock()
        if !idle { continue }
        o.mu.Lock()
        if o.sessions[s.id] == s {
            delete(o.sessions, s.id)
            expired++
        }
        o.mu.Unlock()
    }
    metrics.SetActiveSessions(o.Count())
    return expired
}
