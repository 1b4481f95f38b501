package limiter

import (
    "context"
    "fmt"
    "strings"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// Adaptive caps in-flight calls per backend:model and tracks a rate limit
// cooldown with exponential backoff. The cooldown lives in Redis when a URL
// is configured so several instances share it, otherwise in process.
type Adaptive struct {
    rdb         *redis.Client
    maxInflight int
    baseBackoff time.Duration
    maxBackoff  time.Duration
    now         func() time.Time

    mu       sync.Mutex
    sem      map[string]chan struct{}
    until    map[string]time.Time
    attempts map[string]int
}

type Options struct {
    RedisURL    string
    MaxInflight int
    BaseBackoff time.Duration
    MaxBackoff  time.Duration
}

func New(opts Options) (*Adaptive, error) {
    if opts.MaxInflight <= 0 { opts.MaxInflight = 2 }
    if opts.BaseBackoff <= 0 { opts.BaseBackoff = 30 * time.Second }
    if opts.MaxBackoff <= 0 { opts.MaxBackoff = 5 * time.Minute }
    a := &Adaptive{
        maxInflight: opts.MaxInflight, baseBackoff: opts.BaseBackoff, maxBackoff: opts.MaxBackoff,
        now: time.Now, sem: map[string]chan struct{}{}, until: map[string]time.Time{}, attempts: map[string]int{},
    }
    if opts.RedisURL == "" { return a, nil }
    ro, err := redis.ParseURL(opts.RedisURL)
    if err != nil { return nil, err }
    c := redis.NewClient(ro)
    if err := c.Ping(context.Background()).Err(); err != nil { _ = c.Close(); return nil, err }
    a.rdb = c
    return a, nil
}

func (a *Adaptive) key(backend, model string) string {
    return fmt.Sprintf("chopdok:cooldown:%s:%s", strings.ToLower(backend), strings.ToLower(model))
}

// IsOpen returns true while a cooldown is active.
func (a *Adaptive) IsOpen(ctx context.Context, backend, model string) bool {
    k := a.key(backend, model)
    if a.rdb != nil {
        ts, err := a.rdb.Get(ctx, k).Int64()
        if err != nil { return false }
        return a.now().Unix() < ts
    }
    a.mu.Lock()
    defer a.mu.Unlock()
    return a.now().Before(a.until[k])
}

// Open sets/extends the cooldown, doubling per attempt up to maxBackoff.
// It returns the cooldown length.
func (a *Adaptive) Open(ctx context.Context, backend, model string) time.Duration {
    k := a.key(backend, model)
    var attempts int64
    if a.rdb != nil {
        attempts, _ = a.rdb.Incr(ctx, k+":attempts").Result()
    } else {
        a.mu.Lock()
        a.attempts[k]++
        attempts = int64(a.attempts[k])
        a.mu.Unlock()
    }
    if attempts < 1 { attempts = 1 }
    d := a.backoff(attempts)
    until := a.now().Add(d)
    if a.rdb != nil {
        _ = a.rdb.Set(ctx, k, until.Unix(), d).Err()
        return d
    }
    a.mu.Lock()
    a.until[k] = until
    a.mu.Unlock()
    return d
}

func (a *Adaptive) backoff(attempts int64) time.Duration {
    d := a.baseBackoff
    for i := int64(1); i < attempts; i++ {
        d *= 2
        if d >= a.maxBackoff { return a.maxBackoff }
    }
    if d > a.maxBackoff { d = a.maxBackoff }
    return d
}

// Close resets the cooldown for backend/model.
func (a *Adaptive) Close(ctx context.Context, backend, model string) {
    k := a.key(backend, model)
    if a.rdb != nil {
        _ = a.rdb.Del(ctx, k, k+":attempts").Err()
        return
    }
    a.mu.Lock()
    delete(a.until, k)
    delete(a.attempts, k)
    a.mu.Unlock()
}

// Allow tries to reserve a local in-process slot for backend:model.
// Returns a release function and true if allowed; otherwise a no-op,false.
func (a *Adaptive) Allow(backend, model string) (func(), bool) {
    key := strings.ToLower(backend) + ":" + strings.ToLower(model)
    a.mu.Lock()
    ch, ok := a.sem[key]
    if !ok {
        ch = make(chan struct{}, a.maxInflight)
        a.sem[key] = ch
    }
    a.mu.Unlock()
    select {
    case ch <- struct{}{}:
        return func() { <-ch }, true
    default:
        return func(){}, false
    }
}

func (a *Adaptive) CloseClient() error {
    if a.rdb == nil { return nil }
    return a.rdb.Close()
}
