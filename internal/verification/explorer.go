package verification

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"

	"github.com/pendergraft/xdeploy/internal/chains"
)

// Explorer speaks one explorer protocol for one chain
type Explorer interface {
	Kind() chains.ExplorerKind
	// Submit sends the source bundle; it may answer "already verified"
	Submit(ctx context.Context, task *Task) (Submission, error)
	// Poll checks the job started by Submit
	Poll(ctx context.Context, task *Task) (PollResult, error)
}

// Constructor builds an explorer client for a chain
type Constructor func(chain chains.Descriptor) (Explorer, error)

// Registry selects the explorer adapter by explorer kind
type Registry struct {
	constructors map[chains.ExplorerKind]Constructor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[chains.ExplorerKind]Constructor)}
}

// Register adds the adapter for kind
func (r *Registry) Register(kind chains.ExplorerKind, c Constructor) {
	r.constructors[kind] = c
}

// ForChain builds the explorer client matching chain.ExplorerKind
func (r *Registry) ForChain(chain chains.Descriptor) (Explorer, error) {
	c, ok := r.constructors[chain.ExplorerKind]
	if !ok {
		return nil, fmt.Errorf("%w: %q for %s", ErrUnsupportedExplorer, chain.ExplorerKind, chain)
	}
	return c(chain)
}

// Limiters hands out one token bucket per explorer host, so chains that
// share an API (Etherscan v2 serves many chain ids) share its quota.
type Limiters struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewLimiters creates a pool; rps <= 0 disables limiting
func NewLimiters(rps float64, burst int) *Limiters {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiters{rps: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

// For returns the limiter of the host in rawURL
func (l *Limiters) For(rawURL string) *rate.Limiter {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[host] = lim
	}
	return lim
}
