// Package identity tracks who is signed in. The Provider pushes every change
// to its subscribers; consumers read it and never write it.
package identity

import (
	"context"
	"sync"

	"local.dev/postboard/internal/logger"
	"local.dev/postboard/internal/models"
)

// State is the provider's current value. User is nil when signed out.
type State struct {
	User    *models.User
	Loading bool
}

// Resolver establishes the session's identity once at startup.
type Resolver interface {
	Resolve(ctx context.Context) (*models.User, error)
}

type Provider struct {
	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int
	log    *logger.Logger
}

// NewProvider starts in the loading state with no user.
func NewProvider(log *logger.Logger) *Provider {
	return &Provider{
		state: State{Loading: true},
		subs:  map[int]func(State){},
		log:   log,
	}
}

func (p *Provider) Current() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Subscribe calls fn with the current state right away and again on every
// change until the returned function is called.
func (p *Provider) Subscribe(fn func(State)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	cur := p.state
	p.mu.Unlock()

	fn(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Set publishes a resolved identity and clears the loading flag.
func (p *Provider) Set(u *models.User) {
	p.mu.Lock()
	var cp *models.User
	if u != nil {
		v := *u
		cp = &v
	}
	p.state = State{User: cp, Loading: false}
	st := p.state
	fns := make([]func(State), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// Start resolves the identity in the background. A failed sign-in leaves the
// session signed out rather than stuck loading.
func (p *Provider) Start(ctx context.Context, r Resolver) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		u, err := r.Resolve(ctx)
		if err != nil {
			p.log.Error("sign-in failed: %v", err)
			p.Set(nil)
			return
		}
		p.log.Info("signed in as %s", u.AuthorName())
		p.Set(u)
	}()
	return done
}
