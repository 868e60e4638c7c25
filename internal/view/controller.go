// Package view holds the navigation state machine: exactly one of List,
// Create or Detail is active, and Detail always carries its post.
package view

import (
	"errors"
	"fmt"
	"sync"

	"local.dev/postboard/internal/models"
)

var ErrInvalidTransition = errors.New("invalid view transition")

type Mode int

const (
	List Mode = iota
	Create
	Detail
)

func (m Mode) String() string {
	switch m {
	case List:
		return "list"
	case Create:
		return "create"
	case Detail:
		return "detail"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// State is a snapshot of the controller. Post is set only in Detail.
// Generation changes on every transition, so a caller that captured it
// before an async call can tell whether its view is still on screen.
type State struct {
	Mode       Mode
	Post       *models.Post
	Generation uint64
}

type Controller struct {
	mu    sync.RWMutex
	state State
}

// NewController starts in List.
func NewController() *Controller {
	return &Controller{}
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.state
	if s.Post != nil {
		p := *s.Post
		s.Post = &p
	}
	return s
}

// IsCurrent reports whether no transition happened since gen was observed.
func (c *Controller) IsCurrent(gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Generation == gen
}

// SelectPost moves List -> Detail(p).
func (c *Controller) SelectPost(p *models.Post) (State, error) {
	if p == nil {
		return c.State(), fmt.Errorf("%w: select needs a post", ErrInvalidTransition)
	}
	cp := *p
	return c.move("select post", List, Detail, &cp)
}

// StartCreate moves List -> Create.
func (c *Controller) StartCreate() (State, error) {
	return c.move("start create", List, Create, nil)
}

// Cancel moves Create -> List.
func (c *Controller) Cancel() (State, error) {
	return c.move("cancel", Create, List, nil)
}

// PostCreated moves Create -> List.
func (c *Controller) PostCreated() (State, error) {
	return c.move("post created", Create, List, nil)
}

// Back moves Detail -> List and drops the selected post.
func (c *Controller) Back() (State, error) {
	return c.move("back", Detail, List, nil)
}

func (c *Controller) move(trigger string, from, to Mode, post *models.Post) (State, error) {
	c.mu.Lock()
	if c.state.Mode != from {
		cur := c.state.Mode
		c.mu.Unlock()
		return c.State(), fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, cur)
	}
	c.state = State{Mode: to, Post: post, Generation: c.state.Generation + 1}
	c.mu.Unlock()
	return c.State(), nil
}
