package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	logs "github.com/danmuck/fixgate/internal/logging"
	"github.com/danmuck/fixgate/internal/session"
	"github.com/danmuck/fixgate/internal/store"
	"github.com/danmuck/fixgate/internal/transport"
)

// InitiatorSession is one client session and where it connects.
type InitiatorSession struct {
	Addr    string
	Session session.Config
}

type InitiatorConfig struct {
	Sessions []InitiatorSession
	// MaxConnectAttempts bounds consecutive failed attempts per session.
	// Zero retries until the context ends.
	MaxConnectAttempts int
}

// Initiator keeps its sessions connected, reconnecting with backoff after
// retryable failures.
type Initiator struct {
	cfg      InitiatorConfig
	app      Application
	registry *Registry
	entries  []initiatorEntry
}

type initiatorEntry struct {
	s      *session.Session
	dialer session.Dialer
}

func NewInitiator(cfg InitiatorConfig, st store.Store, app Application, registry *Registry, opts ...session.Option) (*Initiator, error) {
	if app == nil {
		app = NopApplication{}
	}
	if registry == nil {
		registry = NewRegistry()
	}
	i := &Initiator{cfg: cfg, app: app, registry: registry}
	for _, entry := range cfg.Sessions {
		if strings.TrimSpace(entry.Addr) == "" {
			return nil, fmt.Errorf("%w: session %s has no address", session.ErrInvalidConfig, entry.Session.ID())
		}
		s, err := session.New(entry.Session, st, opts...)
		if err != nil {
			return nil, err
		}
		if err := registry.Add(s); err != nil {
			return nil, err
		}
		i.entries = append(i.entries, initiatorEntry{s: s, dialer: transport.NewDialer(entry.Addr, s.Config())})
	}
	return i, nil
}

func (i *Initiator) Registry() *Registry { return i.registry }

// Run drives every session until ctx ends. It returns the joined errors of
// sessions that stopped for a non-retryable reason.
func (i *Initiator) Run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, entry := range i.entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := i.runSession(ctx, entry); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", entry.s.ID(), err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (i *Initiator) runSession(ctx context.Context, entry initiatorEntry) error {
	s := entry.s
	id := s.ID()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	for {
		attempt++
		err := s.Connect(ctx, entry.dialer)
		if err == nil {
			err = s.Login(ctx)
			if err == nil {
				attempt = 0
				logs.Infof("engine.Initiator.runSession id=%q logged on", id)
				i.app.OnLogon(id)
				pump(ctx, s, i.app)
			}
			<-s.Done()
			if err == nil {
				err = s.Err()
				i.app.OnLogout(id, err)
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !session.Retryable(err) {
			logs.Errf("engine.Initiator.runSession id=%q stopped err=%v", id, err)
			return err
		}
		if i.cfg.MaxConnectAttempts > 0 && attempt >= i.cfg.MaxConnectAttempts {
			return fmt.Errorf("%w: gave up after %d attempts", err, attempt)
		}
		logs.Warnf("engine.Initiator.runSession id=%q attempt=%d reconnecting err=%v", id, attempt, err)
		if err := sleepBackoff(ctx, s.Config().Backoff, max(attempt, 1), rng); err != nil {
			return nil
		}
	}
}

func sleepBackoff(ctx context.Context, cfg session.BackoffConfig, attempt int, rng *rand.Rand) error {
	delay := cfg.Delay(attempt, rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
