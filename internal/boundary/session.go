// Package boundary implements the external-interface surface of spec
// §6: an HTTP+WebSocket API in front of the DB Gateway, Poller,
// Dry-Run Evaluator, Realtime Client, and Event Bus.
package boundary

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dbwatch/dbwatch/internal/dbwatcherr"
	"github.com/dbwatch/dbwatch/internal/dryrun"
	"github.com/dbwatch/dbwatch/internal/eventbus"
	"github.com/dbwatch/dbwatch/internal/gateway"
	"github.com/dbwatch/dbwatch/internal/model"
	"github.com/dbwatch/dbwatch/internal/poller"
	"github.com/dbwatch/dbwatch/internal/realtime"
)

// Session is the one long-lived object per running server: it owns the
// gateway, the poller bound to it, the dry-run evaluator, the Supabase
// realtime client, the merged event bus, and the profile store.
type Session struct {
	log *zap.Logger

	gw       *gateway.Gateway
	dryRun   *dryrun.Evaluator
	realtime *realtime.Client
	bus      *eventbus.Bus
	profiles *ProfileStore

	mu         sync.Mutex
	poll       *poller.Poller
	pollCtx    context.Context
	pollCancel context.CancelFunc
}

func NewSession(log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	gw := gateway.New(log)
	return &Session{
		log:      log,
		gw:       gw,
		dryRun:   dryrun.New(gw, log),
		realtime: realtime.New(log),
		bus:      eventbus.New(log),
		profiles: NewProfileStore(),
	}
}

// Events exposes the merged change stream for the WS handler.
func (s *Session) Events() <-chan model.ChangeEvent { return s.bus.Events() }

// Connect stops and clears any prior poller, then opens a session
// against cfg and starts a fresh poller bound to it (spec §6 connect).
func (s *Session) Connect(ctx context.Context, cfg model.PgConfig) model.ConnectionState {
	s.resetPoller()
	if err := s.gw.Connect(ctx, cfg); err != nil {
		return s.gw.State()
	}
	s.startPoller()
	return s.gw.State()
}

// Disconnect stops and clears the poller, then closes the session.
func (s *Session) Disconnect() model.ConnectionState {
	s.resetPoller()
	s.gw.Disconnect()
	return s.gw.State()
}

func (s *Session) ConnectionStatus() model.ConnectionState { return s.gw.State() }

func (s *Session) Gateway() *gateway.Gateway { return s.gw }

func (s *Session) DryRun(ctx context.Context, statement string) (*model.DryRunResult, error) {
	return s.dryRun.Run(ctx, statement)
}

// StartWatching begins watching schema.table, lazily starting the
// poller's run loop on first use.
func (s *Session) StartWatching(ctx context.Context, schema, table string) error {
	s.mu.Lock()
	p := s.poll
	s.mu.Unlock()
	if p == nil {
		return dbwatcherr.NotConnected()
	}
	if err := p.AddTable(ctx, schema, table); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !p.IsRunning() {
		ch := p.Start(s.pollCtx)
		if ch != nil {
			go s.bus.Pipe(ch)
		}
	}
	return nil
}

func (s *Session) StopWatching(schema, table string) {
	s.mu.Lock()
	p := s.poll
	s.mu.Unlock()
	if p != nil {
		p.RemoveTable(schema, table)
	}
}

func (s *Session) StopAllWatching() {
	s.mu.Lock()
	p := s.poll
	s.mu.Unlock()
	if p != nil {
		p.Clear()
	}
}

func (s *Session) WatchedTables() []string {
	s.mu.Lock()
	p := s.poll
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.WatchedTables()
}

func (s *Session) startPoller() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	s.poll = poller.New(s.gw, poller.DefaultConfig(), s.log)
	s.pollCtx = ctx
	s.pollCancel = cancel
}

func (s *Session) resetPoller() {
	s.mu.Lock()
	p := s.poll
	cancel := s.pollCancel
	s.poll = nil
	s.pollCancel = nil
	s.mu.Unlock()
	if p != nil {
		p.Stop()
		p.Clear()
	}
	if cancel != nil {
		cancel()
	}
}

// ConnectSupabase dials the project's Realtime endpoint and pipes its
// change stream onto the shared bus.
func (s *Session) ConnectSupabase(ctx context.Context, cfg model.SupabaseConfig) (model.ConnectionState, error) {
	ch, err := s.realtime.Connect(ctx, cfg)
	if err != nil {
		return s.realtime.State(), err
	}
	go s.bus.Pipe(ch)
	return s.realtime.State(), nil
}

func (s *Session) DisconnectSupabase() model.ConnectionState {
	s.realtime.Disconnect()
	return s.realtime.State()
}

func (s *Session) SupabaseStatus() model.ConnectionState { return s.realtime.State() }

func (s *Session) Profiles() *ProfileStore { return s.profiles }
