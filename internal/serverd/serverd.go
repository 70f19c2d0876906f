// Package serverd binds the coordination core's components (registry,
// sequencer, AOT cache table, health sampler, compiler) to a listening
// websocket endpoint, one goroutine per connection
// (spec.md §4.A, §4.J).
package serverd

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eclipse-openj9/openj9-sub029/config"
	"github.com/eclipse-openj9/openj9-sub029/errors"
	"github.com/eclipse-openj9/openj9-sub029/internal/aotcache"
	"github.com/eclipse-openj9/openj9-sub029/internal/compiler"
	"github.com/eclipse-openj9/openj9-sub029/internal/health"
	"github.com/eclipse-openj9/openj9-sub029/internal/registry"
	"github.com/eclipse-openj9/openj9-sub029/internal/sequencer"
	"github.com/eclipse-openj9/openj9-sub029/internal/session"
	"github.com/eclipse-openj9/openj9-sub029/internal/stream"
	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
	"github.com/eclipse-openj9/openj9-sub029/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the coordination daemon: owns the process-wide registry,
// sequencer, AOT cache table and health sampler, and dispatches every
// accepted connection to its own goroutine.
type Server struct {
	cfg       config.Config
	registry  *registry.Registry
	sequencer *sequencer.Sequencer
	aotCaches *aotcache.Map
	sampler   *health.Sampler
	processor *compiler.Processor
	log       *zap.SugaredLogger

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connections atomic.Int64
}

// New wires every shared collaborator together from cfg. comp is the
// external JIT backend; callers outside this module supply it.
func New(cfg config.Config, comp compiler.ExternalCompiler) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	var aotDir string
	if cfg.AotCache.Enabled {
		aotDir = cfg.AotCache.Dir
	}
	caches := aotcache.NewMap(aotDir)

	seq := sequencer.New(time.Duration(cfg.Sequencer.ParkTimeoutMS) * time.Millisecond)

	var sampler *health.Sampler
	lowMem := func() bool {
		return sampler != nil && sampler.Tags().MemoryState != wire.MemoryNormal
	}
	reg := registry.New(registry.Config{
		IdleEviction:       time.Duration(cfg.Registry.IdleEvictionSeconds) * time.Second,
		IdleEvictionLowMem: time.Duration(cfg.Registry.IdleEvictionSecondsLowMem) * time.Second,
	}, nil, lowMem)

	sampler = health.New(cfg.Health, func() int { return reg.Stats().ActiveThreads }, func() int { return reg.Stats().SessionCount })

	s := &Server{
		cfg:       cfg,
		registry:  reg,
		sequencer: seq,
		aotCaches: caches,
		sampler:   sampler,
		log:       logger.Named("serverd"),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.processor = compiler.New(reg, seq, caches, comp, sampler)
	return s
}

// Serve accepts connections on l until Shutdown is called. l is
// expected to already be TLS-wrapped if mutual TLS is configured
// (stream.WrapListener).
func (s *Server) Serve(l net.Listener) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sampler.Run(s.ctx)
	}()

	purgeInterval := time.Duration(s.cfg.Registry.PurgeIntervalSeconds) * time.Second
	if purgeInterval <= 0 {
		purgeInterval = 10 * time.Second
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.registry.PurgeLoop(s.ctx, purgeInterval)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/compile", s.handleConnection)

	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  0, // compilation connections are long-lived
		WriteTimeout: 0,
	}

	s.log.Infow("coordination server listening", "addr", l.Addr().String())
	err := s.httpServer.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections, cancels background loops,
// waits (up to ctx's deadline) for those loops to exit, then persists
// every AOT cache. Upgraded websocket connections are hijacked from the
// http.Server, so Shutdown neither closes nor waits for them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Infow("shutting down coordination server")
	s.cancel()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warnw("shutdown deadline exceeded waiting for background loops")
	}

	s.aotCaches.SaveAll()
	return err
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	s.connections.Add(1)
	defer s.connections.Add(-1)

	str := stream.New(conn)
	defer str.Close()

	log := s.log.With("remote_addr", r.RemoteAddr)
	log.Infow("connection accepted")

	var sess *session.ClientSession

	for {
		req, err := str.ReadCompileRequest()
		if err != nil {
			s.onConnectionError(sess, err, log)
			return
		}

		if sess == nil {
			var isNew bool
			sess, isNew = s.registry.FindOrCreate(req.ClientID, req.SeqNo, session.VMInfo{})
			if isNew {
				log.Infow("session created", logger.FieldClientID, req.ClientID)
			}
		}

		compileCtx, cancel := context.WithTimeout(s.ctx, compiler.DefaultCompileTimeout)
		err = s.processor.Handle(compileCtx, str, sess, req)
		cancel()
		if err != nil && (errors.Is(err, stream.ErrStreamFailure) || errors.Is(err, stream.ErrConnectionTerminate)) {
			s.registry.ReleaseAfterRequest(sess)
			return
		}
	}
}

func (s *Server) onConnectionError(sess *session.ClientSession, err error, log *zap.SugaredLogger) {
	switch {
	case errors.Is(err, stream.ErrConnectionTerminate):
		log.Infow("client requested connection termination")
		if sess != nil {
			sess.RecordTeardown("connection_terminate", nil)
		}
	case errors.Is(err, stream.ErrClientSessionTerminate):
		log.Infow("client requested session termination", "reason", err)
		if sess != nil {
			sess.RecordTeardown("client_session_terminate", nil)
			s.registry.Delete(sess.ClientID, true)
		}
	default:
		log.Warnw("connection closed with error", "error", err)
		if sess != nil {
			sess.RecordTeardown("transport_error", err)
		}
	}
	if sess != nil {
		s.registry.ReleaseAfterRequest(sess)
	}
}

// Stats exposes a snapshot for the config/health CLI surface.
func (s *Server) Stats() registry.Stats { return s.registry.Stats() }
