package server

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/duskforge/palisade/pkg/database"
	"github.com/duskforge/palisade/pkg/protocol"
)

// ServerContext is the explicitly-constructed service container every
// handler and middleware stage reads from: the pool, hub, registry,
// repository, metrics, and logger, built once at startup and passed down
// rather than reached for through a process-wide locator.
type ServerContext struct {
	Config  ServerConfig
	Hub     *Hub
	Pool    *protocol.PacketPool
	Repo    database.CredentialsRepository
	Logger  *log.Logger
	Metrics *Metrics

	registry    *HandlerRegistry
	concurrency *ConcurrencyLimiter

	bucketsMu sync.Mutex
	buckets   map[uint64]*TokenBucket

	dispatchersMu sync.Mutex
	dispatchers   map[uint64]*Dispatcher

	listener net.Listener
	httpSrv  *http.Server

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New constructs a ServerContext wired to cfg and repo. The handler
// registry is populated and frozen before New returns.
func New(cfg ServerConfig, repo database.CredentialsRepository) *ServerContext {
	registry := NewHandlerRegistry()
	registerHandlers(registry)

	pool := protocol.NewPacketPool()
	pool.Prealloc(64)

	return &ServerContext{
		Config:      cfg,
		Hub:         NewHub(),
		Pool:        pool,
		Repo:        repo,
		Logger:      log.New(os.Stderr, "palisade: ", log.LstdFlags),
		Metrics:     NewMetrics(),
		registry:    registry,
		concurrency: NewConcurrencyLimiter(cfg.MaxConcurrentHandlers),
		buckets:     make(map[uint64]*TokenBucket),
		dispatchers: make(map[uint64]*Dispatcher),
		shutdown:    make(chan struct{}),
	}
}

func (s *ServerContext) now() int64 {
	return time.Now().UnixMilli()
}

// connBucket returns c's token bucket, creating one on first use.
func (s *ServerContext) connBucket(c *Connection) *TokenBucket {
	s.bucketsMu.Lock()
	defer s.bucketsMu.Unlock()
	b, ok := s.buckets[c.ID]
	if !ok {
		b = NewTokenBucket(s.Config.TokenBucketCapacity, s.Config.TokenBucketRefillRate)
		s.buckets[c.ID] = b
	}
	return b
}

func (s *ServerContext) dropBucket(id uint64) {
	s.bucketsMu.Lock()
	defer s.bucketsMu.Unlock()
	delete(s.buckets, id)
}

// Start binds the listener and, if MetricsAddr is set, the metrics HTTP
// server, then begins accepting connections in the background.
func (s *ServerContext) Start() error {
	ln, err := net.Listen("tcp", s.Config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Config.ListenAddr, err)
	}
	s.listener = ln

	if s.Config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.Metrics.Handler())
		s.httpSrv = &http.Server{Addr: s.Config.MetricsAddr, Handler: mux}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.Logger.Printf("metrics server error: %v", err)
			}
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	s.Logger.Printf("listening on %s", s.Config.ListenAddr)
	return nil
}

// Stop signals shutdown, broadcasts a DISCONNECT directive to every
// connection, waits up to Config.ShutdownDrain for them to close
// themselves, then force-closes any stragglers.
func (s *ServerContext) Stop() error {
	close(s.shutdown)

	if s.listener != nil {
		s.listener.Close()
	}
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}

	s.notifyShutdown()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(s.Config.ShutdownDrain):
		for _, c := range s.Hub.Enumerate() {
			c.Disconnect()
		}
	}

	return nil
}

func (s *ServerContext) notifyShutdown() {
	for _, c := range s.Hub.Enumerate() {
		c.SendDirective(protocol.OpLogout, protocol.ControlDisconnect, protocol.ReasonNone, protocol.AdviceNone, 0, 0)
	}
}
