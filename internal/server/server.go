// Package server wires every independently-built component into the one
// running process a deployment launches, mirroring the teacher's
// internal/gateway.ManagedServer: a single object constructed once at
// startup, exposing Start(ctx)/Stop(ctx) lifecycle methods, that owns every
// other component rather than leaving them as package-level singletons
// (SPEC_FULL.md §9's "implicit global singletons" redesign note).
package server

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/corebridge/platform-core/internal/apperr"
	"github.com/corebridge/platform-core/internal/cache"
	"github.com/corebridge/platform-core/internal/config"
	"github.com/corebridge/platform-core/internal/conversation"
	"github.com/corebridge/platform-core/internal/dispatcher"
	"github.com/corebridge/platform-core/internal/httpcore"
	"github.com/corebridge/platform-core/internal/observability"
	"github.com/corebridge/platform-core/internal/ratelimit"
	"github.com/corebridge/platform-core/internal/taskqueue"
	"github.com/corebridge/platform-core/internal/tokenvault"
	"github.com/corebridge/platform-core/internal/toolspec"
	"github.com/corebridge/platform-core/internal/transport"
	"github.com/corebridge/platform-core/pkg/envelope"
	"golang.org/x/oauth2"
)

// Server is the one object a deployment constructs at startup. configPath is
// carried alongside cfg so the Reloader can re-read the same file the
// process booted from.
type Server struct {
	cfg        *config.Config
	configPath string
	log        *observability.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	tracerStop func(context.Context) error

	limiter    *ratelimit.Limiter
	cacheMgr   *cache.Manager
	vault      *tokenvault.Vault
	httpClient *httpcore.Client
	registry   *toolspec.Registry
	dispatch   *dispatcher.Dispatcher
	convStore  conversation.Store

	taskBackend taskqueue.Backend
	taskQueue   *taskqueue.Queue
	workerPool  *taskqueue.Pool

	reloader   *config.Reloader
	stdio      *transport.StdioServer
	httpSrv    *transport.HTTPServer
	httpServer *http.Server

	redisClient *redis.Client

	cancel context.CancelFunc
}

// New builds every component named by cfg but starts nothing; Start does
// that. configPath is the file cfg was loaded from, used only to re-read it
// on a live-reload tick.
func New(cfg *config.Config, configPath string, log *observability.Logger) (*Server, error) {
	if cfg == nil {
		return nil, apperr.Misconfigured("server: nil config")
	}
	if log == nil {
		log = observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
	}

	s := &Server{cfg: cfg, configPath: configPath, log: log}

	s.metrics = observability.NewMetrics()

	tracer, stop := observability.NewTracer(observability.TraceConfig{
		ServiceName:    firstNonEmpty(cfg.Observability.ServiceName, "corebridge"),
		Endpoint:       cfg.Observability.OTLPEndpoint,
		EnableInsecure: true,
	})
	s.tracer, s.tracerStop = tracer, stop

	s.limiter = ratelimit.New(toRateLimitConfig(cfg.RateLimit))
	s.cacheMgr = cache.New(toCacheConfig(cfg.Cache))

	vaultKey, err := decodeKey(cfg.TokenVault.EncryptionKeyHex, "token_vault.encryption_key_hex")
	if err != nil {
		return nil, err
	}
	vault, err := tokenvault.New(vaultKey)
	if err != nil {
		return nil, fmt.Errorf("build token vault: %w", err)
	}
	vault.SetAuditLogSize(cfg.TokenVault.AuditLogSize)
	for kind, oauthCfg := range cfg.TokenVault.OAuth {
		vault.RegisterOAuth(kind, tokenvault.OAuthConfig{Config: oauth2.Config{
			ClientID:     oauthCfg.ClientID,
			ClientSecret: oauthCfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: oauthCfg.TokenURL},
			Scopes:       oauthCfg.Scopes,
		}})
	}
	s.vault = vault

	s.httpClient = httpcore.New(httpcore.Config{
		BaseURL:    cfg.HTTPCore.BaseURL,
		Timeout:    cfg.HTTPCore.Timeout,
		MaxRetries: cfg.HTTPCore.MaxRetries,
		RetryBase:  cfg.HTTPCore.RetryBase,
	}, s.limiter)

	s.registry = toolspec.NewRegistry()
	s.dispatch = dispatcher.New(s.registry, dispatcher.Policy{}, s.httpClient)
	s.dispatch.Use(s.instrumentInvoke)

	if tok := os.Getenv("USER_ACCESS_TOKEN"); tok != "" {
		if err := s.dispatch.SetUserToken(envelope.TokenUser, tok); err != nil {
			return nil, fmt.Errorf("USER_ACCESS_TOKEN: %w", err)
		}
	}

	convStore, err := buildConversationStore(cfg.Conversation)
	if err != nil {
		return nil, fmt.Errorf("build conversation store: %w", err)
	}
	s.convStore = convStore

	backend, redisClient, err := buildTaskBackend(cfg.TaskQueue)
	if err != nil {
		return nil, fmt.Errorf("build task queue backend: %w", err)
	}
	s.taskBackend, s.redisClient = backend, redisClient
	s.taskQueue = taskqueue.New(backend, taskqueue.Config{
		VisibilityTimeout: cfg.TaskQueue.VisibilityTimeout,
		RetryBase:         cfg.TaskQueue.RetryBase,
		MaxScanPerPop:     cfg.TaskQueue.MaxScanPerPop,
	})
	s.workerPool = taskqueue.NewPool(s.taskQueue, s.handleTask, taskqueue.WorkerConfig{
		Concurrency:  cfg.TaskQueue.Worker.Concurrency,
		PollInterval: cfg.TaskQueue.Worker.PollInterval,
		RecoverEvery: cfg.TaskQueue.Worker.RecoverEvery,
	}, slog.Default())

	s.reloader = config.NewReloader(configPath, s.limiter, s.cacheMgr, slog.Default())

	info := transport.ServerInfo{Name: "corebridge", Version: "1.0"}
	if cfg.Transport.Stdio.Enabled {
		s.stdio = transport.NewStdioServer(s.dispatch, toolspec.CasingSnake, info, slog.Default())
	}
	if cfg.Transport.HTTP.Enabled {
		pairingKey, err := decodeKey(cfg.Transport.HTTP.PairingKeyHex, "transport.http.pairing_key_hex")
		if err != nil {
			return nil, err
		}
		s.httpSrv = transport.NewHTTPServer(s.dispatch, toolspec.CasingSnake, info, pairingKey, cfg.Transport.HTTP.PairingTokenTTL, slog.Default())
	}

	return s, nil
}

// Start begins serving requests on every enabled transport and starts the
// task queue worker pool and the config reloader. It blocks until ctx is
// cancelled or a transport fails irrecoverably.
func (s *Server) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.reloader.Watch(runCtx); err != nil {
		s.log.Warn(runCtx, "config reloader failed to start, continuing without hot reload", "error", err)
	}

	go s.workerPool.Run(runCtx)

	errCh := make(chan error, 2)

	if s.stdio != nil {
		go func() {
			errCh <- fmt.Errorf("stdio transport: %w", s.stdio.Serve(runCtx, os.Stdin, os.Stdout))
		}()
	}

	if s.httpSrv != nil {
		mux := http.NewServeMux()
		s.httpSrv.Routes(mux)
		s.httpServer = &http.Server{Addr: s.cfg.Transport.HTTP.Addr, Handler: mux}
		go func() {
			err := s.httpServer.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("http transport: %w", err)
				return
			}
			errCh <- nil
		}()
	}

	s.log.Info(runCtx, "server started",
		"stdio_enabled", s.stdio != nil,
		"http_enabled", s.httpSrv != nil,
		"http_addr", s.cfg.Transport.HTTP.Addr,
	)

	select {
	case <-runCtx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts down every transport and background worker. It
// keeps going on a per-component error, logging rather than aborting, so a
// slow sub-system doesn't prevent the rest from shutting down (grounded on
// the teacher's gateway.Server.Stop idiom).
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error(ctx, "error stopping http transport", "error", err)
		}
	}

	if err := s.reloader.Close(); err != nil {
		s.log.Error(ctx, "error stopping config reloader", "error", err)
	}

	if closer, ok := s.convStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.log.Error(ctx, "error closing conversation store", "error", err)
		}
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Error(ctx, "error closing redis client", "error", err)
		}
	}

	if s.tracerStop != nil {
		if err := s.tracerStop(ctx); err != nil {
			s.log.Error(ctx, "error stopping tracer", "error", err)
		}
	}

	return nil
}

// Registry returns the tool registry so an operator subcommand (or an
// embedding deployment) can register additional descriptors before Start.
func (s *Server) Registry() *toolspec.Registry { return s.registry }

// Dispatcher returns the dispatcher backing every transport.
func (s *Server) Dispatcher() *dispatcher.Dispatcher { return s.dispatch }

// Vault returns the token vault, for an operator subcommand that needs to
// seed credentials before the server starts handling traffic.
func (s *Server) Vault() *tokenvault.Vault { return s.vault }

// TaskQueue returns the task queue, for an operator subcommand that reports
// queue depth without running the full server.
func (s *Server) TaskQueue() *taskqueue.Queue { return s.taskQueue }

// taskQueueName labels the one Queue this process constructs in metrics and
// traces; there is no multi-queue concept below this package.
const taskQueueName = "default"

// instrumentInvoke is the dispatcher.Middleware installed on the one
// Dispatcher this process constructs, so a tool call made over stdio,
// HTTP, or the task queue gets the same span-per-invocation tracing and
// per-tool metrics (spec.md §8): the span opened here is the parent every
// rate-limit-wait, outbound HTTP, and cache-lookup child span nests under,
// since ctx carries it into desc.Handler's downstream calls.
func (s *Server) instrumentInvoke(next dispatcher.InvokeFunc) dispatcher.InvokeFunc {
	return func(ctx context.Context, name string, params map[string]any) (envelope.Envelope, error) {
		start := time.Now()
		ctx, span := s.tracer.TraceToolInvocation(ctx, name)
		defer span.End()

		env, err := next(ctx, name, params)

		status := "success"
		if err != nil {
			status = "error"
			s.metrics.RecordError("dispatcher", "invoke")
			s.tracer.RecordError(span, err)
		}
		s.metrics.RecordToolInvocation(name, status, time.Since(start).Seconds())
		return env, err
	}
}

func (s *Server) handleTask(ctx context.Context, task *taskqueue.Task) (map[string]any, error) {
	start := time.Now()
	ctx, span := s.tracer.TraceTaskQueuePop(ctx, taskQueueName)
	defer span.End()

	tool, _ := task.Payload["tool"].(string)
	params, _ := task.Payload["params"].(map[string]any)

	result, err := s.dispatch.Invoke(ctx, tool, params)
	outcome := "success"
	if err != nil {
		outcome = "error"
		s.tracer.RecordError(span, err)
		s.metrics.RecordError("task_queue", "handler")
	}
	s.metrics.RecordTaskQueueProcessed(taskQueueName, outcome, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return map[string]any{"envelope": result}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func decodeKey(hexKey, field string) ([]byte, error) {
	if hexKey == "" {
		return nil, apperr.Misconfigured(field + " is required")
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, apperr.Misconfigured(field + " must be hex-encoded: " + err.Error())
	}
	return key, nil
}

func toRateLimitConfig(tiers map[string]config.RateLimitTierConfig) map[string]ratelimit.Config {
	out := make(map[string]ratelimit.Config, len(tiers))
	for tier, c := range tiers {
		out[tier] = ratelimit.Config{
			Capacity:       c.Capacity,
			RefillTokens:   c.RefillTokens,
			RefillInterval: c.RefillInterval,
			MaxWait:        c.MaxWait,
		}
	}
	return out
}

func toCacheConfig(categories map[string]config.CacheCategoryConfig) map[cache.Category]cache.CategoryConfig {
	out := make(map[cache.Category]cache.CategoryConfig, len(categories))
	for category, c := range categories {
		out[cache.Category(category)] = cache.CategoryConfig{
			MaxEntries: c.MaxEntries,
			MaxBytes:   c.MaxBytes,
			DefaultTTL: c.DefaultTTL,
		}
	}
	return out
}

func buildConversationStore(cfg config.ConversationConfig) (conversation.Store, error) {
	var key []byte
	if cfg.EncryptionKeyHex != "" {
		k, err := decodeKey(cfg.EncryptionKeyHex, "conversation.encryption_key_hex")
		if err != nil {
			return nil, err
		}
		key = k
	}
	switch cfg.Backend {
	case "sql":
		return conversation.NewSQLStore(firstNonEmpty(cfg.SQLitePath, "conversations.db"), key)
	case "file", "":
		return conversation.NewFileStore(firstNonEmpty(cfg.Dir, "conversations"), key)
	default:
		return nil, apperr.Misconfigured("conversation.backend must be \"file\" or \"sql\", got " + cfg.Backend)
	}
}

func buildTaskBackend(cfg config.TaskQueueConfig) (taskqueue.Backend, *redis.Client, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return taskqueue.NewRedisBackend(client, firstNonEmpty(cfg.RedisPrefix, "corebridge:tasks")), client, nil
	case "memory", "":
		return taskqueue.NewMemoryBackend(), nil, nil
	default:
		return nil, nil, apperr.Misconfigured("task_queue.backend must be \"memory\" or \"redis\", got " + cfg.Backend)
	}
}
