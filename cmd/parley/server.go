package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/parley/config"
	"github.com/BaSui01/parley/internal/metrics"
	"github.com/BaSui01/parley/internal/server"
	"github.com/BaSui01/parley/internal/telemetry"
	"github.com/BaSui01/parley/ledger"
	"github.com/BaSui01/parley/manager"
	"github.com/BaSui01/parley/orchestrator"
	"github.com/BaSui01/parley/persistence"
	"github.com/BaSui01/parley/stream"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 Parley 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	otelProviders *telemetry.Providers

	store       persistence.TranscriptStore
	broadcaster *stream.Broadcaster
	collector   *metrics.Collector
	mgr         *manager.Manager

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("parley", s.logger)

	store, err := openStore(s.cfg.Store, s.logger)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}
	s.store = store

	s.broadcaster = stream.NewBroadcaster(s.logger)

	var counter ledger.Counter
	if s.cfg.Conversation.DigestTokenBudget > 0 {
		counter = ledger.NewTiktokenCounter(s.cfg.Conversation.TokenEncoding)
	}

	s.mgr = manager.New(manager.Config{
		Governor: orchestrator.GovernorConfig{
			MaxDuration:    s.cfg.Conversation.MaxDuration,
			MaxTurns:       s.cfg.Conversation.MaxTurns,
			TurnTimeout:    s.cfg.Conversation.TurnTimeout,
			TurnsPerMinute: float64(s.cfg.Conversation.TurnsPerMinute),
		},
		DigestTokenBudget: s.cfg.Conversation.DigestTokenBudget,
		TokenCounter:      counter,
		Store:             s.store,
		Broadcaster:       s.broadcaster,
		Metrics:           s.collector,
	}, s.logger)

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("store_backend", s.cfg.Store.Backend),
	)

	return nil
}

// openStore 根据配置打开转录归档后端
func openStore(cfg config.StoreConfig, logger *zap.Logger) (persistence.TranscriptStore, error) {
	return persistence.NewTranscriptStore(persistence.StoreConfig{
		Backend: persistence.Backend(cfg.Backend),
		Redis: persistence.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		},
		SQLite: persistence.SQLiteConfig{
			Path: cfg.SQLite.Path,
		},
	}, logger)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /version", s.handleVersion)

	// 观察者 WebSocket
	mux.Handle("GET /observe", stream.NewHandler(s.broadcaster, s.logger))

	// 会话管理 API
	mux.HandleFunc("POST /api/v1/conversations", s.handleStartConversation)
	mux.HandleFunc("GET /api/v1/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/v1/conversations/{id}", s.handleConversationStatus)
	mux.HandleFunc("GET /api/v1/conversations/{id}/transcript", s.handleConversationTranscript)
	mux.HandleFunc("POST /api/v1/conversations/{id}/conclude", s.handleConcludeConversation)
	mux.HandleFunc("POST /api/v1/conversations/{id}/cancel", s.handleCancelConversation)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🎯 Handlers
// =============================================================================

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"store":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

// startConversationRequest 目前只支持启动内置的货运调度脚本会话。
// 真实部署会在这里接收角色与能力的配置。
type startConversationRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
}

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	var req startConversationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	id, err := s.mgr.StartConversation(r.Context(), manager.ConversationSpec{
		ConversationID: req.ConversationID,
		Roles:          freightNegotiationRoles(),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"conversation_id": id})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.List())
}

func (s *Server) handleConversationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.mgr.Status(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleConversationTranscript(w http.ResponseWriter, r *http.Request) {
	transcript, err := s.mgr.Transcript(r.Context(), r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, transcript)
}

type concludeRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleConcludeConversation(w http.ResponseWriter, r *http.Request) {
	var req concludeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}
	if err := s.mgr.Conclude(r.PathValue("id"), req.Reason); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "concluding"})
}

func (s *Server) handleCancelConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.Cancel(r.PathValue("id")); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 1. 取消所有会话并等待归档完成
	if s.mgr != nil {
		if err := s.mgr.Shutdown(ctx); err != nil {
			s.logger.Error("Manager shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭事件广播
	if s.broadcaster != nil {
		s.broadcaster.Close()
	}

	// 3. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 5. 关闭转录归档后端
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Store close error", zap.Error(err))
		}
	}

	// 6. 刷新遥测数据
	if err := s.otelProviders.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
