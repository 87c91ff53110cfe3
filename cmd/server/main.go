// RotaPlan 排班求解引擎服务
// 主程序入口

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/rotaplan/rotaplan/internal/config"
	"github.com/rotaplan/rotaplan/internal/database"
	"github.com/rotaplan/rotaplan/internal/handler"
	"github.com/rotaplan/rotaplan/internal/metrics"
	"github.com/rotaplan/rotaplan/internal/repository"
	"github.com/rotaplan/rotaplan/pkg/logger"
	"github.com/rotaplan/rotaplan/pkg/scheduler"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// 初始化配置与日志
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Format: "console",
	})

	// 打印版本信息
	fmt.Printf("RotaPlan 排班求解引擎 v%s\n", Version)
	fmt.Printf("Build: %s (%s)\n", BuildTime, GitCommit)
	fmt.Println()

	// ========================================
	// 基础设施
	// ========================================

	// 数据库可选：连不上时归档功能停用，求解不受影响
	var db *database.DB
	var rosterRepo *repository.RosterRepository
	if d, err := database.New(&cfg.Database); err != nil {
		logger.Warn().Err(err).Msg("数据库不可用，归档功能停用")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := repository.EnsureSchema(ctx, d); err != nil {
			logger.Warn().Err(err).Msg("归档表初始化失败，归档功能停用")
			d.Close()
		} else {
			db = d
			rosterRepo = repository.NewRosterRepository(db)
		}
		cancel()
	}

	// Prometheus 指标
	m, err := metrics.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("指标注册失败")
	}
	if db != nil {
		if err := m.RegisterDBStats(db.Stats); err != nil {
			logger.Warn().Err(err).Msg("数据库连接池指标注册失败")
		}
	}

	// 求解引擎
	engine := scheduler.NewEngine()

	// 创建处理器
	solveHandler := handler.NewSolveHandler(engine, cfg, db, rosterRepo, m)
	swapHandler := handler.NewSwapHandler(cfg)
	demandHandler := handler.NewDemandHandler()

	// 创建 HTTP 服务器
	mux := http.NewServeMux()

	// ========================================
	// 系统端点
	// ========================================

	// 健康检查端点
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":  "ok",
			"service": "rotaplan",
		}
		code := http.StatusOK
		if db == nil {
			status["database"] = "disabled"
		} else if err := db.Health(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			status["database"] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	})

	// 版本信息端点
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"version":"%s","build_time":"%s","git_commit":"%s"}`, Version, BuildTime, GitCommit)
	})

	// ========================================
	// API v1 端点
	// ========================================

	// API 根路由
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"message": "RotaPlan 排班求解引擎 API v1",
			"endpoints": {
				"solve": "POST /api/v1/solve",
				"validate": "POST /api/v1/validate",
				"whatif": "POST /api/v1/whatif",
				"constraints": "GET /api/v1/constraints",
				"demand": "POST /api/v1/demand",
				"rosters": {
					"list": "GET /api/v1/rosters",
					"latest": "GET /api/v1/rosters/latest",
					"detail": "GET /api/v1/rosters/{id}",
					"publish": "POST /api/v1/rosters/{id}/publish",
					"delete": "DELETE /api/v1/rosters/{id}"
				},
				"people": {
					"assignments": "GET /api/v1/people/{id}/assignments"
				}
			}
		}`))
	})

	// 排班求解 API
	mux.HandleFunc("/api/v1/solve", solveHandler.Solve)

	// 排班复核 API
	mux.HandleFunc("/api/v1/validate", solveHandler.Validate)

	// 换班评估 API
	mux.HandleFunc("/api/v1/whatif", swapHandler.WhatIf)

	// 约束目录 API
	mux.HandleFunc("/api/v1/constraints", solveHandler.Library)

	// 需求展开 API
	mux.HandleFunc("/api/v1/demand", demandHandler.Expand)

	// 归档查询 API（需要数据库）
	if rosterRepo != nil {
		rosterHandler := handler.NewRosterHandler(rosterRepo)
		mux.HandleFunc("/api/v1/rosters", rosterHandler.List)
		mux.HandleFunc("/api/v1/rosters/", rosterHandler.Roster)
		mux.HandleFunc("/api/v1/people/", rosterHandler.PersonAssignments)
	}

	// ========================================
	// 监控端点
	// ========================================

	// Prometheus 指标端点
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	// ========================================
	// 中间件
	// ========================================

	// 中间件执行顺序：requestID -> cors -> logging -> recovery -> handler
	root := requestIDMiddleware(corsMiddleware(cfg, loggingMiddleware(m, recoveryMiddleware(mux))))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      root,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 启动服务器（非阻塞）
	go func() {
		logger.Info().
			Int("port", cfg.App.Port).
			Str("version", Version).
			Str("env", cfg.App.Env).
			Str("url", fmt.Sprintf("http://localhost:%d", cfg.App.Port)).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("服务器启动失败")
			os.Exit(1)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
		os.Exit(1)
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("数据库关闭失败")
		}
	}

	logger.Info().Msg("服务器已关闭")
}

// requestIDMiddleware 请求ID追踪中间件
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 尝试从请求头获取 Request ID，没有则生成新的
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		// 设置响应头
		w.Header().Set("X-Request-ID", requestID)

		// 将 Request ID 存储到 context 中
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestIDKey context键类型，避免与其他包的键冲突
type requestIDKey struct{}

// loggingMiddleware 日志中间件
func loggingMiddleware(m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 获取 Request ID
		requestID, _ := r.Context().Value(requestIDKey{}).(string)

		// 包装ResponseWriter以捕获状态码
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)

		logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", duration).
			Msg("请求处理")

		// 记录Prometheus指标
		m.RecordRequest(r.Method, r.URL.Path, rw.statusCode, duration)
	})
}

// responseWriter 包装ResponseWriter以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// recoveryMiddleware 恐慌恢复中间件
// 处理器恐慌转为500响应，服务进程不受影响
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("请求处理恐慌")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":true,"code":"INTERNAL_ERROR","message":"服务器内部错误"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware 跨域中间件
func corsMiddleware(cfg *config.Config, next http.Handler) http.Handler {
	if !cfg.API.CORS.Enabled {
		return next
	}
	allowAll := false
	allowed := make(map[string]bool, len(cfg.API.CORS.Origins))
	for _, origin := range cfg.API.CORS.Origins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
