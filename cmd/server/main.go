package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	assignmentcontroller "classjudge/internal/assignment/controller"
	assignmentrepo "classjudge/internal/assignment/repository"
	assignmentservice "classjudge/internal/assignment/service"
	"classjudge/internal/common/cache"
	"classjudge/internal/common/db"
	commonmw "classjudge/internal/common/http/middleware"
	"classjudge/internal/feedback"
	"classjudge/internal/judge/sandbox"
	sandboxconfig "classjudge/internal/judge/sandbox/config"
	"classjudge/internal/judge/sandbox/engine"
	"classjudge/internal/judge/sandbox/runner"
	judgeservice "classjudge/internal/judge/service"
	problemcontroller "classjudge/internal/problem/controller"
	problemrepo "classjudge/internal/problem/repository"
	problemservice "classjudge/internal/problem/service"
	submissioncontroller "classjudge/internal/submission/controller"
	submissionrepo "classjudge/internal/submission/repository"
	submissionservice "classjudge/internal/submission/service"
	usercontroller "classjudge/internal/user/controller"
	userrepo "classjudge/internal/user/repository"
	userservice "classjudge/internal/user/service"
	"classjudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	localRepo := sandboxconfig.NewLocalRepository(appCfg.Language.Languages, appCfg.Language.Profiles)
	eng, err := engine.NewEngine(appCfg.Sandbox.toEngineConfig(), localRepo)
	if err != nil {
		logger.Error(context.Background(), "init sandbox engine failed", zap.Error(err))
		return
	}
	jobRunner := runner.NewRunner(eng)
	worker := sandbox.NewWorker(jobRunner, localRepo, localRepo)
	worker.SetStatusReporter(judgeservice.LoggingStatusReporter{})

	judgeSvc, err := judgeservice.NewService(judgeservice.Config{
		Worker:         worker,
		Killer:         eng,
		LanguageRepo:   localRepo,
		WorkRoot:       appCfg.Judge.WorkRoot,
		WorkerPoolSize: appCfg.Judge.WorkerPoolSize,
		AcquireTimeout: appCfg.Judge.AcquireTimeout,
		CompileBudget:  appCfg.Judge.CompileBudget,
		TimeoutSlack:   appCfg.Judge.TimeoutSlack,
		MaxCodeBytes:   appCfg.Judge.MaxCodeBytes,
	})
	if err != nil {
		logger.Error(context.Background(), "init judge service failed", zap.Error(err))
		return
	}

	users := userrepo.NewCachedUserRepository(userrepo.NewUserRepository(mysqlDB), redisCache)
	tokens := userservice.NewTokenManager([]byte(appCfg.Auth.JWTSecret), appCfg.Auth.Issuer, appCfg.Auth.AccessTokenTTL)
	authSvc := userservice.NewAuthService(mysqlDB, users, tokens)

	assignments := assignmentrepo.NewAssignmentRepository(mysqlDB)
	assignmentSvc := assignmentservice.NewService(assignments)

	problems := problemrepo.NewProblemRepository(mysqlDB, redisCache)
	problemSvc := problemservice.NewService(problems, assignments, localRepo)

	analyzer := feedback.NewClient(appCfg.Feedback)
	submissions := submissionrepo.NewSubmissionRepository(mysqlDB)
	submissionSvc := submissionservice.NewService(submissions, problemSvc, assignmentSvc, judgeSvc, analyzer)
	submissionSvc.SetRateLimiter(submissionservice.NewRedisRateLimiter(redisCache, 0, 0))

	httpServer := buildHTTPServer(appCfg.Server, controllers{
		auth:        usercontroller.NewAuthController(authSvc),
		assignments: assignmentcontroller.NewAssignmentController(assignmentSvc),
		problems:    problemcontroller.NewProblemController(problemSvc),
		submissions: submissioncontroller.NewSubmissionController(submissionSvc),
		verifier:    tokenVerifier{authSvc},
	})
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

// tokenVerifier adapts the auth service to the middleware contract.
type tokenVerifier struct {
	auth *userservice.AuthService
}

func (v tokenVerifier) Authenticate(token string) (commonmw.Identity, error) {
	claims, err := v.auth.VerifyToken(token)
	if err != nil {
		return commonmw.Identity{}, err
	}
	return commonmw.Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}

type controllers struct {
	auth        *usercontroller.AuthController
	assignments *assignmentcontroller.AssignmentController
	problems    *problemcontroller.ProblemController
	submissions *submissioncontroller.SubmissionController
	verifier    commonmw.TokenVerifier
}

func buildHTTPServer(cfg ServerConfig, c controllers) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	api := router.Group("/api/v1")

	api.POST("/auth/register", c.auth.Register)
	api.POST("/auth/login", c.auth.Login)

	authed := api.Group("", commonmw.AuthMiddleware(c.verifier))
	authed.GET("/auth/me", c.auth.Me)
	authed.GET("/assignments", c.assignments.List)
	authed.GET("/assignments/:id", c.assignments.Get)
	authed.GET("/assignments/:id/problems", c.problems.ListByAssignment)
	authed.GET("/problems/:id", c.problems.Get)
	authed.POST("/submissions", c.submissions.Submit)
	authed.GET("/submissions", c.submissions.ListMine)
	authed.GET("/submissions/:id", c.submissions.Get)

	teacher := api.Group("", commonmw.AuthMiddleware(c.verifier, "teacher"))
	teacher.POST("/assignments", c.assignments.Create)
	teacher.PUT("/assignments/:id/active", c.assignments.SetActive)
	teacher.POST("/problems", c.problems.Create)
	teacher.PUT("/problems/:id/test-cases", c.problems.ReplaceTestCases)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
