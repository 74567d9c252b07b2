package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"microlink-go/internal/handler"
	"microlink-go/internal/i18n"
	"microlink-go/internal/middleware"
	"microlink-go/internal/repository"
	"microlink-go/internal/service"
	"microlink-go/pkg/logging"
)

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}
}

func startServer(r *gin.Engine) {
	addr := viper.GetString("server.addr")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// 启动服务器
	go func() {
		logging.Logger.Info("Server is running on " + addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 等待中断信号以优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := repository.RedisPool.Close(); err != nil {
		logging.Logger.Warn("Redis pool close failed", zap.Error(err))
	}

	logging.Logger.Info("Server exiting")
}

func main() {
	initConfig()

	logging.InitLoggerFromConfig()
	logging.Logger.Info("Application started")

	repository.InitDB(logging.Logger, logging.AtomicLevel)
	repository.InitRedis()

	// 初始化 i18n（加载 TOML 文件）
	bundle, err := i18n.InitI18n([]string{
		"./i18n/en.toml",
		"./i18n/zh.toml",
	}, "en")
	if err != nil {
		panic(err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.GlobalErrorMiddleware())
	r.Use(middleware.ZapGinLogger(logging.Logger))
	r.Use(middleware.CorsMiddleware())
	r.Use(middleware.I18nMiddleware(bundle))

	r.GET("/healthz", handler.HealthzHandler)

	api := r.Group("/api")
	{
		api.POST("/links", handler.CreateLinkHandler)
		api.GET("/links", handler.ListLinksHandler)
		api.GET("/links/:short_code", handler.GetLinkHandler)
		api.PUT("/links/status/:id", handler.UpdateLinkStatusHandler)
		api.PUT("/links/:id", handler.UpdateLinkHandler)
	}

	// 其余 GET 路径都当作短码处理
	r.NoRoute(handler.RedirectHandler)

	// 定时任务：每十分钟预热一次热门短链缓存
	c := cron.New()
	_, addErr := c.AddFunc("*/10 * * * *", func() {
		if err := service.WarmHotLinks(context.Background()); err != nil {
			logging.Logger.Error("Cache warm job failed", zap.Error(err))
		}
	})
	if addErr != nil {
		logging.Logger.Fatal("Failed to schedule cron job", zap.Error(addErr))
	}
	c.Start()

	startServer(r)
}
