package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // 确保在精简镜像中也能识别时区

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/user/peninemate/internal/config"
	"github.com/user/peninemate/internal/handler"
	"github.com/user/peninemate/internal/middleware"
	"github.com/user/peninemate/internal/repository"
	"github.com/user/peninemate/internal/router"
	"github.com/user/peninemate/internal/service"
	"github.com/user/peninemate/internal/utils"
	"github.com/user/peninemate/internal/vector"
)

func main() {
	// 加载环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("未找到 .env 文件，使用系统环境变量")
	}

	// 加载配置
	cfg := config.Load()

	// 初始化数据库
	db, err := repository.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	// 初始化仓库
	repos := repository.NewRepositories(db)

	// 初始化缓存
	utils.InitCache()

	// 加载向量索引。加载失败（文件损坏等）按空索引继续启动，
	// 语义检索降级不可用，关键词检索和外部兜底不受影响。
	index := vector.New(cfg.EmbedDim, cfg.IndexPath, cfg.MetadataPath)
	if err := index.Load(); err != nil {
		log.Printf("向量索引加载失败，语义检索不可用: %v", err)
	} else {
		log.Printf("向量索引加载完成，共 %d 条", index.Len())
	}

	// 初始化外部客户端
	ollama := utils.NewOllamaClient(cfg.OllamaHost, cfg.OllamaEmbedModel, cfg.OllamaChatModel)
	tmdb := service.NewTMDBClient(cfg)

	var generator service.TextGenerator = ollama
	if cfg.LLMProvider == "gemini" {
		generator = utils.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel)
	}

	// 初始化服务
	searchService := service.NewSearchService(cfg, repos.Movie, repos.Credit, index, ollama, tmdb)
	qaService := service.NewQAService(cfg, searchService, generator)
	builder := service.NewIndexBuilder(repos.Movie, index, ollama, searchService, tmdb)

	// 初始化 Gin
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// 启用 gzip，默认压缩级别
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 中间件
	r.Use(middleware.Logger())
	r.Use(middleware.Security())
	r.Use(middleware.CORS())

	// 初始化 Handler 并注册路由
	h := handler.NewHandler(repos, cfg, searchService, qaService, builder, tmdb, index)
	router.RegisterRoutes(r, h)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// 在 goroutine 中启动服务器，这样我们就可以监听信号
	go func() {
		log.Printf("服务器启动于 http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("正在关闭服务器...")

	// 5 秒超时上下文用于关闭过程
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("服务器强制关闭:", err)
	}

	log.Println("服务器已退出")
}
