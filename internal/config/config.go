package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config 应用配置
type Config struct {
	Env         string
	Port        string
	DatabaseURL string
	AdminToken  string

	// TMDB API
	TMDBToken   string
	TMDBBaseURL string

	// Ollama (embedding + 生成)
	OllamaHost       string
	OllamaEmbedModel string
	OllamaChatModel  string
	EmbedDim         int

	// Gemini (可选的答案生成后端)
	LLMProvider  string
	GeminiAPIKey string
	GeminiModel  string

	// 向量索引持久化路径
	IndexPath    string
	MetadataPath string

	// 混合检索调优参数（来源常量，无推导依据，保持可配置）
	MinSimilarity   float64 // 语义结果最低相似度阈值
	SemanticWeight  float64 // 重排时语义相似度权重，流行度权重为 1-该值
	PopularityScale float64 // 流行度归一化除数
	CandidatePool   int     // 语义候选池倍数（相对请求 limit）
}

// Load 加载配置
func Load() *Config {
	dbUser := getEnv("DB_USER", "postgres")
	dbPass := getEnv("DB_PASSWORD", "postgres")
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_NAME", "peninemate")
	dbSSL := getEnv("DB_SSLMODE", "disable")

	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbUser, dbPass, dbHost, dbPort, dbName, dbSSL)

	adminToken := getEnv("ADMIN_TOKEN", "")
	if getEnv("APP_ENV", "development") == "production" && adminToken == "" {
		fmt.Println("【警告】生产环境未设置 ADMIN_TOKEN，管理接口将全部拒绝访问。")
	}

	return &Config{
		Env:         getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "5008"),
		DatabaseURL: dbURL,
		AdminToken:  adminToken,

		TMDBToken:   getEnv("TMDB_TOKEN", ""),
		TMDBBaseURL: getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),

		OllamaHost:       getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaEmbedModel: getEnv("OLLAMA_EMBED_MODEL", "quentinz/bge-base-zh-v1.5"),
		OllamaChatModel:  getEnv("OLLAMA_CHAT_MODEL", "qwen2.5:3b-instruct"),
		EmbedDim:         getEnvInt("OLLAMA_EMBED_DIM", 768),

		LLMProvider:  getEnv("LLM_PROVIDER", "ollama"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		IndexPath:    getEnv("VECTOR_INDEX_PATH", "data/movies.index"),
		MetadataPath: getEnv("VECTOR_METADATA_PATH", "data/movies_metadata.json"),

		MinSimilarity:   getEnvFloat("SEARCH_MIN_SIMILARITY", 0.4),
		SemanticWeight:  getEnvFloat("SEARCH_SEMANTIC_WEIGHT", 0.7),
		PopularityScale: getEnvFloat("SEARCH_POPULARITY_SCALE", 100.0),
		CandidatePool:   getEnvInt("SEARCH_CANDIDATE_POOL", 4),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
