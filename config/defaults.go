package config

import "time"

// DefaultVocabulary is the correction vocabulary shipped with Vitrine.
var DefaultVocabulary = []string{
	"iphone", "samsung", "xiaomi", "motorola", "celular", "smartphone",
	"notebook", "tablet", "drone", "camera", "fone", "headset",
	"televisao", "monitor", "teclado", "mouse", "playstation", "xbox",
	"geladeira", "fogao", "cafeteira", "liquidificador", "bicicleta", "tenis",
	"relogio", "perfume", "mochila", "cadeira", "quadricoptero", "impressora",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "vitrine",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				RequestTimeout:  45 * time.Second,
				ShutdownTimeout: 30 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
			},
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
			},
			WebSocket: WebSocketConfig{
				Enabled:        true,
				MaxConnections: 100,
				PingInterval:   30 * time.Second,
			},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 10,
				Burst:             20,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Storage: StorageConfig{
			Type: "memory",
			Badger: BadgerConfig{
				Path:              "./data/badger",
				SyncWrites:        true,
				ValueLogFileSize:  1 << 28, // 256MB
				NumVersionsToKeep: 1,
			},
			Redis: RedisConfig{
				Address:    "localhost:6379",
				Password:   "",
				DB:         0,
				KeyPrefix:  "vitrine:",
				SessionTTL: 72 * time.Hour,
			},
			Postgres: PostgresConfig{
				DSN: "",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlp",
			Endpoint:   "localhost:4317",
			Timeout:    5 * time.Second,
			Sampler:    "ratio",
			SampleRate: 0.1,
		},
		Conversation: ConversationConfig{
			ContextStackSize: 12,
			HistoryLimit:     200,
			SignalLimit:      100,
			CacheSize:        1024,
			CarryOverLimit:   3,
		},
		Catalog: CatalogConfig{
			Mode:        "static",
			BaseURL:     "http://localhost:8090",
			FixturePath: "./configs/catalog.yaml",
			Timeout:     3 * time.Second,
			RateLimit:   50,
			Burst:       10,
			CacheTTL:    0,
		},
		Retrieval: RetrievalConfig{
			CorrectionThreshold: 0.72,
			Vocabulary:          append([]string(nil), DefaultVocabulary...),
			MaxSuggestions:      3,
		},
		Ranking: RankingConfig{
			TopN:        8,
			TopK:        3,
			PerStoreCap: 2,
		},
		Generation: GenerationConfig{
			Provider:  "scripted",
			Model:     "gpt-4o-mini",
			Timeout:   20 * time.Second,
			MaxTokens: 800,
			RateLimit: 5,
		},
	}
}
