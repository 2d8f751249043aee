package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Server configuration
	ServerPort  string
	Environment string
	LogLevel    string

	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis configuration
	RedisAddress   string
	AccessCacheTTL time.Duration

	// JWT configuration
	JWTSecret       string
	TokenTTL        time.Duration
	RefreshTokenTTL time.Duration

	FrontendAddress string

	// Workspace holds one directory per project, shared by the file
	// service, the watcher and the terminals.
	WorkspaceRoot  string
	WatchStability time.Duration
	SendQueue      int
	WorkerCount    int

	Storage Storage
}

// Storage configures the S3-compatible store for large file contents.
type Storage struct {
	Endpoint        string
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicURL       string
	// Threshold is the content size above which files are offloaded.
	Threshold int64
}

// Enabled reports whether offloading can be used at all.
func (s Storage) Enabled() bool {
	return s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != "" &&
		(s.Endpoint != "" || s.AccountID != "")
}

// Load reads .env (if any) and the environment.
func Load() Config {
	loadDotEnv()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "postgres")
	v.SetDefault("db_name", "collaborative_ide")
	v.SetDefault("redis_address", "localhost:6379")
	v.SetDefault("access_cache_ttl", "30s")
	v.SetDefault("token_ttl", "1h")
	v.SetDefault("refresh_token_ttl", "168h")
	v.SetDefault("frontend_address", "http://localhost:3000")
	v.SetDefault("workspace_root", filepath.Join(os.TempDir(), "ide-workspaces"))
	v.SetDefault("watch_stability", "200ms")
	v.SetDefault("send_queue", 256)
	v.SetDefault("worker_count", 4)
	v.SetDefault("r2_threshold", 1<<20)

	// R2 keeps the names the storage credentials are issued under.
	v.BindEnv("r2_endpoint", "R2_ENDPOINT")
	v.BindEnv("r2_account_id", "R2_ACCOUNT_ID")
	v.BindEnv("r2_access_key_id", "R2_ACCESS_KEY_ID")
	v.BindEnv("r2_secret_access_key", "R2_SECRET_ACCESS_KEY")
	v.BindEnv("r2_bucket", "R2_BUCKET_NAME")
	v.BindEnv("r2_public_url", "R2_PUBLIC_URL")
	v.BindEnv("r2_threshold", "R2_THRESHOLD")

	jwtSecret := v.GetString("jwt_secret")
	if jwtSecret == "" {
		jwtSecret = generateRandomSecret(32)
		log.Println("Generated random JWT secret")
	}

	return Config{
		ServerPort:      v.GetString("port"),
		Environment:     v.GetString("env"),
		LogLevel:        v.GetString("log_level"),
		DBHost:          v.GetString("db_host"),
		DBPort:          v.GetString("db_port"),
		DBUser:          v.GetString("db_user"),
		DBPassword:      v.GetString("db_password"),
		DBName:          v.GetString("db_name"),
		RedisAddress:    v.GetString("redis_address"),
		AccessCacheTTL:  v.GetDuration("access_cache_ttl"),
		JWTSecret:       jwtSecret,
		TokenTTL:        v.GetDuration("token_ttl"),
		RefreshTokenTTL: v.GetDuration("refresh_token_ttl"),
		FrontendAddress: v.GetString("frontend_address"),
		WorkspaceRoot:   v.GetString("workspace_root"),
		WatchStability:  v.GetDuration("watch_stability"),
		SendQueue:       v.GetInt("send_queue"),
		WorkerCount:     v.GetInt("worker_count"),
		Storage: Storage{
			Endpoint:        v.GetString("r2_endpoint"),
			AccountID:       v.GetString("r2_account_id"),
			AccessKeyID:     v.GetString("r2_access_key_id"),
			SecretAccessKey: v.GetString("r2_secret_access_key"),
			Bucket:          v.GetString("r2_bucket"),
			PublicURL:       v.GetString("r2_public_url"),
			Threshold:       v.GetInt64("r2_threshold"),
		},
	}
}

// loadDotEnv loads the nearest .env from here up to two parents.
func loadDotEnv() {
	for _, envPath := range []string{".env", filepath.Join("..", ".env"), filepath.Join("..", "..", ".env")} {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: Error loading .env file: %v\n", err)
		}
		return
	}
}

func generateRandomSecret(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
