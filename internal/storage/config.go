package storage

import (
	"os"
	"time"
)

// Mode selects the credential store backend
type Mode string

const (
	ModeFile   Mode = "file"
	ModeMemory Mode = "memory"
	ModeLocal  Mode = "local" // DynamoDB Local
	ModeAWS    Mode = "aws"
)

// DefaultPassword is assigned to new and reset accounts
const DefaultPassword = "12345"

// Config holds credential store configuration
type Config struct {
	Mode            Mode
	UsersFile       string
	DefaultPassword string
	ProfileCacheTTL time.Duration

	// DynamoDB
	Endpoint   string // for local mode
	Region     string
	UsersTable string
}

// LoadConfig loads credential store config from environment
func LoadConfig() Config {
	mode := Mode(getEnv("CREDENTIALS_MODE", string(ModeFile)))
	switch mode {
	case ModeFile, ModeMemory, ModeLocal, ModeAWS:
	default:
		mode = ModeFile
	}

	ttl, err := time.ParseDuration(getEnv("PROFILE_CACHE_TTL", "30s"))
	if err != nil {
		ttl = 30 * time.Second
	}

	return Config{
		Mode:            mode,
		UsersFile:       getEnv("USERS_FILE", "users.json"),
		DefaultPassword: getEnv("DEFAULT_PASSWORD", DefaultPassword),
		ProfileCacheTTL: ttl,
		Endpoint:        getEnv("DYNAMO_ENDPOINT", "http://localhost:8000"),
		Region:          getEnv("DYNAMO_REGION", "eu-central-1"),
		UsersTable:      getEnv("DYNAMO_USERS_TABLE", "agentkpi-users"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
