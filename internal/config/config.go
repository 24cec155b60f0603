package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type APPConfig struct {
	// Server port of the UI bridge
	Port            string
	Env             string
	LogLevel        string
	StateCookieName string
}

type RedisSettings struct {
	Address  string
	Password string
	DB       int
}

// StoreConfig selects the backend of the session store.
type StoreConfig struct {
	// memory (default) or redis
	Backend string
	Redis   RedisSettings
}

type OIDCConfig struct {
	Issuer        string
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	RevocationURL string
	Scopes        []string
}

type LocalAuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// IdentityConfig selects and configures the identity authority.
type IdentityConfig struct {
	// oidc or local
	Provider string
	OIDC     OIDCConfig
	Local    LocalAuthConfig
}

type Config struct {
	App      APPConfig
	Store    StoreConfig
	Identity IdentityConfig
	// Path of the SQLite profile database, ":memory:" for an ephemeral one
	ProfileDBPath string
}

const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"

	IdentityProviderOIDC  = "oidc"
	IdentityProviderLocal = "local"
)

func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("STATE_COOKIE_NAME", "portal_oauth_state")
	viper.SetDefault("SESSION_STORE", StoreBackendMemory)
	viper.SetDefault("REDIS_ADDRESS", "localhost:6379")
	viper.SetDefault("PROFILE_DB_PATH", "file:profiles.db?_fk=1")
	viper.SetDefault("IDENTITY_PROVIDER", IdentityProviderLocal)
	viper.SetDefault("OIDC_SCOPES", "openid,profile,email,offline_access")
	viper.SetDefault("LOCAL_TOKEN_TTL", "24h")

	// Load configuration
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	storeBackend := strings.ToLower(viper.GetString("SESSION_STORE"))
	if storeBackend != StoreBackendMemory && storeBackend != StoreBackendRedis {
		log.Printf("Invalid session store backend '%s', defaulting to '%s'", storeBackend, StoreBackendMemory)
		storeBackend = StoreBackendMemory
	}

	provider := strings.ToLower(viper.GetString("IDENTITY_PROVIDER"))
	switch provider {
	case IdentityProviderOIDC:
		if viper.GetString("OIDC_ISSUER") == "" || viper.GetString("OIDC_CLIENT_ID") == "" {
			return nil, fmt.Errorf("identity provider %q requires OIDC_ISSUER and OIDC_CLIENT_ID", provider)
		}
	case IdentityProviderLocal:
		if viper.GetString("LOCAL_JWT_SECRET") == "" {
			return nil, fmt.Errorf("identity provider %q requires LOCAL_JWT_SECRET", provider)
		}
	default:
		return nil, fmt.Errorf("unknown identity provider %q", provider)
	}

	tokenTTL := viper.GetDuration("LOCAL_TOKEN_TTL")
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
		log.Printf("Invalid LOCAL_TOKEN_TTL '%s', defaulting to %v", viper.GetString("LOCAL_TOKEN_TTL"), tokenTTL)
	}

	var scopes []string
	for _, s := range strings.Split(viper.GetString("OIDC_SCOPES"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}

	return &Config{
		App: APPConfig{
			Port:            viper.GetString("APP_PORT"),
			Env:             viper.GetString("APP_ENV"),
			LogLevel:        viper.GetString("LOG_LEVEL"),
			StateCookieName: viper.GetString("STATE_COOKIE_NAME"),
		},
		Store: StoreConfig{
			Backend: storeBackend,
			Redis: RedisSettings{
				Address:  viper.GetString("REDIS_ADDRESS"),
				Password: viper.GetString("REDIS_PASSWORD"),
				DB:       viper.GetInt("REDIS_DB"),
			},
		},
		Identity: IdentityConfig{
			Provider: provider,
			OIDC: OIDCConfig{
				Issuer:        viper.GetString("OIDC_ISSUER"),
				ClientID:      viper.GetString("OIDC_CLIENT_ID"),
				ClientSecret:  viper.GetString("OIDC_CLIENT_SECRET"),
				RedirectURL:   viper.GetString("OIDC_REDIRECT_URL"),
				RevocationURL: viper.GetString("OIDC_REVOCATION_URL"),
				Scopes:        scopes,
			},
			Local: LocalAuthConfig{
				JWTSecret: viper.GetString("LOCAL_JWT_SECRET"),
				TokenTTL:  tokenTTL,
			},
		},
		ProfileDBPath: viper.GetString("PROFILE_DB_PATH"),
	}, nil
}
