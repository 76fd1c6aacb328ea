package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Mongo       MongoConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Stripe      StripeConfig
	Auth        AuthConfig
	Payment     PaymentConfig
	Shipping    ShippingConfig
	Checkout    CheckoutConfig
	Sessions    SessionsConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// MongoConfig points at the users collection store.
type MongoConfig struct {
	URI      string `default:"mongodb://localhost:27017" usage:"MongoDB connection URI"`
	Database string `default:"roseila" usage:"MongoDB database name"`
}

// RedisConfig enables the catalog cache when URL is set.
type RedisConfig struct {
	URL string        `usage:"Redis URL for the catalog cache; empty disables caching"`
	TTL time.Duration `default:"5m" usage:"Catalog cache TTL"`
}

// KafkaConfig enables order event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers for order events; empty logs events instead"`
	Topic   string   `default:"storefront.orders" usage:"Kafka topic for order events"`
}

// StripeConfig selects the Stripe gateway when SecretKey is set. Without it
// the in-memory sandbox gateway is used.
type StripeConfig struct {
	SecretKey string `usage:"Stripe secret key" flag:"stripe-secret-key"`
	ReturnURL string `default:"http://localhost:8080/checkout/complete" usage:"Return URL for redirect-based payment methods"`
}

// AuthConfig controls session and federated ID tokens.
type AuthConfig struct {
	TokenSecret  string        `usage:"HMAC secret for session tokens (STOREFRONT_AUTH_TOKEN_SECRET)" flag:"token-secret"`
	TokenTTL     time.Duration `default:"168h" usage:"Session token lifetime"`
	SocialSecret string        `usage:"HMAC secret for federated ID tokens; empty disables social sign-in"`
	SocialIssuer string        `default:"roseila-social" usage:"Expected issuer of federated ID tokens"`
}

// PaymentConfig controls how checkout obtains payment intents.
type PaymentConfig struct {
	Endpoint string        `usage:"Remote payment intent endpoint; empty creates intents in-process"`
	Timeout  time.Duration `default:"10s" usage:"Payment intent request timeout"`
	Currency string        `default:"usd" usage:"Charge currency"`
}

// ShippingConfig is the flat shipping rule.
type ShippingConfig struct {
	FlatFee       string `default:"5.99" usage:"Shipping fee charged up to the free threshold"`
	FreeThreshold string `default:"50.00" usage:"Subtotal above which shipping is free"`
}

// CheckoutConfig controls the checkout flow.
type CheckoutConfig struct {
	ConfirmationDelay time.Duration `default:"3s" usage:"How long a completed checkout is shown before resetting"`
}

// SessionsConfig controls the client registry.
type SessionsConfig struct {
	IdleTTL time.Duration `default:"30m" usage:"Idle time after which a client is dropped"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	case c.Auth.TokenSecret == "":
		return errors.New("token secret is required: set STOREFRONT_AUTH_TOKEN_SECRET")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Mongo.URI == "mongodb://localhost:27017" {
		if v := os.Getenv("MONGODB_URI"); v != "" {
			c.Mongo.URI = v
		}
	}
	if c.Redis.URL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.Redis.URL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
