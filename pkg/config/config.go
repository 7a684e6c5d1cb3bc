package config

import (
	"time"
)

type DB struct {
	Driver          string        `envconfig:"DRIVER" default:"postgres"`
	Url             string        `envconfig:"URL"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"25"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"1h"`
	Tracing         bool          `envconfig:"TRACING" default:"false"`
	AutoMigrate     bool          `envconfig:"AUTO_MIGRATE" default:"true"`
}

type Redis struct {
	URL          string        `envconfig:"URL" default:""`
	KeyPrefix    string        `envconfig:"KEY_PREFIX" default:"settlement:"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

type Kafka struct {
	Brokers     string `envconfig:"BROKERS" default:""`
	GroupID     string `envconfig:"GROUP_ID" default:"settlement"`
	TopicPrefix string `envconfig:"TOPIC_PREFIX" default:"settlement.events"`
}

// EventBus selects the transport for internal notifications.
type EventBus struct {
	Driver string `envconfig:"DRIVER" default:"memory"` // memory, redis or kafka
	Stream string `envconfig:"STREAM" default:"settlement-events"`
	Group  string `envconfig:"GROUP" default:"settlement"`
}

type RateLimit struct {
	MaxRequests int           `envconfig:"MAX_REQUESTS" default:"100"`
	Window      time.Duration `envconfig:"WINDOW" default:"1m"`
}

//revive:disable
type Stripe struct {
	Env           string `envconfig:"ENV" default:"test"`
	ApiKey        string `envconfig:"API_KEY"`
	SigningSecret string `envconfig:"SIGNING_SECRET"`
	Country       string `envconfig:"COUNTRY" default:"TR"`
}

//revive:enable

// Provider configures the external payout provider adapter.
type Provider struct {
	Driver        string        `envconfig:"DRIVER" default:"mock"` // mock or stripe
	WebhookSecret string        `envconfig:"WEBHOOK_SECRET" default:"local-webhook-secret"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"15s"`
	Stripe        *Stripe       `envconfig:"STRIPE"`
}

type Crypto struct {
	// IBANKey is either a 64 char hex AES-256 key or a passphrase
	// that is stretched with HKDF.
	IBANKey string `envconfig:"IBAN_KEY" default:"dev-only-iban-key"`
}

type Payout struct {
	Currency       string        `envconfig:"CURRENCY" default:"TRY"`
	OutboxBatch    int           `envconfig:"OUTBOX_BATCH" default:"25"`
	MaxAttempts    int           `envconfig:"MAX_ATTEMPTS" default:"5"`
	ReconcileAfter time.Duration `envconfig:"RECONCILE_AFTER" default:"10m"`
	ReconcileBatch int           `envconfig:"RECONCILE_BATCH" default:"50"`
}

type Webhook struct {
	ClockSkew    time.Duration `envconfig:"CLOCK_SKEW" default:"5m"`
	ReplayStatus int           `envconfig:"REPLAY_STATUS" default:"200"`
	ProcessBatch int           `envconfig:"PROCESS_BATCH" default:"50"`
}

type Billing struct {
	GraceDays        int           `envconfig:"GRACE_DAYS" default:"5"`
	InvoiceDueDays   int           `envconfig:"INVOICE_DUE_DAYS" default:"14"`
	QuotaCacheTTL    time.Duration `envconfig:"QUOTA_CACHE_TTL" default:"60s"`
	QuotaCacheDriver string        `envconfig:"QUOTA_CACHE_DRIVER" default:"memory"` // memory or redis
}

type Risk struct {
	// DayOffset is the UTC offset used to cut daily GMV and payout windows.
	DayOffset time.Duration `envconfig:"DAY_OFFSET" default:"3h"`
}

type Integrity struct {
	StaleSending time.Duration `envconfig:"STALE_SENDING" default:"15m"`
	SilentSent   time.Duration `envconfig:"SILENT_SENT" default:"24h"`
}

// Scheduler intervals; zero disables a job.
type Scheduler struct {
	Outbox          time.Duration `envconfig:"OUTBOX" default:"30s"`
	Reconcile       time.Duration `envconfig:"RECONCILE" default:"2m"`
	Webhooks        time.Duration `envconfig:"WEBHOOKS" default:"15s"`
	CollectionGuard time.Duration `envconfig:"COLLECTION_GUARD" default:"1h"`
	Rollover        time.Duration `envconfig:"ROLLOVER" default:"1h"`
	Sentinel        time.Duration `envconfig:"SENTINEL" default:"10m"`
	Repair          time.Duration `envconfig:"REPAIR" default:"5m"`
	Metrics         time.Duration `envconfig:"METRICS" default:"1h"`
}

type PubSub struct {
	ProjectID  string `envconfig:"PROJECT_ID" default:""`
	AlertTopic string `envconfig:"ALERT_TOPIC" default:"finance-integrity-alerts"`
}

type Tenant struct {
	PlatformID      string   `envconfig:"PLATFORM_ID" default:"PLATFORM"`
	EnabledFeatures []string `envconfig:"ENABLED_FEATURES" default:"BOOST_ENABLED"`
}

type Log struct {
	Level      int    `envconfig:"LEVEL" default:"0"`
	Format     string `envconfig:"FORMAT" default:"json"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"2006-01-02 15:04:05"`
	Prefix     string `envconfig:"PREFIX" default:"[settlement]"`
}

type Server struct {
	Scheme string `envconfig:"SCHEME" default:"http"`
	Host   string `envconfig:"HOST" default:"localhost"`
	Port   int    `envconfig:"PORT" default:"3000"`
}

type App struct {
	Env       string     `envconfig:"APP_ENV" default:"development"`
	Server    *Server    `envconfig:"SERVER"`
	Log       *Log       `envconfig:"LOG"`
	DB        *DB        `envconfig:"DATABASE"`
	Redis     *Redis     `envconfig:"REDIS"`
	Kafka     *Kafka     `envconfig:"KAFKA"`
	EventBus  *EventBus  `envconfig:"EVENT_BUS"`
	RateLimit *RateLimit `envconfig:"RATE_LIMIT"`
	Provider  *Provider  `envconfig:"PAYOUT_PROVIDER"`
	Crypto    *Crypto    `envconfig:"CRYPTO"`
	Payout    *Payout    `envconfig:"PAYOUT"`
	Webhook   *Webhook   `envconfig:"WEBHOOK"`
	Billing   *Billing   `envconfig:"BILLING"`
	Risk      *Risk      `envconfig:"RISK"`
	Integrity *Integrity `envconfig:"INTEGRITY"`
	Scheduler *Scheduler `envconfig:"SCHEDULER"`
	PubSub    *PubSub    `envconfig:"PUBSUB"`
	Tenant    *Tenant    `envconfig:"TENANT"`
}
