// Package config loads every tunable the service needs from the
// environment. Windows and thresholds are configuration, not literals,
// so they can be recalibrated without a code change.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// SessionConfig governs the join/heartbeat surface of a video session.
type SessionConfig struct {
	JoinGraceMinutes       int           // symmetric window around scheduled start
	JoinTokenTTL           time.Duration // signed join token lifetime
	HeartbeatWindowMinutes int           // slack before start / after end
	HeartbeatMinInterval   time.Duration // beats closer than this are acknowledged, not counted
	HeartbeatCadenceSec    int           // expected client cadence, drives the minutes estimate
	MeetingBaseURL         string
}

// PresenceConfig holds the three OR-combined presence thresholds.
type PresenceConfig struct {
	MinMinutes    float64
	MinHeartbeats int
	MinFraction   float64
}

type BookingConfig struct {
	CancelWindowHours  int
	PlatformFeePercent float64
	Timezone           string
}

type WorkerConfig struct {
	MonitorInterval    time.Duration
	StartLagMinutes    int
	EndLagMinutes      int
	AutoConfirmHours   int
	OrphanAgeMinutes   int
	OrphanBatchLimit   int64
	OrphanConcurrency  int
	MismatchAgeMinutes int
}

type RefundConfig struct {
	MaxRetries   int
	MinUnitPaise int64
}

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
}

type BrevoConfig struct {
	APIKey      string
	SenderEmail string
	SenderName  string
}

type Config struct {
	Server   ServerConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Session  SessionConfig
	Presence PresenceConfig
	Booking  BookingConfig
	Worker   WorkerConfig
	Refund   RefundConfig
	Razorpay RazorpayConfig
	Brevo    BrevoConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", "7s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB", "sattvadb")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")

	v.SetDefault("JOIN_GRACE_MINUTES", 10)
	v.SetDefault("JOIN_TOKEN_TTL", "2m")
	v.SetDefault("HEARTBEAT_WINDOW_MINUTES", 10)
	v.SetDefault("HEARTBEAT_MIN_INTERVAL", "25s")
	v.SetDefault("HEARTBEAT_CADENCE_SECONDS", 30)
	v.SetDefault("MEETING_BASE_URL", "https://meet.sattva.app")

	v.SetDefault("PRESENCE_MIN_MINUTES", 10.0)
	v.SetDefault("PRESENCE_MIN_HEARTBEATS", 20)
	v.SetDefault("PRESENCE_MIN_FRACTION", 0.20)

	v.SetDefault("CANCEL_WINDOW_HOURS", 24)
	v.SetDefault("PLATFORM_FEE_PERCENT", 10.0)
	v.SetDefault("TIMEZONE", "Asia/Kolkata")

	v.SetDefault("MONITOR_INTERVAL", "5m")
	v.SetDefault("START_LAG_MINUTES", 10)
	v.SetDefault("END_LAG_MINUTES", 10)
	v.SetDefault("AUTO_CONFIRM_HOURS", 24)
	v.SetDefault("ORPHAN_AGE_MINUTES", 30)
	v.SetDefault("ORPHAN_BATCH_LIMIT", 50)
	v.SetDefault("ORPHAN_CONCURRENCY", 5)
	v.SetDefault("MISMATCH_AGE_MINUTES", 10)

	v.SetDefault("REFUND_MAX_RETRIES", 3)
	v.SetDefault("REFUND_MIN_UNIT_PAISE", 100)

	v.SetDefault("RAZORPAY_KEY_ID", "")
	v.SetDefault("RAZORPAY_KEY_SECRET", "")
	v.SetDefault("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1")

	v.SetDefault("BREVO_API_KEY", "")
	v.SetDefault("BREVO_SENDER_EMAIL", "support@sattva.app")
	v.SetDefault("BREVO_SENDER_NAME", "Sattva")
}

// Load reads .env (if present) and the process environment into a Config.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found; using system environment")
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return &Config{
		Server: ServerConfig{
			Port:         v.GetString("PORT"),
			ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:  v.GetDuration("SERVER_IDLE_TIMEOUT"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("MONGO_URI"),
			Database: v.GetString("MONGO_DB"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:          v.GetString("JWT_SECRET"),
			AccessTokenTTL:  v.GetDuration("ACCESS_TOKEN_TTL"),
			RefreshTokenTTL: v.GetDuration("REFRESH_TOKEN_TTL"),
		},
		Session: SessionConfig{
			JoinGraceMinutes:       v.GetInt("JOIN_GRACE_MINUTES"),
			JoinTokenTTL:           v.GetDuration("JOIN_TOKEN_TTL"),
			HeartbeatWindowMinutes: v.GetInt("HEARTBEAT_WINDOW_MINUTES"),
			HeartbeatMinInterval:   v.GetDuration("HEARTBEAT_MIN_INTERVAL"),
			HeartbeatCadenceSec:    v.GetInt("HEARTBEAT_CADENCE_SECONDS"),
			MeetingBaseURL:         v.GetString("MEETING_BASE_URL"),
		},
		Presence: PresenceConfig{
			MinMinutes:    v.GetFloat64("PRESENCE_MIN_MINUTES"),
			MinHeartbeats: v.GetInt("PRESENCE_MIN_HEARTBEATS"),
			MinFraction:   v.GetFloat64("PRESENCE_MIN_FRACTION"),
		},
		Booking: BookingConfig{
			CancelWindowHours:  v.GetInt("CANCEL_WINDOW_HOURS"),
			PlatformFeePercent: v.GetFloat64("PLATFORM_FEE_PERCENT"),
			Timezone:           v.GetString("TIMEZONE"),
		},
		Worker: WorkerConfig{
			MonitorInterval:    v.GetDuration("MONITOR_INTERVAL"),
			StartLagMinutes:    v.GetInt("START_LAG_MINUTES"),
			EndLagMinutes:      v.GetInt("END_LAG_MINUTES"),
			AutoConfirmHours:   v.GetInt("AUTO_CONFIRM_HOURS"),
			OrphanAgeMinutes:   v.GetInt("ORPHAN_AGE_MINUTES"),
			OrphanBatchLimit:   v.GetInt64("ORPHAN_BATCH_LIMIT"),
			OrphanConcurrency:  v.GetInt("ORPHAN_CONCURRENCY"),
			MismatchAgeMinutes: v.GetInt("MISMATCH_AGE_MINUTES"),
		},
		Refund: RefundConfig{
			MaxRetries:   v.GetInt("REFUND_MAX_RETRIES"),
			MinUnitPaise: v.GetInt64("REFUND_MIN_UNIT_PAISE"),
		},
		Razorpay: RazorpayConfig{
			KeyID:     v.GetString("RAZORPAY_KEY_ID"),
			KeySecret: v.GetString("RAZORPAY_KEY_SECRET"),
			BaseURL:   v.GetString("RAZORPAY_BASE_URL"),
		},
		Brevo: BrevoConfig{
			APIKey:      v.GetString("BREVO_API_KEY"),
			SenderEmail: v.GetString("BREVO_SENDER_EMAIL"),
			SenderName:  v.GetString("BREVO_SENDER_NAME"),
		},
	}
}
