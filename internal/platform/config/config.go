package config

import (
	"os"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean.
type Config struct {
	Addr string

	// AdminIDs is the operator allow-list. Only these identities may upload,
	// broadcast, or read stats.
	AdminIDs []string
	// Groups is the ordered set of external groups a requester must belong
	// to before archived content is replayed.
	Groups []string
	// ArchiveChannel is the durable destination the archive collaborator
	// copies uploads into.
	ArchiveChannel string

	// WebhookSecret gates the push-style inbound endpoint. Empty disables
	// the webhook transport and the poller runs instead.
	WebhookSecret string

	// CourierURL and CourierToken locate and authenticate the messaging
	// platform the service archives to and replays from.
	CourierURL   string
	CourierToken string

	MongoURI string
	Redis    RedisConfig

	// CollabTimeout bounds every store, transport, and archive call.
	CollabTimeout time.Duration
	// StandingCacheTTL bounds how long a group standing may be served from
	// cache before the collaborator is asked again.
	StandingCacheTTL time.Duration
}

// RedisConfig carries connection tuning for the standing cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:             getenv("FILEGATE_ADDR", ":8080"),
		AdminIDs:         splitList(os.Getenv("FILEGATE_ADMIN_IDS")),
		Groups:           splitList(os.Getenv("FILEGATE_GROUPS")),
		ArchiveChannel:   os.Getenv("FILEGATE_ARCHIVE_CHANNEL"),
		WebhookSecret:    os.Getenv("FILEGATE_WEBHOOK_SECRET"),
		CourierURL:       os.Getenv("FILEGATE_COURIER_URL"),
		CourierToken:     os.Getenv("FILEGATE_COURIER_TOKEN"),
		MongoURI:         os.Getenv("FILEGATE_MONGO_URI"),
		CollabTimeout:    getduration("FILEGATE_COLLAB_TIMEOUT", 5*time.Second),
		StandingCacheTTL: getduration("FILEGATE_STANDING_CACHE_TTL", 30*time.Second),
		Redis: RedisConfig{
			URL:          os.Getenv("FILEGATE_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  1 * time.Second,
			WriteTimeout: 1 * time.Second,
		},
	}
}

// IsAdmin reports whether id is on the operator allow-list.
func (c Config) IsAdmin(id string) bool {
	for _, admin := range c.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// splitList parses a comma-separated env value, dropping empty entries so a
// trailing comma does not produce a phantom group or admin.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
