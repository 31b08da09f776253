package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zed-io/fineract-sub004/custom_errors"
)

const envPrefix = "SCHEDULER_"

// FromEnv builds a SchedulerConfig from SCHEDULER_* environment variables.
// Extra options are applied after the environment.
func FromEnv(opts ...Option) (*SchedulerConfig, error) {
	return FromLookup(os.LookupEnv, opts...)
}

// FromLookup is FromEnv with an injectable variable source.
func FromLookup(lookup func(string) (string, bool), opts ...Option) (*SchedulerConfig, error) {
	get := func(key string) (string, bool) {
		v, ok := lookup(envPrefix + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	nodeID, ok := get("NODE_ID")
	if !ok {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolve node id: %w", err)
		}
		nodeID = host
	}

	parseErrs := &custom_errors.ValidationError{}
	var envOpts []Option

	if v, ok := get("STORAGE_DRIVER"); ok {
		switch strings.ToLower(v) {
		case "postgres":
			envOpts = append(envOpts, WithStorageDriver(Postgres))
		case "memory":
			envOpts = append(envOpts, WithStorageDriver(Memory))
		default:
			parseErrs.Add(fmt.Errorf("%sSTORAGE_DRIVER: unknown driver %q", envPrefix, v))
		}
	}
	if v, ok := get("LOCK_DRIVER"); ok {
		switch strings.ToLower(v) {
		case "postgres":
			envOpts = append(envOpts, WithLockDriver(PostgresLock))
		case "redis":
			envOpts = append(envOpts, WithLockDriver(RedisLock))
		case "memory":
			envOpts = append(envOpts, WithLockDriver(MemoryLock))
		default:
			parseErrs.Add(fmt.Errorf("%sLOCK_DRIVER: unknown driver %q", envPrefix, v))
		}
	}
	if v, ok := get("POSTGRES_URL"); ok {
		envOpts = append(envOpts, WithPostgresConfig(PostgresConfig{ConnectionUrl: v}))
	}
	if addr, ok := get("REDIS_ADDR"); ok {
		rc := RedisConfig{Address: addr}
		rc.Password, _ = get("REDIS_PASSWORD")
		rc.KeyPrefix, _ = get("REDIS_KEY_PREFIX")
		if v, ok := get("REDIS_DB"); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				parseErrs.Add(fmt.Errorf("%sREDIS_DB: %w", envPrefix, err))
			}
			rc.DB = n
		}
		envOpts = append(envOpts, WithRedisConfig(rc))
	}
	if url, ok := get("RABBITMQ_URL"); ok {
		rc := RabbitMQConfig{URL: url}
		rc.Exchange, _ = get("RABBITMQ_EXCHANGE")
		rc.Queue, _ = get("RABBITMQ_QUEUE")
		envOpts = append(envOpts, WithRabbitMQConfig(rc))
	}

	durations := []struct {
		key string
		opt func(time.Duration) Option
	}{
		{"POLL_INTERVAL", WithPollInterval},
		{"LEASE_TTL", WithLeaseTTL},
		{"ORPHAN_CHECK_INTERVAL", WithOrphanCheckInterval},
		{"MAX_BACKOFF", WithMaxBackoff},
	}
	for _, d := range durations {
		if v, ok := get(d.key); ok {
			dur, err := time.ParseDuration(v)
			if err != nil {
				parseErrs.Add(fmt.Errorf("%s%s: %w", envPrefix, d.key, err))
				continue
			}
			envOpts = append(envOpts, d.opt(dur))
		}
	}

	ints := []struct {
		key string
		opt func(int) Option
	}{
		{"WORKER_COUNT", WithWorkerCount},
		{"BATCH_SIZE", WithBatchSize},
		{"DEFAULT_TIMEOUT_SECONDS", WithDefaultTimeout},
		{"MAX_RETRIES", WithDefaultMaxRetries},
	}
	for _, i := range ints {
		if v, ok := get(i.key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				parseErrs.Add(fmt.Errorf("%s%s: %w", envPrefix, i.key, err))
				continue
			}
			envOpts = append(envOpts, i.opt(n))
		}
	}

	if parseErrs.HasError() {
		return nil, parseErrs
	}
	return NewSchedulerConfig(nodeID, append(envOpts, opts...)...)
}
