package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags registers the configuration flags on flags and binds each one,
// and its CONTENTWEAVER_* variable, to the matching key in v.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	def := DefaultConfig()

	flags.String("config", "", "path to a contentweaver.yaml config file")

	flags.String("log-format", def.Log.Format, "log output format: text or json")
	mustBindPFlag(v, "log.format", flags.Lookup("log-format"))
	mustBindEnv(v, "log.format", "CONTENTWEAVER_LOG_FORMAT")

	flags.String("log-level", def.Log.Level, "log level: none, debug, info, warn or error")
	mustBindPFlag(v, "log.level", flags.Lookup("log-level"))
	mustBindEnv(v, "log.level", "CONTENTWEAVER_LOG_LEVEL")

	flags.String("cache-backend", string(def.Cache.Backend), "document cache: none, memory, file or redis")
	mustBindPFlag(v, "cache.backend", flags.Lookup("cache-backend"))
	mustBindEnv(v, "cache.backend", "CONTENTWEAVER_CACHE_BACKEND")

	flags.String("cache-dir", def.Cache.Dir, "directory of the file cache backend")
	mustBindPFlag(v, "cache.dir", flags.Lookup("cache-dir"))
	mustBindEnv(v, "cache.dir", "CONTENTWEAVER_CACHE_DIR")

	flags.String("cache-redis-addr", def.Cache.Redis.Addr, "host:port of the redis cache backend")
	mustBindPFlag(v, "cache.redis.addr", flags.Lookup("cache-redis-addr"))
	mustBindEnv(v, "cache.redis.addr", "CONTENTWEAVER_CACHE_REDIS_ADDR")

	flags.String("cache-redis-password", def.Cache.Redis.Password, "password of the redis cache backend")
	mustBindPFlag(v, "cache.redis.password", flags.Lookup("cache-redis-password"))
	mustBindEnv(v, "cache.redis.password", "CONTENTWEAVER_CACHE_REDIS_PASSWORD")

	flags.Int("cache-redis-db", def.Cache.Redis.DB, "database number of the redis cache backend")
	mustBindPFlag(v, "cache.redis.db", flags.Lookup("cache-redis-db"))
	mustBindEnv(v, "cache.redis.db", "CONTENTWEAVER_CACHE_REDIS_DB")

	flags.String("cache-redis-prefix", def.Cache.Redis.Prefix, "key prefix of the redis cache backend")
	mustBindPFlag(v, "cache.redis.prefix", flags.Lookup("cache-redis-prefix"))
	mustBindEnv(v, "cache.redis.prefix", "CONTENTWEAVER_CACHE_REDIS_PREFIX")

	flags.Duration("cache-redis-ttl", def.Cache.Redis.TTL, "expiry of redis cache entries; 0 keeps them")
	mustBindPFlag(v, "cache.redis.ttl", flags.Lookup("cache-redis-ttl"))
	mustBindEnv(v, "cache.redis.ttl", "CONTENTWEAVER_CACHE_REDIS_TTL")

	flags.String("trace-path", def.Trace.Path, "write the canonical execution trace to this file")
	mustBindPFlag(v, "trace.path", flags.Lookup("trace-path"))
	mustBindEnv(v, "trace.path", "CONTENTWEAVER_TRACE_PATH")

	flags.String("state-dir", def.State.Dir, "directory for run records; empty disables them")
	mustBindPFlag(v, "state.dir", flags.Lookup("state-dir"))
	mustBindEnv(v, "state.dir", "CONTENTWEAVER_STATE_DIR")

	flags.Int("max-concurrency", def.Engine.MaxConcurrency, "maximum pipelines running at once; 0 is unbounded")
	mustBindPFlag(v, "engine.max-concurrency", flags.Lookup("max-concurrency"))
	mustBindEnv(v, "engine.max-concurrency", "CONTENTWEAVER_ENGINE_MAX_CONCURRENCY", "CONTENTWEAVER_MAX_CONCURRENCY")

	flags.String("metrics-addr", def.Metrics.Addr, "host:port to serve prometheus metrics on")
	mustBindPFlag(v, "metrics.addr", flags.Lookup("metrics-addr"))
	mustBindEnv(v, "metrics.addr", "CONTENTWEAVER_METRICS_ADDR")
}

// ApplyConfigFile points v at an explicit config file when --config is set.
func ApplyConfigFile(v *viper.Viper, flags *pflag.FlagSet) error {
	path, err := flags.GetString("config")
	if err != nil {
		return err
	}
	if path != "" {
		v.SetConfigFile(path)
	}
	return nil
}

func mustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func mustBindEnv(v *viper.Viper, input ...string) {
	if err := v.BindEnv(input...); err != nil {
		panic("failed to bind env key: " + err.Error())
	}
}
