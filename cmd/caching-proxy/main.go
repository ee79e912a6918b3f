package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Pokulord/CachedProxy/internal/config"
	"github.com/Pokulord/CachedProxy/internal/server"
	"github.com/Pokulord/CachedProxy/pkg/cache"
	"github.com/Pokulord/CachedProxy/pkg/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "path to yaml configuration file")
		listen     = flag.String("port", "", "listen address, e.g. localhost:3128")
		origin     = flag.String("origin", "", "origin server URL, e.g. http://dummyjson.com")
		redisAddr  = flag.String("redis", "", "redis address, e.g. localhost:6379")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error")
		clearCache = flag.Bool("clear-cache", false, "clear the cache and exit")
	)
	flag.Parse()

	conf, err := config.Parse(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	// flags beat both the file and the environment
	if *listen != "" {
		conf.Listen = *listen
	}
	if *origin != "" {
		conf.Origin = *origin
	}
	if *redisAddr != "" {
		conf.Redis.Addr = *redisAddr
	}
	if *logLevel != "" {
		conf.Log.Level = *logLevel
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(conf.Log.Level),
		Pretty: conf.Log.Format == "console",
		Output: os.Stderr,
	})

	redisClient := redis.NewClient(&redis.Options{
		Addr: conf.Redis.Addr,
		DB:   conf.Redis.DB,
	})
	defer redisClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error().Err(err).Str("addr", conf.Redis.Addr).Msg("Failed to connect to Redis")
		return 1
	}
	logger.Info().Str("addr", conf.Redis.Addr).Msg("Connected to Redis")

	store := cache.NewRedisStore(redisClient, logger)

	if *clearCache {
		return runClearCache(ctx, store, logger)
	}

	if err := conf.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	originURL, err := conf.OriginURL()
	if err != nil {
		logger.Error().Err(err).Msg("Invalid origin URL")
		return 1
	}

	logger.Info().
		Str("listen", conf.Listen).
		Str("origin", conf.Origin).
		Int("default_ttl_seconds", conf.Cache.DefaultTTLSeconds).
		Msg("Starting caching proxy")

	if err := server.New(conf, originURL, store, &logger).ListenAndServe(); err != nil {
		logger.Error().Err(err).Msg("Server exited with error")
		return 1
	}
	return 0
}

func runClearCache(ctx context.Context, store cache.Store, logger zerolog.Logger) int {
	deleted, err := store.Clear(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to clear cache")
		return 1
	}

	fmt.Printf("Cache cleared: %d entries removed\n", deleted)
	return 0
}
