package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/llm-privacy/anonymisation-api/lib"
	"github.com/llm-privacy/anonymisation-api/lib/anonymiser"
	"github.com/llm-privacy/anonymisation-api/lib/cache"
	"github.com/llm-privacy/anonymisation-api/lib/cache/local"
	"github.com/llm-privacy/anonymisation-api/lib/cache/remote"
	"github.com/llm-privacy/anonymisation-api/lib/match"
	"github.com/llm-privacy/anonymisation-api/lib/profile"
	"github.com/llm-privacy/anonymisation-api/lib/recogniser"
	http_recogniser "github.com/llm-privacy/anonymisation-api/lib/recogniser/http-recogniser"
	"github.com/llm-privacy/anonymisation-api/lib/session"
)

// config structure
type anonymisationAPIConfig struct {
	LogLevel string `mapstructure:"log_level"`
	Server   struct {
		HttpPort int `mapstructure:"http_port"`
	}
	Recogniser struct {
		Url            string
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
		CacheType      string `mapstructure:"cache_type"` // none, local or redis
		CacheSize      int    `mapstructure:"cache_size"`
		Redis          struct {
			Host       string
			Port       int
			TtlSeconds int `mapstructure:"ttl_seconds"`
		}
	}
	Store struct {
		MaxSessions          int `mapstructure:"max_sessions"`
		TtlSeconds           int `mapstructure:"ttl_seconds"`
		SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
	}
	Matcher struct {
		MinEntityLength int `mapstructure:"min_entity_length"`
		MaxPhraseWords  int `mapstructure:"max_phrase_words"`
	}
	Engine struct {
		MaxDepth        int    `mapstructure:"max_depth"`
		MinLeafLength   int    `mapstructure:"min_leaf_length"`
		DefaultLanguage string `mapstructure:"default_language"`
	}
	Profiles struct {
		Path    string
		Default string
		Strict  bool
	}
}

var config anonymisationAPIConfig

func initConfig() {
	// Set default config values
	err := lib.InitializeConfig("./config/anonymisation-api.yml", map[string]interface{}{
		"log_level": "info",
		"server": map[string]interface{}{
			"http_port": 8080,
		},
		"recogniser": map[string]interface{}{
			"url":             "http://localhost:5002/analyze",
			"timeout_seconds": 5,
			"cache_type":      "local",
			"cache_size":      10000,
		},
		"store": map[string]interface{}{
			"max_sessions":           1000,
			"ttl_seconds":            3600,
			"sweep_interval_seconds": 60,
		},
		"matcher": map[string]interface{}{
			"min_entity_length": 4,
			"max_phrase_words":  3,
		},
		"engine": map[string]interface{}{
			"max_depth":        64,
			"min_leaf_length":  5,
			"default_language": "en",
		},
		"profiles": map[string]interface{}{
			"path":    "./config/profiles.yml",
			"default": "default",
			"strict":  false,
		},
	}, &config)
	if err != nil {
		panic(err)
	}
}

func main() {
	initConfig()

	profiles, err := profile.Load(config.Profiles.Path)
	if err != nil {
		log.Warn().Err(err).Msg("falling back to built-in profiles")
		profiles = profile.Defaults()
	}
	resolver, err := profile.NewResolver(profiles, config.Profiles.Default, config.Profiles.Strict)
	if err != nil {
		log.Fatal().Err(err).Send()
	}

	store := session.New(config.Store.MaxSessions, time.Duration(config.Store.TtlSeconds)*time.Second)
	if config.Store.SweepIntervalSeconds > 0 {
		store.StartSweeper(context.Background(), time.Duration(config.Store.SweepIntervalSeconds)*time.Second)
	}

	detector := newRecogniser()

	matcher := match.New(match.Config{
		MinEntityLength: config.Matcher.MinEntityLength,
		MaxPhraseWords:  config.Matcher.MaxPhraseWords,
	})

	engine := anonymiser.New(store, resolver, matcher, detector, anonymiser.Config{
		MaxDepth:        config.Engine.MaxDepth,
		MinLeafLength:   config.Engine.MinLeafLength,
		DefaultLanguage: config.Engine.DefaultLanguage,
	})

	r := gin.New()
	r.Use(gin.LoggerWithFormatter(lib.JsonLogFormatter), gin.Recovery(), cors.Default())

	s := server{controller: &controller{engine: engine}}
	s.RegisterRoutes(r)

	go lib.HandleInterrupt()

	if err := r.Run(fmt.Sprintf(":%d", config.Server.HttpPort)); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func newRecogniser() recogniser.Client {
	detector := http_recogniser.NewPresidioClient(http_recogniser.PresidioConfig{
		Url:     config.Recogniser.Url,
		Timeout: time.Duration(config.Recogniser.TimeoutSeconds) * time.Second,
	})

	var detectionCache cache.Client
	switch config.Recogniser.CacheType {
	case "redis":
		detectionCache = remote.NewRedisClient(remote.RedisConfig{
			Host: config.Recogniser.Redis.Host,
			Port: config.Recogniser.Redis.Port,
			TTL:  time.Duration(config.Recogniser.Redis.TtlSeconds) * time.Second,
		})
	case "local":
		detectionCache = local.New(config.Recogniser.CacheSize)
	default:
		return detector
	}

	return recogniser.NewCachedClient(detector, detectionCache)
}
