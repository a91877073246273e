package main

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/always-cache/webserver-auth/feature"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen     string           `yaml:"listen"`
	Origin     OriginConfig     `yaml:"origin"`
	Features   []string         `yaml:"features"`
	Session    SessionConfig    `yaml:"session"`
	RemoteUser RemoteUserConfig `yaml:"remoteUser"`
	Cache      CacheConfig      `yaml:"cache"`
}

type OriginConfig struct {
	URL  string `yaml:"url"`
	Host string `yaml:"host"`
}

type SessionConfig struct {
	Name         string `yaml:"name"`
	CookieDomain string `yaml:"cookieDomain"`
}

type RemoteUserConfig struct {
	// Request headers to read the remote user from, in order.
	// The default web server headers are used if empty.
	Headers     []string `yaml:"headers"`
	BasicAuth   *bool    `yaml:"basicAuth"`
	StripDomain bool     `yaml:"stripDomain"`
	StripPrefix bool     `yaml:"stripPrefix"`
	Lowercase   bool     `yaml:"lowercase"`
}

type CacheConfig struct {
	// Cache DB file name, "memory" for an in-memory db.
	DB            string        `yaml:"db"`
	DefaultMaxAge time.Duration `yaml:"defaultMaxAge"`
	UpdateTimeout time.Duration `yaml:"updateTimeout"`
}

func defaultConfig() Config {
	return Config{
		Listen:   ":8080",
		Features: []string{feature.PageCache},
		Cache: CacheConfig{
			DB:            "cache.db",
			UpdateTimeout: time.Second * 15,
		},
	}
}

// getConfig reads the config file on top of the defaults, then applies
// environment overrides. Variables in a .env file are loaded first, if it exists.
// An empty file name skips reading the config file.
func getConfig(filename string) (Config, error) {
	config := defaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config, err
	}

	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, err
		}
	}

	if origin := os.Getenv("WEBSERVER_AUTH_ORIGIN"); origin != "" {
		config.Origin.URL = origin
	}
	if listen := os.Getenv("WEBSERVER_AUTH_LISTEN"); listen != "" {
		config.Listen = listen
	}
	return config, nil
}
