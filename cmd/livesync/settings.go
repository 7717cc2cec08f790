package main

import (
	"strings"
	"time"
)

type Settings struct {
	Port        int    `env:"PORT,default=8000"`
	BasePath    string `env:"BASE_PATH,default=/livesync"`
	LogEncoding string `env:"LOG_ENCODING,default=console"`
	LogLevel    string `env:"LOG_LEVEL,default=debug"`

	MongoDBURI      string `env:"MONGODB_URI,required=true"`
	MongoDBDatabase string `env:"MONGODB_DATABASE,default=office"`

	// Comma separated. Empty admits every origin.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	RefreshInterval      time.Duration `env:"REFRESH_INTERVAL,default=30s"`
	MinCommitInterval    time.Duration `env:"MIN_COMMIT_INTERVAL,default=500ms"`
	MinReloadInterval    time.Duration `env:"RELOAD_MIN_INTERVAL,default=5s"`
	ConnectivityInterval time.Duration `env:"CONNECTIVITY_INTERVAL,default=10s"`
	ReconnectCooldown    time.Duration `env:"RECONNECT_COOLDOWN,default=30s"`
}

func (s Settings) Origins() []string {
	if s.AllowedOrigins == "" {
		return nil
	}

	return strings.Split(s.AllowedOrigins, ",")
}
