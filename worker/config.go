// Package worker wires together one worker's routing.Runtime and the
// backends it declares, plus the ambient concerns (config, logging,
// metrics) that sit around the proxy core but are outside its scope per
// §1 ("statistics, logging,... config file parsing").
//
// Config loading is grounded on the retrieved sibling proxy's
// config/config.go: an .ini file via gopkg.in/ini.v1, with a `[proxy]`
// section and environment-variable overrides for the listen address.
package worker

import (
	"os"
	"time"

	"gopkg.in/ini.v1"
)

// Config is one worker's startup configuration.
type Config struct {
	Listen         string
	RoutingScript  string
	BackendTimeout time.Duration
	LogLevel       string
}

// LoadConfig reads an .ini file shaped like:
//
//	[proxy]
//	listen = :11311
//	backend_timeout = 5s
//	log_level = info
//
//	[routing]
//	script = /etc/mcproxy/routes.js
func LoadConfig(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	proxy := f.Section("proxy")
	routing := f.Section("routing")

	cfg := &Config{
		Listen:         proxy.Key("listen").MustString(":11311"),
		RoutingScript:  routing.Key("script").MustString(""),
		BackendTimeout: proxy.Key("backend_timeout").MustDuration(5 * time.Second),
		LogLevel:       proxy.Key("log_level").MustString("info"),
	}

	if v := os.Getenv("MCPROXY_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("MCPROXY_ROUTING_SCRIPT"); v != "" {
		cfg.RoutingScript = v
	}

	return cfg, nil
}
