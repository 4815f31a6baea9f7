package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
)

// serverConfig is the optional JSON server configuration file.
type serverConfig struct {
	Hostname          string `json:"hostname"`
	Port              int    `json:"port"`
	MintURL           string `json:"mintUrl"`
	ZupassURL         string `json:"zupassUrl"`
	DefaultPrivateKey string `json:"defaultPrivateKey"`
}

func loadServerConfig(path string) (*serverConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}

	var cfg serverConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid server config %s: %w", path, err)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d in server config", cfg.Port)
	}
	return &cfg, nil
}

// listenAddr returns the configured host:port, or "" when the file sets neither.
func (c *serverConfig) listenAddr() string {
	if c.Hostname == "" && c.Port == 0 {
		return ""
	}
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
}

// settings are the resolved values the server is started with.
type settings struct {
	ListenAddr string
	MintURL    string
	ZupassURL  string
	SignerKey  string
}

// resolveSettings merges explicit flags, the config file and flag defaults,
// in that order of precedence. isSet reports whether a flag was given
// explicitly.
func resolveSettings(flagValues settings, isSet func(name string) bool, file *serverConfig) (settings, error) {
	out := flagValues
	if file != nil {
		pick := func(flag string, current *string, fromFile string) {
			if !isSet(flag) && fromFile != "" {
				*current = fromFile
			}
		}
		pick("listen-addr", &out.ListenAddr, file.listenAddr())
		pick("mint-url", &out.MintURL, file.MintURL)
		pick("zupass-url", &out.ZupassURL, file.ZupassURL)
		pick("signer-key", &out.SignerKey, file.DefaultPrivateKey)
	}

	if out.MintURL == "" {
		return out, errors.New("mint URL is required")
	}
	return out, nil
}
