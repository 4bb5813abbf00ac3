package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/trzyszczcms/authcore/internal/flagx"
	"github.com/trzyszczcms/authcore/internal/timex"
)

// jsonConfig is the on-disk shape of the config file. Durations accept
// strings such as "720h" or integer nanoseconds.
type jsonConfig struct {
	EndpointAddrHTTP       string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC       string         `json:"endpoint_addr_grpc"`
	DatabaseDSN            string         `json:"database_dsn"`
	LongTermTokenValidity  timex.Duration `json:"long_term_token_validity"`
	ShortTermTokenValidity timex.Duration `json:"short_term_token_validity"`
	Argon2Parallelism      uint8          `json:"argon2_parallelism"`
	Argon2Iterations       uint32         `json:"argon2_iterations"`
	Argon2MemoryKiB        uint32         `json:"argon2_memory_kib"`
	LogLevel               string         `json:"log_level"`
}

// parseJSON overlays the file named by -c/-config onto config. Fields left
// out of the file keep their current values.
func parseJSON(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &jsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)

	if c.LongTermTokenValidity.Duration != 0 {
		config.LongTermTokenValidity = c.LongTermTokenValidity.Duration
	}
	if c.ShortTermTokenValidity.Duration != 0 {
		config.ShortTermTokenValidity = c.ShortTermTokenValidity.Duration
	}
	if c.Argon2Parallelism != 0 {
		config.Argon2Parallelism = c.Argon2Parallelism
	}
	if c.Argon2Iterations != 0 {
		config.Argon2Iterations = c.Argon2Iterations
	}
	if c.Argon2MemoryKiB != 0 {
		config.Argon2MemoryKiB = c.Argon2MemoryKiB
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
