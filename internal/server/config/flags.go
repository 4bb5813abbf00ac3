package config

import (
	"flag"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/trzyszczcms/authcore/internal/flagx"
)

// parseFlags overlays command-line flags onto config.
//
//	-a string   HTTP bind address
//	-g string   gRPC bind address
//	-d string   PostgreSQL DSN
//	-l int      long-term ("remember me") token validity, days
//	-s int      short-term token validity, hours
//	-p int      argon2 parallelism for new password hashes
//	-i int      argon2 iterations for new password hashes
//	-m int      argon2 memory cost for new password hashes, KiB
//	-v string   log level
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-d", "-l", "-s", "-p", "-i", "-m", "-v"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	longTermDays := fs.Int("l", int(config.LongTermTokenValidity/(24*time.Hour)), "long-term token validity (in days)")
	shortTermHours := fs.Int("s", int(config.ShortTermTokenValidity/time.Hour), "short-term token validity (in hours)")
	parallelism := fs.Uint("p", uint(config.Argon2Parallelism), "argon2 parallelism")
	iterations := fs.Uint("i", uint(config.Argon2Iterations), "argon2 iterations")
	memory := fs.Uint("m", uint(config.Argon2MemoryKiB), "argon2 memory cost (KiB)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if *parallelism > math.MaxUint8 || *iterations > math.MaxUint32 || *memory > math.MaxUint32 {
		return fmt.Errorf("argon2 parameter out of range")
	}

	// Only override durations that were given explicitly; the defaults are
	// not guaranteed to be whole days or hours.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "l":
			config.LongTermTokenValidity = time.Duration(*longTermDays) * 24 * time.Hour
		case "s":
			config.ShortTermTokenValidity = time.Duration(*shortTermHours) * time.Hour
		case "p":
			config.Argon2Parallelism = uint8(*parallelism)
		case "i":
			config.Argon2Iterations = uint32(*iterations)
		case "m":
			config.Argon2MemoryKiB = uint32(*memory)
		}
	})
	return nil
}
