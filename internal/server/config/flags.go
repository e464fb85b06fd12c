package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/hiresify/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-r string   Redis URL
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-f int      refresh token validity, days
//	-e int      CSRF/user session validity, seconds
//	-k int      refresh token retention before purge, days
//	-prod       production mode
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-r", "-s", "-t", "-f", "-e", "-k"}, "-prod")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	fs.IntVar(&config.RefreshTokenValidityDays, "f", config.RefreshTokenValidityDays, "refresh token validity (in days)")
	sessionValidity := fs.Int("e", int(config.SessionValidityDuration.Seconds()), "session validity (in seconds)")
	fs.IntVar(&config.RefreshRetentionDays, "k", config.RefreshRetentionDays, "refresh token retention (in days)")
	fs.BoolVar(&config.Production, "prod", config.Production, "production mode")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
	config.SessionValidityDuration = time.Duration(*sessionValidity) * time.Second
}
