package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/hiresify/internal/flagx"
	"github.com/dmitrijs2005/hiresify/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "15m" and integer nanoseconds. Pointer fields tell
// "absent" apart from an explicit zero.
type JsonConfig struct {
	EndpointAddrHTTP            string          `json:"endpoint_addr_http"`
	DatabaseDSN                 string          `json:"database_dsn"`
	RedisURL                    string          `json:"redis_url"`
	CachePrefix                 string          `json:"cache_prefix"`
	SecretKey                   string          `json:"secret_key"`
	TokenIssuer                 string          `json:"token_issuer"`
	TokenAudience               string          `json:"token_audience"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDays    *int            `json:"refresh_token_validity_days"`
	SessionValidityDuration     *timex.Duration `json:"session_validity_duration"`
	CodeValidityDuration        *timex.Duration `json:"code_validity_duration"`
	StoreTimeout                *timex.Duration `json:"store_timeout"`
	RefreshRetentionDays        *int            `json:"refresh_retention_days"`
	PurgeInterval               *timex.Duration `json:"purge_interval"`
	LoginRatePerSecond          *float64        `json:"login_rate_per_second"`
	LoginRateBurst              *int            `json:"login_rate_burst"`
	Production                  *bool           `json:"production"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flag into config. Keys missing from the file keep their current
// value. If the file cannot be read or contains invalid JSON, the function
// panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.CachePrefix, c.CachePrefix)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.TokenIssuer, c.TokenIssuer)
	setString(&config.TokenAudience, c.TokenAudience)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDays != nil {
		config.RefreshTokenValidityDays = *c.RefreshTokenValidityDays
	}
	if c.SessionValidityDuration != nil {
		config.SessionValidityDuration = c.SessionValidityDuration.Duration
	}
	if c.CodeValidityDuration != nil {
		config.CodeValidityDuration = c.CodeValidityDuration.Duration
	}
	if c.StoreTimeout != nil {
		config.StoreTimeout = c.StoreTimeout.Duration
	}
	if c.RefreshRetentionDays != nil {
		config.RefreshRetentionDays = *c.RefreshRetentionDays
	}
	if c.PurgeInterval != nil {
		config.PurgeInterval = c.PurgeInterval.Duration
	}
	if c.LoginRatePerSecond != nil {
		config.LoginRatePerSecond = *c.LoginRatePerSecond
	}
	if c.LoginRateBurst != nil {
		config.LoginRateBurst = *c.LoginRateBurst
	}
	if c.Production != nil {
		config.Production = *c.Production
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
