package config

import (
	"encoding/json"
	"os"

	"github.com/pmfstudio/reportgate/internal/flagx"
	"github.com/pmfstudio/reportgate/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// "90m", "30d" or integer nanoseconds. Fields left out of the file keep
// their current values.
type JsonConfig struct {
	EndpointAddrGRPC   string         `json:"endpoint_addr_grpc"`
	LogLevel           string         `json:"log_level"`
	StoreBackend       string         `json:"store_backend"`
	TokensDBPath       string         `json:"tokens_db_path"`
	SQLitePath         string         `json:"sqlite_path"`
	DatabaseDSN        string         `json:"database_dsn"`
	S3RootUser         string         `json:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
	S3TokensKey        string         `json:"s3_tokens_key"`
	S3ReportsPrefix    string         `json:"s3_reports_prefix"`
	Permissions        []string       `json:"permissions"`
	DefaultValidity    timex.Duration `json:"default_validity"`
	ReportLinkValidity timex.Duration `json:"report_link_validity"`
	WeightsPath        string         `json:"weights_path"`
	PublicURL          string         `json:"public_url"`
}

// parseJson loads the file named by -c / -config, if any, into config.
// An unreadable or invalid file panics: the process must not start on a
// config it did not understand.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.StoreBackend, c.StoreBackend)
	setString(&config.TokensDBPath, c.TokensDBPath)
	setString(&config.SQLitePath, c.SQLitePath)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3TokensKey, c.S3TokensKey)
	setString(&config.S3ReportsPrefix, c.S3ReportsPrefix)
	setString(&config.WeightsPath, c.WeightsPath)
	setString(&config.PublicURL, c.PublicURL)

	if len(c.Permissions) > 0 {
		config.Permissions = c.Permissions
	}
	if c.DefaultValidity.Duration > 0 {
		config.DefaultValidity = c.DefaultValidity.Duration
	}
	if c.ReportLinkValidity.Duration > 0 {
		config.ReportLinkValidity = c.ReportLinkValidity.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
