package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration from, in increasing priority: defaults, the
// YAML file at path (skipped when the file does not exist), and environment
// variables. The result is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.LoadedFrom = append(cfg.LoadedFrom, "defaults")

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		} else {
			cfg.LoadedFrom = append(cfg.LoadedFrom, path)
		}
	}

	loadEnvironment(cfg)
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad loads configuration and panics on error. For use in main only.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// loadEnvironment overlays environment variables, the highest priority
// source.
func loadEnvironment(cfg *Config) {
	setString(&cfg.Server.Host, "SERVER_HOST")
	setInt(&cfg.Server.Port, "SERVER_PORT")

	setString(&cfg.Database.TableName, "TABLE_NAME")
	setString(&cfg.Database.IndexName, "INDEX_NAME")
	setString(&cfg.Database.Region, "AWS_REGION")
	setString(&cfg.Database.Endpoint, "DYNAMODB_ENDPOINT")

	setString(&cfg.Bucket.Endpoint, "BUCKET_ENDPOINT")
	setString(&cfg.Bucket.AccessKey, "BUCKET_ACCESS_KEY")
	setString(&cfg.Bucket.SecretKey, "BUCKET_SECRET_KEY")
	setString(&cfg.Bucket.Name, "BUCKET_NAME")
	setBool(&cfg.Bucket.UseSSL, "BUCKET_USE_SSL")

	setInt(&cfg.Cache.Default, "CACHE_DEFAULT")
	setInt(&cfg.Cache.Objects, "CACHE_OBJECTS")
	setInt(&cfg.Cache.Posts, "CACHE_POSTS")
	setInt(&cfg.Cache.Sessions, "CACHE_SESSIONS")
	setInt(&cfg.Cache.Tags, "CACHE_TAGS")
	setInt(&cfg.Cache.Users, "CACHE_USERS")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setBool(&cfg.Metrics.Enabled, "ENABLE_METRICS")
}

func setString(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

func setInt(target *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*target = n
		}
	}
}

func setBool(target *bool, key string) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*target = b
		}
	}
}
