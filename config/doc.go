// Package config loads service configuration with viper.
//
// LoadConfig reads config.yml, overlays the environment (optionally seeded
// from a .env file through godotenv) and decodes into the caller's struct via
// mapstructure tags. Durations accept Go duration strings, comma-separated
// strings decode into slices, and types implementing encoding.TextUnmarshaler
// (such as discovery endpoints written as "host:port") decode from text.
package config
