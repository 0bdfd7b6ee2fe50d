package config

import "os"

// parseEnv picks up secrets that should not live in a config file or on the
// command line.
func parseEnv(cfg *Config) {
	for name, dst := range map[string]*string{
		"STORYLINE_ACCESS_TOKEN":  &cfg.AccessToken,
		"STORYLINE_ANON_KEY":      &cfg.AnonKey,
		"STORYLINE_JWT_SECRET":    &cfg.JWTSecret,
		"STORYLINE_PG_DSN":        &cfg.PostgresDSN,
		"STORYLINE_S3_ACCESS_KEY": &cfg.S3AccessKey,
		"STORYLINE_S3_SECRET_KEY": &cfg.S3SecretKey,
	} {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
}
