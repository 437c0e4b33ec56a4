package config

import (
	"os"

	"github.com/joho/godotenv"
)

// ApplyEnv loads an optional .env file and lets environment variables override
// deployment settings. It reports whether a .env file was found.
func (c *Config) ApplyEnv(dotenvPaths ...string) bool {
	loaded := godotenv.Load(dotenvPaths...) == nil

	if v := os.Getenv("HVAUDIT_MEMGRAPH_URI"); v != "" {
		c.Memgraph.URI = v
	}
	if v := os.Getenv("HVAUDIT_MEMGRAPH_USER"); v != "" {
		c.Memgraph.User = v
	}
	if v := os.Getenv("HVAUDIT_MEMGRAPH_PASSWORD"); v != "" {
		c.Memgraph.Password = v
	}
	if v := os.Getenv("HVAUDIT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("HVAUDIT_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	} else if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	return loaded
}
