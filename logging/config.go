package logging

// Config contains the configurable items for this package.
type Config struct {
	Environment string `toml:"environment"`
	Level       string `toml:"level"`
}

// NewDefaultConfig creates an instance of the package-specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Environment: "dev",
		Level:       "info",
	}
}
