package sequencer

// Config contains the configurable items for this package.
type Config struct {
	// SandboxMode enables the Reset and GetState requests. Never enable it
	// on a production deployment.
	SandboxMode bool `toml:"sandbox_mode"`
}

// NewDefaultConfig creates an instance of the package-specific configuration.
func NewDefaultConfig() Config {
	return Config{
		SandboxMode: false,
	}
}
