package journal

// Config contains the configurable items for this package.
type Config struct {
	// Path is the directory holding the checkpoint database.
	Path string `toml:"path"`
	// RetainCheckpoints is how many checkpoints to keep; older ones are
	// pruned after each write. Zero keeps everything.
	RetainCheckpoints int `toml:"retain_checkpoints"`
}

// NewDefaultConfig creates an instance of the package-specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Path:              "checkpoints",
		RetainCheckpoints: 10,
	}
}
