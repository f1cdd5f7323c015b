package gateway

// Config contains the configurable items for this package.
type Config struct {
	// Brokers is the kafka bootstrap broker list.
	Brokers []string `toml:"brokers"`
	// RequestTopic is consumed from partition 0 only; the sequencer depends
	// on a single totally-ordered input stream.
	RequestTopic  string `toml:"request_topic"`
	ResponseTopic string `toml:"response_topic"`
	// CheckpointInterval is the number of requests between checkpoints.
	CheckpointInterval uint64 `toml:"checkpoint_interval"`
}

// NewDefaultConfig creates an instance of the package-specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Brokers:            []string{"localhost:9092"},
		RequestTopic:       "sequencer-requests",
		ResponseTopic:      "sequencer-responses",
		CheckpointInterval: 1000,
	}
}
