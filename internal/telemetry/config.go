package telemetry

// Config describes the OTLP trace pipeline.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector address, host:port.
	Endpoint string

	// Insecure dials the collector without TLS.
	Insecure bool

	// SampleRate is the fraction of root spans kept, in [0, 1].
	SampleRate float64
}

// DefaultConfig traces nothing until enabled and then samples every request
// to a local collector.
func DefaultConfig() Config {
	return Config{
		ServiceName:    defaultServiceName,
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
