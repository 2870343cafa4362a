package telemetry

const defaultServiceVersion = "1.0.0"

// NewConfig returns the telemetry configuration of a service. An empty
// version falls back to 1.0.0.
func NewConfig(serviceName string) Config {
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: defaultServiceVersion,
	}
}

// WithOTLPEndpoint sets the OTLP endpoint for a config
func (c Config) WithOTLPEndpoint(endpoint string) Config {
	c.OTLPEndpoint = endpoint
	return c
}

// WithVersion sets the service version for a config
func (c Config) WithVersion(version string) Config {
	if version != "" {
		c.ServiceVersion = version
	}
	return c
}
