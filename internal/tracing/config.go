package tracing

// TracingConfig holds configuration for OpenTelemetry tracing
type TracingConfig struct {
	// Enabled enables/disables tracing
	Enabled bool

	// ServiceName is the service name for traces
	ServiceName string

	// ServiceVersion is the service version
	ServiceVersion string

	// Endpoint is the OTLP endpoint URL
	Endpoint string

	// Insecure disables TLS for the exporter connection
	Insecure bool

	// Headers contains additional headers for OTLP export
	Headers map[string]string

	// ExporterType specifies the exporter type: "grpc" or "http"
	ExporterType string

	// Engine and Namespace identify the traced store in the resource
	Engine    string
	Namespace string

	// SampleRatio is the fraction of root spans recorded, in [0, 1].
	// Values above 1 are capped; zero or below records everything.
	SampleRatio float64
}

// DefaultTracingConfig returns a default tracing configuration
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:        false,
		ServiceName:    "localstorage-slim",
		ServiceVersion: "0.1.0",
		Endpoint:       "",
		Insecure:       false,
		Headers:        make(map[string]string),
		ExporterType:   "grpc",
		SampleRatio:    1.0,
	}
}
