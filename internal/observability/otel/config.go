// Package otel wires optional OpenTelemetry tracing for khcheck runs.
// Tracing stays off unless --otel is given.
package otel

import "fmt"

const (
	ProtocolHTTP = "otlphttp"
	ProtocolGRPC = "otlpgrpc"
)

// Config comes from the otel.* settings
type Config struct {
	Enabled bool
	// "http://localhost:4318" for otlphttp, "localhost:4317" for otlpgrpc
	Endpoint    string
	Protocol    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

func DefaultConfig() Config {
	return Config{Protocol: ProtocolHTTP, ServiceName: "khcheck", SampleRatio: 1}
}

// Validate ignores disabled configs
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Protocol != ProtocolHTTP && c.Protocol != ProtocolGRPC {
		return fmt.Errorf("otel: protocol must be %q or %q, got %q", ProtocolHTTP, ProtocolGRPC, c.Protocol)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("otel: sample-ratio must be between 0 and 1, got %g", c.SampleRatio)
	}
	return nil
}
