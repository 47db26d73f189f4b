package dispatch

import "log/slog"

// DefaultBuildLogLimit is the number of compiler log bytes kept on a build
// failure when WithBuildLogLimit is not given.
const DefaultBuildLogLimit = 2048

// Geometry selects how the global work size is derived from the input
// length.
type Geometry int

const (
	// GeometryPad rounds the global size up to a multiple of the work-group
	// size. Buffers are allocated at the padded size with zeroed padding,
	// and only the first N results are returned.
	GeometryPad Geometry = iota

	// GeometryExact launches exactly N work-items with the queried
	// work-group size. Runtimes that require the global size to be a
	// multiple of the local size reject other inputs with an EnqueueFailure.
	GeometryExact
)

func (g Geometry) String() string {
	switch g {
	case GeometryPad:
		return "pad"
	case GeometryExact:
		return "exact"
	default:
		return "unknown"
	}
}

// Fallback selects what happens when the work-group size query fails.
type Fallback int

const (
	// FallbackDeviceDefault logs the failure and launches with a local size
	// of zero, leaving the grouping to the runtime.
	FallbackDeviceDefault Fallback = iota

	// FallbackFail aborts the run with KindWorkGroupQueryFailure.
	FallbackFail
)

func (f Fallback) String() string {
	switch f {
	case FallbackDeviceDefault:
		return "device-default"
	case FallbackFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Option configures a Pipeline during creation.
//
// Example:
//
//	p, err := dispatch.New(rt, k,
//	    dispatch.WithGeometry(dispatch.GeometryExact),
//	    dispatch.WithBuildLogLimit(4096))
type Option func(*options)

// options holds optional configuration for Pipeline creation.
type options struct {
	geometry      Geometry
	fallback      Fallback
	buildLogLimit int
	stateHook     func(State)
	logger        *slog.Logger
}

// defaultOptions returns the default pipeline options.
func defaultOptions() options {
	return options{
		geometry:      GeometryPad,
		fallback:      FallbackDeviceDefault,
		buildLogLimit: DefaultBuildLogLimit,
	}
}

// WithGeometry sets the geometry policy. The default is GeometryPad.
func WithGeometry(g Geometry) Option {
	return func(o *options) {
		o.geometry = g
	}
}

// WithWorkGroupFallback sets the policy for a failed work-group size query.
// The default is FallbackDeviceDefault.
func WithWorkGroupFallback(f Fallback) Option {
	return func(o *options) {
		o.fallback = f
	}
}

// WithBuildLogLimit bounds the compiler log captured on a build failure.
// Values below one keep the default.
func WithBuildLogLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buildLogLimit = n
		}
	}
}

// WithStateHook registers fn to be called on every state transition of a
// run, including the final Completed or Aborted.
func WithStateHook(fn func(State)) Option {
	return func(o *options) {
		o.stateHook = fn
	}
}

// WithLogger sets a logger for this pipeline instead of the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
