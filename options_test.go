package dispatch

import (
	"log/slog"
	"testing"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.geometry != GeometryPad {
		t.Errorf("geometry = %v, want pad", o.geometry)
	}
	if o.fallback != FallbackDeviceDefault {
		t.Errorf("fallback = %v, want device-default", o.fallback)
	}
	if o.buildLogLimit != DefaultBuildLogLimit {
		t.Errorf("buildLogLimit = %d, want %d", o.buildLogLimit, DefaultBuildLogLimit)
	}
	if o.logger != nil || o.stateHook != nil {
		t.Error("logger and state hook should be unset")
	}
}

func TestOptions(t *testing.T) {
	l := slog.Default()
	called := false
	o := defaultOptions()
	for _, opt := range []Option{
		WithGeometry(GeometryExact),
		WithWorkGroupFallback(FallbackFail),
		WithBuildLogLimit(64),
		WithLogger(l),
		WithStateHook(func(State) { called = true }),
	} {
		opt(&o)
	}
	if o.geometry != GeometryExact || o.fallback != FallbackFail || o.buildLogLimit != 64 || o.logger != l {
		t.Errorf("options not applied: %+v", o)
	}
	o.stateHook(StateInit)
	if !called {
		t.Error("state hook not installed")
	}
}

func TestWithBuildLogLimitIgnoresNonPositive(t *testing.T) {
	o := defaultOptions()
	WithBuildLogLimit(0)(&o)
	WithBuildLogLimit(-5)(&o)
	if o.buildLogLimit != DefaultBuildLogLimit {
		t.Errorf("buildLogLimit = %d, want default", o.buildLogLimit)
	}
}

func TestPolicyStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{GeometryPad.String(), "pad"},
		{GeometryExact.String(), "exact"},
		{Geometry(9).String(), "unknown"},
		{FallbackDeviceDefault.String(), "device-default"},
		{FallbackFail.String(), "fail"},
		{Fallback(9).String(), "unknown"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
