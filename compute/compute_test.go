package compute

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		name   string
		desc   string
	}{
		{StatusSuccess, "CL_SUCCESS", "succeeded"},
		{StatusBuildProgramFailure, "CL_BUILD_PROGRAM_FAILURE", "build program failure"},
		{StatusInvalidWorkGroupSize, "CL_INVALID_WORK_GROUP_SIZE", "invalid work group size"},
		{StatusPlatformNotFound, "CL_PLATFORM_NOT_FOUND_KHR", "no platform is available"},
		{Status(-424242), "CL_UNKNOWN_ERROR(-424242)", "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.name {
			t.Errorf("Status(%d).String() = %q, want %q", int32(tt.status), got, tt.name)
		}
		if got := tt.status.Description(); got != tt.desc {
			t.Errorf("Status(%d).Description() = %q, want %q", int32(tt.status), got, tt.desc)
		}
	}
}

func TestStatusKnown(t *testing.T) {
	if !StatusInvalidKernelArgs.Known() {
		t.Error("StatusInvalidKernelArgs should be known")
	}
	if StatusUnknown.Known() {
		t.Error("StatusUnknown should not be known")
	}
	for code := StatusInvalidValue; code >= StatusInvalidGlobalWorkSize; code-- {
		if !code.Known() {
			t.Errorf("Status(%d) missing from the status table", int32(code))
		}
	}
}

func TestStatusError(t *testing.T) {
	err := Errorf(OpCreateKernel, StatusInvalidKernelName)
	if got := err.Error(); got != "compute: create kernel: CL_INVALID_KERNEL_NAME (-46)" {
		t.Errorf("Error() = %q", got)
	}
	if StatusOf(err) != StatusInvalidKernelName {
		t.Errorf("StatusOf = %v", StatusOf(err))
	}

	wrapped := Wrap(OpBuildProgram, StatusBuildProgramFailure, io.ErrUnexpectedEOF)
	if !errors.Is(wrapped, io.ErrUnexpectedEOF) {
		t.Error("Wrap lost the cause")
	}
	if !strings.HasSuffix(wrapped.Error(), ": unexpected EOF") {
		t.Errorf("Error() = %q", wrapped.Error())
	}
}

func TestStatusOf(t *testing.T) {
	if StatusOf(nil) != StatusSuccess {
		t.Error("StatusOf(nil) should be success")
	}
	if StatusOf(io.EOF) != StatusUnknown {
		t.Error("StatusOf(plain error) should be unknown")
	}
	outer := errors.Join(io.EOF, Errorf(OpFinish, StatusOutOfResources))
	if StatusOf(outer) != StatusOutOfResources {
		t.Errorf("StatusOf(joined) = %v", StatusOf(outer))
	}
}

func TestMemFlagsHas(t *testing.T) {
	f := MemReadOnly | MemCopyHostPtr
	if !f.Has(MemCopyHostPtr) || !f.Has(MemReadOnly) {
		t.Error("Has missed a set flag")
	}
	if f.Has(MemWriteOnly) {
		t.Error("Has reported an unset flag")
	}
}

func TestDeviceTypeString(t *testing.T) {
	if DeviceTypeGPU.String() != "GPU" || DeviceTypeAll.String() != "All" {
		t.Errorf("got %q, %q", DeviceTypeGPU, DeviceTypeAll)
	}
	if (DeviceTypeCPU | DeviceTypeGPU).String() != "Unknown" {
		t.Errorf("combined type = %q", DeviceTypeCPU|DeviceTypeGPU)
	}
}

type nullRuntime struct{}

func (nullRuntime) Name() string                   { return "null" }
func (nullRuntime) Platforms() ([]Platform, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	Register("null-test", func() (Runtime, error) { return nullRuntime{}, nil })

	rt, err := Open("null-test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if rt.Name() != "null" {
		t.Errorf("Name() = %q", rt.Name())
	}

	found := false
	for _, name := range Backends() {
		if name == "null-test" {
			found = true
		}
	}
	if !found {
		t.Errorf("Backends() = %v, missing null-test", Backends())
	}

	_, err = Open("does-not-exist")
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Open(unknown) error = %v, want ErrUnknownBackend", err)
	}
}

func TestRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Register with empty name did not panic")
		}
	}()
	Register("", func() (Runtime, error) { return nullRuntime{}, nil })
}
