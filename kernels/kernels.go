// Package kernels embeds the builtin kernel sources.
//
// sample.wgsl serves the cpu and wgpu backends, sample.cl the opencl backend.
// Both export the same entry points with the same two-buffer signature
// (input at slot 0, output at slot 1):
//
//	sample     out[i] = in[i] * in[i]
//	increment  out[i] = in[i] + 1
package kernels

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

// Entry point names exported by the builtin sources.
const (
	EntrySample    = "sample"
	EntryIncrement = "increment"
)

//go:embed sample.wgsl
var SampleWGSL string

//go:embed sample.cl
var SampleCL string

//go:embed *.wgsl *.cl
var files embed.FS

// Read returns the builtin source stored under name.
func Read(name string) (string, error) {
	b, err := fs.ReadFile(files, name)
	if err != nil {
		return "", fmt.Errorf("kernels: builtin %q: %w", name, err)
	}
	return string(b), nil
}

// Names returns the names of all builtin sources.
func Names() []string {
	entries, _ := fs.ReadDir(files, ".")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// ForBackend returns the builtin source written in the kernel language of
// the named backend.
func ForBackend(backend string) (string, error) {
	switch backend {
	case "opencl":
		return SampleCL, nil
	case "cpu", "wgpu":
		return SampleWGSL, nil
	default:
		return "", fmt.Errorf("kernels: no builtin source for backend %q", backend)
	}
}
