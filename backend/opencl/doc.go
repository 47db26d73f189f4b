// Package opencl provides a compute backend on the system OpenCL runtime.
//
// The backend is a thin cgo layer over the OpenCL 1.2 host API: every
// compute object wraps the matching cl_* handle and driver status codes are
// reported unchanged. Kernel sources are OpenCL C.
//
// The backend requires cgo, an OpenCL ICD loader and the opencl build tag:
//
//	go build -tags opencl ./...
//
// Without the tag the package is empty and the backend is not registered.
package opencl
