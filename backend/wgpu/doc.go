// Package wgpu provides a GPU compute backend using gogpu/wgpu.
//
// The backend drives the Pure Go WebGPU HAL directly. The Vulkan instance is
// exposed as a single platform and each adapter as a device. Kernel sources
// are WGSL: a program build compiles them to SPIR-V with naga and creates a
// shader module, and each kernel is a compute pipeline over a fixed bind
// group layout (read-only storage at binding 0, storage at binding 1).
//
// # Usage
//
//	import _ "github.com/gogpu/dispatch/backend/wgpu"
//
//	rt, err := compute.Open("wgpu")
//
// To run on the device of an existing gogpu window, wrap its device provider:
//
//	rt, err := wgpu.NewShared(app.GPUContextProvider())
//
// # Work-groups
//
// WGSL fixes the work-group size at compile time through @workgroup_size.
// WorkGroupSize reports that size and launches always dispatch
// ceil(global/size) groups, so kernels must bounds-check their invocation id.
// A requested local size is validated but otherwise ignored.
//
// # Build Tags
//
// The package is excluded with the nogpu build tag.
package wgpu
