package compute

import "fmt"

// Status is a compute runtime status code. Values follow the OpenCL
// numbering so that the OpenCL backend can pass codes through unchanged and
// the other backends report failures in the same vocabulary.
type Status int32

// Status codes.
const (
	StatusSuccess                      Status = 0
	StatusDeviceNotFound               Status = -1
	StatusDeviceNotAvailable           Status = -2
	StatusCompilerNotAvailable         Status = -3
	StatusMemObjectAllocationFailure   Status = -4
	StatusOutOfResources               Status = -5
	StatusOutOfHostMemory              Status = -6
	StatusProfilingInfoNotAvailable    Status = -7
	StatusMemCopyOverlap               Status = -8
	StatusImageFormatMismatch          Status = -9
	StatusImageFormatNotSupported      Status = -10
	StatusBuildProgramFailure          Status = -11
	StatusMapFailure                   Status = -12
	StatusInvalidValue                 Status = -30
	StatusInvalidDeviceType            Status = -31
	StatusInvalidPlatform              Status = -32
	StatusInvalidDevice                Status = -33
	StatusInvalidContext               Status = -34
	StatusInvalidQueueProperties       Status = -35
	StatusInvalidCommandQueue          Status = -36
	StatusInvalidHostPtr               Status = -37
	StatusInvalidMemObject             Status = -38
	StatusInvalidImageFormatDescriptor Status = -39
	StatusInvalidImageSize             Status = -40
	StatusInvalidSampler               Status = -41
	StatusInvalidBinary                Status = -42
	StatusInvalidBuildOptions          Status = -43
	StatusInvalidProgram               Status = -44
	StatusInvalidProgramExecutable     Status = -45
	StatusInvalidKernelName            Status = -46
	StatusInvalidKernelDefinition      Status = -47
	StatusInvalidKernel                Status = -48
	StatusInvalidArgIndex              Status = -49
	StatusInvalidArgValue              Status = -50
	StatusInvalidArgSize               Status = -51
	StatusInvalidKernelArgs            Status = -52
	StatusInvalidWorkDimension         Status = -53
	StatusInvalidWorkGroupSize         Status = -54
	StatusInvalidWorkItemSize          Status = -55
	StatusInvalidGlobalOffset          Status = -56
	StatusInvalidEventWaitList         Status = -57
	StatusInvalidEvent                 Status = -58
	StatusInvalidOperation             Status = -59
	StatusInvalidGLObject              Status = -60
	StatusInvalidBufferSize            Status = -61
	StatusInvalidMipLevel              Status = -62
	StatusInvalidGlobalWorkSize        Status = -63
	StatusPlatformNotFound             Status = -1001

	// StatusUnknown is reported for failures that carry no runtime status,
	// e.g. plain Go errors returned by a backend.
	StatusUnknown Status = -9999
)

type statusText struct {
	name, description string
}

var statusTable = map[Status]statusText{
	StatusSuccess:                      {"CL_SUCCESS", "succeeded"},
	StatusDeviceNotFound:               {"CL_DEVICE_NOT_FOUND", "device is not found"},
	StatusDeviceNotAvailable:           {"CL_DEVICE_NOT_AVAILABLE", "device is not available"},
	StatusCompilerNotAvailable:         {"CL_COMPILER_NOT_AVAILABLE", "compiler is not available"},
	StatusMemObjectAllocationFailure:   {"CL_MEM_OBJECT_ALLOCATION_FAILURE", "memory object allocation failure"},
	StatusOutOfResources:               {"CL_OUT_OF_RESOURCES", "out of resources"},
	StatusOutOfHostMemory:              {"CL_OUT_OF_HOST_MEMORY", "out of host memory"},
	StatusProfilingInfoNotAvailable:    {"CL_PROFILING_INFO_NOT_AVAILABLE", "profiling info is not available"},
	StatusMemCopyOverlap:               {"CL_MEM_COPY_OVERLAP", "copying overlapped memory address"},
	StatusImageFormatMismatch:          {"CL_IMAGE_FORMAT_MISMATCH", "image format mismatch"},
	StatusImageFormatNotSupported:      {"CL_IMAGE_FORMAT_NOT_SUPPORTED", "image format is not supported"},
	StatusBuildProgramFailure:          {"CL_BUILD_PROGRAM_FAILURE", "build program failure"},
	StatusMapFailure:                   {"CL_MAP_FAILURE", "memory mapping failure"},
	StatusInvalidValue:                 {"CL_INVALID_VALUE", "invalid value"},
	StatusInvalidDeviceType:            {"CL_INVALID_DEVICE_TYPE", "invalid device type"},
	StatusInvalidPlatform:              {"CL_INVALID_PLATFORM", "invalid platform"},
	StatusInvalidDevice:                {"CL_INVALID_DEVICE", "invalid device"},
	StatusInvalidContext:               {"CL_INVALID_CONTEXT", "invalid context"},
	StatusInvalidQueueProperties:       {"CL_INVALID_QUEUE_PROPERTIES", "invalid queue properties"},
	StatusInvalidCommandQueue:          {"CL_INVALID_COMMAND_QUEUE", "invalid command queue"},
	StatusInvalidHostPtr:               {"CL_INVALID_HOST_PTR", "invalid host pointer"},
	StatusInvalidMemObject:             {"CL_INVALID_MEM_OBJECT", "invalid mem object"},
	StatusInvalidImageFormatDescriptor: {"CL_INVALID_IMAGE_FORMAT_DESCRIPTOR", "invalid image format descriptor"},
	StatusInvalidImageSize:             {"CL_INVALID_IMAGE_SIZE", "invalid image size"},
	StatusInvalidSampler:               {"CL_INVALID_SAMPLER", "invalid sampler"},
	StatusInvalidBinary:                {"CL_INVALID_BINARY", "invalid binary"},
	StatusInvalidBuildOptions:          {"CL_INVALID_BUILD_OPTIONS", "invalid build options"},
	StatusInvalidProgram:               {"CL_INVALID_PROGRAM", "invalid program"},
	StatusInvalidProgramExecutable:     {"CL_INVALID_PROGRAM_EXECUTABLE", "invalid program executable"},
	StatusInvalidKernelName:            {"CL_INVALID_KERNEL_NAME", "invalid kernel name"},
	StatusInvalidKernelDefinition:      {"CL_INVALID_KERNEL_DEFINITION", "invalid kernel definition"},
	StatusInvalidKernel:                {"CL_INVALID_KERNEL", "invalid kernel"},
	StatusInvalidArgIndex:              {"CL_INVALID_ARG_INDEX", "invalid arg index"},
	StatusInvalidArgValue:              {"CL_INVALID_ARG_VALUE", "invalid arg value"},
	StatusInvalidArgSize:               {"CL_INVALID_ARG_SIZE", "invalid arg size"},
	StatusInvalidKernelArgs:            {"CL_INVALID_KERNEL_ARGS", "invalid kernel args"},
	StatusInvalidWorkDimension:         {"CL_INVALID_WORK_DIMENSION", "invalid work dimension"},
	StatusInvalidWorkGroupSize:         {"CL_INVALID_WORK_GROUP_SIZE", "invalid work group size"},
	StatusInvalidWorkItemSize:          {"CL_INVALID_WORK_ITEM_SIZE", "invalid work item size"},
	StatusInvalidGlobalOffset:          {"CL_INVALID_GLOBAL_OFFSET", "invalid global offset"},
	StatusInvalidEventWaitList:         {"CL_INVALID_EVENT_WAIT_LIST", "invalid event wait list"},
	StatusInvalidEvent:                 {"CL_INVALID_EVENT", "invalid event"},
	StatusInvalidOperation:             {"CL_INVALID_OPERATION", "invalid operation"},
	StatusInvalidGLObject:              {"CL_INVALID_GL_OBJECT", "invalid GL object"},
	StatusInvalidBufferSize:            {"CL_INVALID_BUFFER_SIZE", "invalid buffer size"},
	StatusInvalidMipLevel:              {"CL_INVALID_MIP_LEVEL", "invalid mip level"},
	StatusInvalidGlobalWorkSize:        {"CL_INVALID_GLOBAL_WORK_SIZE", "invalid global work size"},
	StatusPlatformNotFound:             {"CL_PLATFORM_NOT_FOUND_KHR", "no platform is available"},
}

// String returns the symbolic name of the status, e.g. "CL_INVALID_VALUE".
func (s Status) String() string {
	if t, ok := statusTable[s]; ok {
		return t.name
	}
	return fmt.Sprintf("CL_UNKNOWN_ERROR(%d)", int32(s))
}

// Description returns a human-readable description of the status.
func (s Status) Description() string {
	if t, ok := statusTable[s]; ok {
		return t.description
	}
	return "unknown"
}

// Known reports whether s is one of the defined status codes.
func (s Status) Known() bool {
	_, ok := statusTable[s]
	return ok
}
