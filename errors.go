package vkc

import "errors"

// Failure points of the pipeline. Errors returned by this package and its backends wrap exactly
// one of these, test with errors.Is.
var (
	ErrNoAdapterFound            = errors.New("vkc: no adapter found")
	ErrNoComputeQueueFamily      = errors.New("vkc: no queue family supports compute")
	ErrDeviceCreationFailed      = errors.New("vkc: device creation failed")
	ErrBufferAllocationFailed    = errors.New("vkc: buffer allocation failed")
	ErrEntryPointNotFound        = errors.New("vkc: entry point not found")
	ErrMalformedKernelBinary     = errors.New("vkc: malformed kernel binary")
	ErrLayoutMismatch            = errors.New("vkc: resource layout does not match kernel")
	ErrResourceSetCreationFailed = errors.New("vkc: resource set creation failed")
	ErrQueryPoolFailed           = errors.New("vkc: query pool operation failed")
	ErrRecordingFailed           = errors.New("vkc: command recording failed")
	ErrSequenceConsumed          = errors.New("vkc: one-time command sequence already submitted")
	ErrSubmissionFailed          = errors.New("vkc: submission failed")
	ErrWaitFailed                = errors.New("vkc: wait for completion failed")
	ErrQueryResultsUnavailable   = errors.New("vkc: query results unavailable")
	ErrTimestampOrder            = errors.New("vkc: end timestamp precedes start timestamp")
	ErrTimestampsUnsupported     = errors.New("vkc: timestamps not supported by device")
	ErrBufferMapFailed           = errors.New("vkc: buffer map failed")
	ErrIncompleteCoverage        = errors.New("vkc: dispatch does not cover every element")
)
