/*
Package vkc drives a single compute kernel on a GPU from start to finish: it picks a device with a
compute queue, allocates a host visible buffer, loads a SPIR-V kernel, binds the buffer, records a
one-time command sequence, submits it and waits for the device to finish, then reads timestamps
and the buffer back.

Vulkan is a very explicit API, everything OpenGL or OpenCL managed for the application is now the
application's job. This package keeps that explicitness but collapses it into a few steps which
map onto the way a compute dispatch is actually assembled:

	1. SelectDevice        enumerate adapters, take the first, find a COMPUTE queue family
	2. AllocateSequence    host visible storage buffer filled with 0..N-1
	3. BuildPipeline       load the kernel, reflect its entry point and bindings
	4. BindResources       one resource set with the buffer at set 0, binding 0
	5. Record              reset queries, bind, timestamp, bind, timestamp, dispatch
	6. Submit              queue submission with a fence, returned as a Completion
	7. ReadTimestamps      elapsed device time
	   ReadElements        buffer contents back on the host

Every step returns an error wrapping one of the sentinel errors in this package, the caller
decides whether that is fatal. Runner strings the steps together and can cache the pipeline and
its resources between dispatches.

Terms:

	Driver		a graphics API backend able to enumerate adapters (vulkan, wgpu, software)
	Adapter		a physical device and its queue families
	Device		the logical device, owner of every other object
	Queue		where command sequences are submitted
	Buffer		a linear allocation of device memory visible to the host
	Kernel		a SPIR-V module and what was reflected from it
	Pipeline	a kernel bound to one entry point plus its resource layout
	ResourceSet	buffers bound into one set of the layout (a descriptor set)
	QueryPool	timestamp query slots
	Fence		signaled once when submitted work is finished

Backends live in sub packages: vulkan wraps github.com/vulkan-go/vulkan, wgpu uses the gogpu HAL
and software executes Go implementations of kernels on the host so the pipeline can run without a
GPU.
*/
package vkc
