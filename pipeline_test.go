package vkc_test

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/celer/vkc"
	"github.com/celer/vkc/internal/spirvasm"
	"github.com/celer/vkc/software"
)

func setup(t *testing.T, opts software.Options) (*vkc.DeviceContext, *software.Device) {
	t.Helper()
	dc, err := vkc.SelectDevice(software.NewPrime(opts))
	if err != nil {
		t.Fatalf("SelectDevice: %v", err)
	}
	t.Cleanup(dc.Destroy)
	return dc, dc.Device.(*software.Device)
}

func primeKernel(t *testing.T, wg uint32) *vkc.Kernel {
	t.Helper()
	k, err := vkc.LoadKernel(spirvasm.Prime(wg))
	if err != nil {
		t.Fatalf("LoadKernel: %v", err)
	}
	return k
}

// runStages runs the pipeline one stage at a time, the way the CLI does.
func runStages(t *testing.T, dc *vkc.DeviceContext, k *vkc.Kernel, buf *vkc.ElementBuffer, groups uint32) (vkc.Timing, vkc.Dispatch) {
	t.Helper()
	p, err := vkc.BuildPipeline(dc, k, vkc.PrimeEntryPoint, nil)
	if err != nil {
		t.Fatalf("BuildPipeline: %v", err)
	}
	defer p.Destroy()
	set, err := vkc.BindResources(dc, p, buf)
	if err != nil {
		t.Fatalf("BindResources: %v", err)
	}
	defer set.Destroy()
	pool, err := vkc.CreateTimestampQueries(dc)
	if err != nil {
		t.Fatalf("CreateTimestampQueries: %v", err)
	}
	defer pool.Destroy()

	seq, d, err := vkc.Record(dc, vkc.RecordOptions{Pipeline: p, Set: set, Buffer: buf, Queries: pool, Groups: groups})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	defer seq.Destroy()
	c, err := vkc.Submit(dc, seq)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	defer c.Destroy()
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	tm, err := vkc.ReadTimestamps(dc, pool)
	if err != nil {
		t.Fatalf("ReadTimestamps: %v", err)
	}
	return tm, d
}

func TestScenarioEightElements(t *testing.T) {
	dc, dev := setup(t, software.Options{})
	buf, err := vkc.AllocateSequence(dc, 8)
	if err != nil {
		t.Fatalf("AllocateSequence: %v", err)
	}
	tm, d := runStages(t, dc, primeKernel(t, 64), buf, 0)

	got, err := vkc.ReadElements(buf)
	if err != nil {
		t.Fatalf("ReadElements: %v", err)
	}
	want := []uint32{1, 1, 2, 3, 1, 5, 1, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if d.Groups != [3]uint32{1, 1, 1} || !d.Coverage.Complete() {
		t.Errorf("dispatch = %s", d)
	}
	if tm.End < tm.Start {
		t.Errorf("end %d precedes start %d", tm.End, tm.Start)
	}
	if tm.Milliseconds() < 0 {
		t.Errorf("elapsed = %v ms", tm.Milliseconds())
	}

	buf.Destroy()
	if dev.Live() != 0 {
		t.Errorf("%d objects leaked", dev.Live())
	}
}

func TestScenarioSingleWorkgroup(t *testing.T) {
	dc, _ := setup(t, software.Options{})
	const n = 768
	buf, err := vkc.AllocateSequence(dc, n)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Destroy()

	_, d := runStages(t, dc, primeKernel(t, 768), buf, 0)
	if d.Groups[0] != 1 || d.Coverage.Visited != n || d.Coverage.Excess != 0 {
		t.Errorf("dispatch = %s, want exactly one group covering %d elements", d, n)
	}

	got, err := vkc.ReadElements(buf)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if want := vkc.ResolvePrime(uint32(i)); v != want {
			t.Fatalf("element %d = %d, want %d", i, v, want)
		}
	}
}

// readChunks walks the buffer chunk by chunk so a large buffer is checked without a full copy.
func readChunks(t *testing.T, buf *vkc.ElementBuffer, chunk int, check func(i int, v uint32)) {
	t.Helper()
	raw := make([]byte, chunk*vkc.ElementSize)
	for first := 0; first < buf.Len; first += chunk {
		n := min(chunk, buf.Len-first)
		if err := buf.Buffer.Read(uint64(first)*vkc.ElementSize, raw[:n*vkc.ElementSize]); err != nil {
			t.Fatalf("read [%d, %d): %v", first, first+n, err)
		}
		for j := 0; j < n; j++ {
			check(first+j, binary.LittleEndian.Uint32(raw[j*vkc.ElementSize:]))
		}
	}
}

// The fixed dispatch of 1024 groups of 64 visits the first 65536 elements of the 67108864
// element buffer only, the tail keeps its initial values. -short runs it on 1 << 20 elements.
func TestScenarioFixedDispatchLeavesTail(t *testing.T) {
	n := 67108864
	if testing.Short() {
		n = 1 << 20
	}
	dc, _ := setup(t, software.Options{})
	buf, err := vkc.AllocateSequence(dc, n)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Destroy()

	_, d := runStages(t, dc, primeKernel(t, 64), buf, 1024)
	if !d.Fixed || d.Coverage.Complete() {
		t.Fatalf("dispatch = %s, want an incomplete fixed dispatch", d)
	}
	if d.Coverage.Visited != 65536 || d.Coverage.Unvisited != uint64(n-65536) {
		t.Errorf("coverage = %s, want 65536 visited", d.Coverage)
	}

	bad := 0
	readChunks(t, buf, 1<<18, func(i int, v uint32) {
		want := uint32(i)
		if i < 65536 {
			want = vkc.ResolvePrime(want)
		}
		if v != want {
			if bad == 0 {
				t.Errorf("element %d = %d, want %d", i, v, want)
			}
			bad++
		}
	})
	if bad > 0 {
		t.Errorf("%d of %d elements differ, the tail beyond the dispatch must keep its initial value", bad, n)
	}
}

func TestStrictRejectsIncompleteCoverage(t *testing.T) {
	dc, _ := setup(t, software.Options{})
	r := vkc.NewRunner(dc, vkc.RunnerOptions{})
	defer r.Close()

	_, err := r.Run(context.Background(), vkc.Job{Kernel: primeKernel(t, 64), Elements: 1000, Groups: 2, Strict: true})
	if !errors.Is(err, vkc.ErrIncompleteCoverage) {
		t.Errorf("error = %v, want ErrIncompleteCoverage", err)
	}
}

func TestRunner(t *testing.T) {
	dc, dev := setup(t, software.Options{})
	r := vkc.NewRunner(dc, vkc.RunnerOptions{})
	defer r.Close()

	res, err := r.Run(context.Background(), vkc.Job{Kernel: primeKernel(t, 64), Values: []uint32{0, 1, 2, 3, 4, 5, 6, 7}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []uint32{1, 1, 2, 3, 1, 5, 1, 7}
	for i := range want {
		if res.Values[i] != want[i] {
			t.Fatalf("values = %v, want %v", res.Values, want)
		}
	}
	if res.Timing == nil {
		t.Error("expected timing")
	}
	if res.Cached {
		t.Error("first run cannot be cached")
	}
	if dev.Live() != 0 {
		t.Errorf("%d objects leaked without reuse", dev.Live())
	}
}

func TestRunnerTimeDispatch(t *testing.T) {
	dc, _ := setup(t, software.Options{})
	r := vkc.NewRunner(dc, vkc.RunnerOptions{})
	defer r.Close()

	res, err := r.Run(context.Background(), vkc.Job{Kernel: primeKernel(t, 64), Elements: 4096, TimeDispatch: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Timing == nil || res.Timing.End < res.Timing.Start {
		t.Fatalf("timing = %v", res.Timing)
	}
}

func TestRunnerReuse(t *testing.T) {
	dc, dev := setup(t, software.Options{})
	r := vkc.NewRunner(dc, vkc.RunnerOptions{})
	k := primeKernel(t, 64)

	job := vkc.Job{Kernel: k, Elements: 100, Reuse: true}
	first, err := r.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := r.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if first.Cached || !second.Cached {
		t.Errorf("cached = %v, %v, want false, true", first.Cached, second.Cached)
	}
	// the buffer is refilled, running twice must not apply the kernel to its own output
	for i := range second.Values {
		if second.Values[i] != first.Values[i] {
			t.Fatalf("element %d differs between runs: %d != %d", i, first.Values[i], second.Values[i])
		}
	}
	if hits, misses := r.Cache().Stats(); hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses", hits, misses)
	}

	if _, err := r.Run(context.Background(), vkc.Job{Kernel: k, Elements: 200, Reuse: true}); err != nil {
		t.Fatal(err)
	}
	if r.Cache().Len() != 2 {
		t.Errorf("cache holds %d entries, want 2", r.Cache().Len())
	}
	if dev.Live() == 0 {
		t.Error("cached resources should be alive")
	}
	r.Close()
	if dev.Live() != 0 {
		t.Errorf("%d objects alive after Close", dev.Live())
	}
}

func TestRunnerUntimedFallback(t *testing.T) {
	cfg := software.DefaultAdapter()
	cfg.TimestampPeriod = 0
	dc, _ := setup(t, software.Options{Adapters: []software.AdapterConfig{cfg}})
	r := vkc.NewRunner(dc, vkc.RunnerOptions{})
	defer r.Close()

	res, err := r.Run(context.Background(), vkc.Job{Kernel: primeKernel(t, 64), Elements: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Timing != nil {
		t.Errorf("timing = %v, want none", res.Timing)
	}
}

func TestRunnerWaitTimeout(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	dc, _ := setup(t, software.Options{Gate: gate})
	r := vkc.NewRunner(dc, vkc.RunnerOptions{WaitTimeout: 20 * time.Millisecond})

	_, err := r.Run(context.Background(), vkc.Job{Kernel: primeKernel(t, 64), Elements: 10})
	if !errors.Is(err, vkc.ErrWaitFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want ErrWaitFailed wrapping DeadlineExceeded", err)
	}
}

func TestRunnerSchema(t *testing.T) {
	dc, _ := setup(t, software.Options{})
	r := vkc.NewRunner(dc, vkc.RunnerOptions{})
	defer r.Close()
	k := primeKernel(t, 64)

	good := vkc.NewResourceLayout(vkc.BindingSlot{Set: 0, Binding: 0, Kind: vkc.KindStorageBuffer})
	if _, err := r.Run(context.Background(), vkc.Job{Kernel: k, Elements: 8, Schema: good}); err != nil {
		t.Errorf("matching schema: %v", err)
	}
	bad := vkc.NewResourceLayout(vkc.BindingSlot{Set: 0, Binding: 0, Kind: vkc.KindUniformBuffer})
	if _, err := r.Run(context.Background(), vkc.Job{Kernel: k, Elements: 8, Schema: bad}); !errors.Is(err, vkc.ErrLayoutMismatch) {
		t.Errorf("error = %v, want ErrLayoutMismatch", err)
	}
}

func TestRunnerSchemaReuse(t *testing.T) {
	dc, _ := setup(t, software.Options{})
	r := vkc.NewRunner(dc, vkc.RunnerOptions{})
	defer r.Close()
	k := primeKernel(t, 64)

	good := vkc.NewResourceLayout(vkc.BindingSlot{Set: 0, Binding: 0, Kind: vkc.KindStorageBuffer})
	if _, err := r.Run(context.Background(), vkc.Job{Kernel: k, Elements: 8, Schema: good, Reuse: true}); err != nil {
		t.Fatalf("matching schema: %v", err)
	}
	// the cached pipeline must not let a mismatching schema through
	bad := vkc.NewResourceLayout(vkc.BindingSlot{Set: 0, Binding: 0, Kind: vkc.KindUniformBuffer})
	if _, err := r.Run(context.Background(), vkc.Job{Kernel: k, Elements: 8, Schema: bad, Reuse: true}); !errors.Is(err, vkc.ErrLayoutMismatch) {
		t.Errorf("error = %v, want ErrLayoutMismatch", err)
	}
	res, err := r.Run(context.Background(), vkc.Job{Kernel: k, Elements: 8, Schema: good, Reuse: true})
	if err != nil {
		t.Fatalf("matching schema after a mismatch: %v", err)
	}
	if !res.Cached {
		t.Error("a rejected job should leave the cached resources in place")
	}
}

func TestBindResourcesNeedsStorageAtZero(t *testing.T) {
	dc, _ := setup(t, software.Options{})
	k, err := vkc.LoadKernel(spirvasm.Compute(spirvasm.Options{
		Entry:     vkc.PrimeEntryPoint,
		LocalSize: [3]uint32{64, 1, 1},
		Bindings:  []spirvasm.Binding{{Set: 0, Binding: 1, Kind: spirvasm.StorageBuffer}},
	}))
	if err != nil {
		t.Fatal(err)
	}
	p, err := vkc.BuildPipeline(dc, k, vkc.PrimeEntryPoint, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Destroy()
	buf, err := vkc.AllocateSequence(dc, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Destroy()
	if _, err := vkc.BindResources(dc, p, buf); !errors.Is(err, vkc.ErrResourceSetCreationFailed) {
		t.Errorf("error = %v, want ErrResourceSetCreationFailed", err)
	}
}

func TestSelectDeviceErrors(t *testing.T) {
	if _, err := vkc.SelectDevice(software.New(software.Options{Adapters: []software.AdapterConfig{}})); !errors.Is(err, vkc.ErrNoAdapterFound) {
		t.Errorf("no adapters: error = %v, want ErrNoAdapterFound", err)
	}

	graphicsOnly := software.AdapterConfig{
		Name:     "graphics only",
		Families: []vkc.QueueFamily{{Index: 0, Flags: vkc.QueueGraphics, QueueCount: 1}},
	}
	if _, err := vkc.SelectDevice(software.New(software.Options{Adapters: []software.AdapterConfig{graphicsOnly}})); !errors.Is(err, vkc.ErrNoComputeQueueFamily) {
		t.Errorf("no compute family: error = %v, want ErrNoComputeQueueFamily", err)
	}

	// only the first adapter is considered
	withCompute := software.DefaultAdapter()
	if _, err := vkc.SelectDevice(software.New(software.Options{Adapters: []software.AdapterConfig{graphicsOnly, withCompute}})); !errors.Is(err, vkc.ErrNoComputeQueueFamily) {
		t.Errorf("first adapter without compute: error = %v, want ErrNoComputeQueueFamily", err)
	}

	noQueues := software.AdapterConfig{
		Name:     "empty family",
		Families: []vkc.QueueFamily{{Index: 0, Flags: vkc.QueueCompute}},
	}
	if _, err := vkc.SelectDevice(software.New(software.Options{Adapters: []software.AdapterConfig{noQueues}})); !errors.Is(err, vkc.ErrDeviceCreationFailed) {
		t.Errorf("family without queues: error = %v, want ErrDeviceCreationFailed", err)
	}
}

func TestAllocateSequenceRejectsEmpty(t *testing.T) {
	dc, _ := setup(t, software.Options{})
	for _, n := range []int{0, -1, math.MaxInt} {
		if _, err := vkc.AllocateSequence(dc, n); !errors.Is(err, vkc.ErrBufferAllocationFailed) {
			t.Errorf("AllocateSequence(%d) error = %v, want ErrBufferAllocationFailed", n, err)
		}
	}
}

func TestRunnerRejectsOversizedBuffer(t *testing.T) {
	if math.MaxInt <= vkc.MaxElements {
		t.Skip("int cannot hold more than MaxElements")
	}
	dc, dev := setup(t, software.Options{})
	r := vkc.NewRunner(dc, vkc.RunnerOptions{})
	defer r.Close()

	_, err := r.Run(context.Background(), vkc.Job{Kernel: primeKernel(t, 64), Elements: math.MaxInt})
	if !errors.Is(err, vkc.ErrBufferAllocationFailed) {
		t.Errorf("error = %v, want ErrBufferAllocationFailed", err)
	}
	if dev.Live() != 0 {
		t.Errorf("%d objects alive after a rejected job", dev.Live())
	}
}
