package software

import (
	"errors"
	"testing"
	"time"

	"github.com/celer/vkc"
	"github.com/celer/vkc/internal/spirvasm"
)

func newContext(t *testing.T, d *Driver) *vkc.DeviceContext {
	t.Helper()
	dc, err := vkc.SelectDevice(d)
	if err != nil {
		t.Fatalf("SelectDevice: %v", err)
	}
	t.Cleanup(dc.Destroy)
	return dc
}

func primePipeline(t *testing.T, dc *vkc.DeviceContext, wg uint32) *vkc.ComputePipeline {
	t.Helper()
	k, err := vkc.LoadKernel(spirvasm.Prime(wg))
	if err != nil {
		t.Fatalf("LoadKernel: %v", err)
	}
	p, err := vkc.BuildPipeline(dc, k, vkc.PrimeEntryPoint, nil)
	if err != nil {
		t.Fatalf("BuildPipeline: %v", err)
	}
	t.Cleanup(p.Destroy)
	return p
}

func TestSelectsFirstComputeFamily(t *testing.T) {
	dc := newContext(t, NewPrime(Options{}))
	if dc.Family.Index != 1 {
		t.Errorf("selected family %d, want 1", dc.Family.Index)
	}
	if !dc.SupportsTimestamps() {
		t.Error("family 1 should support timestamps")
	}
	if dc.Queue.Family().Index != 1 {
		t.Errorf("queue family = %d, want 1", dc.Queue.Family().Index)
	}
}

func TestBufferLimits(t *testing.T) {
	cfg := DefaultAdapter()
	cfg.MaxBufferSize = 1024
	dc := newContext(t, NewPrime(Options{Adapters: []AdapterConfig{cfg}}))

	if _, err := vkc.AllocateSequence(dc, 257); !errors.Is(err, vkc.ErrBufferAllocationFailed) {
		t.Errorf("oversized allocation error = %v, want ErrBufferAllocationFailed", err)
	}
	b, err := vkc.AllocateSequence(dc, 256)
	if err != nil {
		t.Fatalf("AllocateSequence: %v", err)
	}
	if err := b.Buffer.Write(1020, make([]byte, 8)); err == nil {
		t.Error("write past the end should fail")
	}
	b.Destroy()
	if _, err := vkc.ReadElements(&vkc.ElementBuffer{Buffer: mustBuffer(t, dc), Len: 1}); err != nil {
		t.Errorf("ReadElements: %v", err)
	}
}

func mustBuffer(t *testing.T, dc *vkc.DeviceContext) vkc.Buffer {
	t.Helper()
	b, err := dc.Device.CreateBuffer(&vkc.BufferDescriptor{Size: 4, Usage: vkc.BufferUsageStorage})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	t.Cleanup(b.Destroy)
	return b
}

func TestCreateBufferRejectsZeroUsage(t *testing.T) {
	dc := newContext(t, NewPrime(Options{}))
	if _, err := dc.Device.CreateBuffer(&vkc.BufferDescriptor{Size: 4}); err == nil {
		t.Error("expected an error for a buffer without usage")
	}
}

func TestPipelineNeedsRegisteredKernel(t *testing.T) {
	dc := newContext(t, New(Options{}))
	k, err := vkc.LoadKernel(spirvasm.Prime(64))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := vkc.BuildPipeline(dc, k, vkc.PrimeEntryPoint, nil); err == nil {
		t.Error("expected an error without a registered implementation")
	}
}

func TestSequenceIsOneTimeSubmit(t *testing.T) {
	dc := newContext(t, NewPrime(Options{}))
	p := primePipeline(t, dc, 4)
	buf, err := vkc.AllocateSequence(dc, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Destroy()
	set, err := vkc.BindResources(dc, p, buf)
	if err != nil {
		t.Fatal(err)
	}
	defer set.Destroy()

	seq, _, err := vkc.Record(dc, vkc.RecordOptions{Pipeline: p, Set: set, Buffer: buf})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	defer seq.Destroy()

	c, err := vkc.Submit(dc, seq)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := vkc.Submit(dc, seq); !errors.Is(err, vkc.ErrSequenceConsumed) {
		t.Errorf("second Submit error = %v, want ErrSequenceConsumed", err)
	}
	if err := c.Wait(t.Context()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	c.Destroy()
}

func TestRecordingErrorsSurfaceAtEnd(t *testing.T) {
	dc := newContext(t, NewPrime(Options{}))
	p := primePipeline(t, dc, 4)

	seq, err := dc.Device.CreateCommandSequence()
	if err != nil {
		t.Fatal(err)
	}
	defer seq.Destroy()
	seq.BindPipeline(p.Pipeline)
	seq.Dispatch(1, 1, 1)
	if err := seq.End(); !errors.Is(err, vkc.ErrRecordingFailed) {
		t.Errorf("End error = %v, want ErrRecordingFailed for a dispatch without resources", err)
	}

	seq2, err := dc.Device.CreateCommandSequence()
	if err != nil {
		t.Fatal(err)
	}
	defer seq2.Destroy()
	seq2.Dispatch(0, 1, 1)
	if err := seq2.End(); !errors.Is(err, vkc.ErrRecordingFailed) {
		t.Errorf("End error = %v, want ErrRecordingFailed for an empty dispatch", err)
	}

	if _, err := dc.Queue.Submit(seq2); !errors.Is(err, vkc.ErrSubmissionFailed) {
		t.Errorf("Submit of a failed sequence error = %v, want ErrSubmissionFailed", err)
	}
}

func TestKernelPanicLosesDevice(t *testing.T) {
	d := New(Options{})
	d.Register(vkc.PrimeEntryPoint, func(inv Invocation, b Bindings) {
		// no bounds check, the last group runs past the end
		s := b.Storage(0, 0)
		s.Store(int(inv.GlobalID[0]), 0)
	})
	dc := newContext(t, d)
	p := primePipeline(t, dc, 4)
	buf, err := vkc.AllocateSequence(dc, 6)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Destroy()
	set, err := vkc.BindResources(dc, p, buf)
	if err != nil {
		t.Fatal(err)
	}
	defer set.Destroy()
	seq, _, err := vkc.Record(dc, vkc.RecordOptions{Pipeline: p, Set: set, Buffer: buf})
	if err != nil {
		t.Fatal(err)
	}
	defer seq.Destroy()
	c, err := vkc.Submit(dc, seq)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Destroy()

	err = c.Wait(t.Context())
	if !errors.Is(err, vkc.ErrWaitFailed) || !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Wait error = %v, want ErrWaitFailed wrapping ErrDeviceLost", err)
	}
}

func TestQueryResultsUnavailable(t *testing.T) {
	dc := newContext(t, NewPrime(Options{}))
	pool, err := vkc.CreateTimestampQueries(dc)
	if err != nil {
		t.Fatalf("CreateTimestampQueries: %v", err)
	}
	defer pool.Destroy()

	if _, err := pool.Results(0, 2, false); !errors.Is(err, vkc.ErrQueryResultsUnavailable) {
		t.Errorf("Results error = %v, want ErrQueryResultsUnavailable", err)
	}
	// nothing in flight writes the pool, waiting must not hang
	if _, err := vkc.ReadTimestamps(dc, pool); !errors.Is(err, vkc.ErrQueryResultsUnavailable) {
		t.Errorf("ReadTimestamps error = %v, want ErrQueryResultsUnavailable", err)
	}
}

func TestTimestampsUnsupported(t *testing.T) {
	cfg := DefaultAdapter()
	cfg.TimestampPeriod = 0
	dc := newContext(t, NewPrime(Options{Adapters: []AdapterConfig{cfg}}))
	if _, err := vkc.CreateTimestampQueries(dc); !errors.Is(err, vkc.ErrTimestampsUnsupported) {
		t.Errorf("error = %v, want ErrTimestampsUnsupported", err)
	}
}

func TestGateHoldsExecution(t *testing.T) {
	gate := make(chan struct{})
	dc := newContext(t, NewPrime(Options{Gate: gate}))
	p := primePipeline(t, dc, 4)
	buf, err := vkc.AllocateSequence(dc, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Destroy()
	set, err := vkc.BindResources(dc, p, buf)
	if err != nil {
		t.Fatal(err)
	}
	defer set.Destroy()
	seq, _, err := vkc.Record(dc, vkc.RecordOptions{Pipeline: p, Set: set, Buffer: buf})
	if err != nil {
		t.Fatal(err)
	}
	defer seq.Destroy()
	c, err := vkc.Submit(dc, seq)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Destroy()

	if ok, err := c.Poll(); ok || err != nil {
		t.Fatalf("Poll = %v, %v before the gate opened", ok, err)
	}
	select {
	case <-c.Done():
		t.Fatal("Done closed before the gate opened")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed after the gate opened")
	}
	if err := c.Err(); err != nil {
		t.Fatalf("Err = %v", err)
	}
	got, err := vkc.ReadElements(buf)
	if err != nil {
		t.Fatal(err)
	}
	if want := vkc.ResolvePrimes([]uint32{0, 1, 2, 3, 4, 5, 6, 7}); !equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLiveObjects(t *testing.T) {
	dc := newContext(t, NewPrime(Options{}))
	dev := dc.Device.(*Device)
	b, err := vkc.AllocateSequence(dc, 4)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Live() != 1 {
		t.Errorf("Live = %d, want 1", dev.Live())
	}
	b.Destroy()
	b.Destroy()
	if dev.Live() != 0 {
		t.Errorf("Live = %d after Destroy, want 0", dev.Live())
	}
}

func equal(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
