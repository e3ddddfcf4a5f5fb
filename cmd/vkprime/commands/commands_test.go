package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/celer/vkc"
	"github.com/celer/vkc/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Cleanup(func() { vkc.SetLogger(nil) })

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunSoftware(t *testing.T) {
	out, err := execute(t, "run", "--backend", "software", "--elements", "8", "--dump", "--verify")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, want := range []string{
		"queue families: 3",
		"1 groups x 64 invocations",
		"timestamps: start",
		"verify: ok",
		"0: 1\n", "1: 1\n", "2: 2\n", "3: 3\n", "4: 1\n", "5: 5\n", "6: 1\n", "7: 7\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunFixedGroups(t *testing.T) {
	out, err := execute(t, "run", "--backend", "software", "--elements", "256", "--groups", "2", "--verify")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "warning: 128 elements were not visited") {
		t.Errorf("coverage warning missing:\n%s", out)
	}
	if !strings.Contains(out, "verify: ok") {
		t.Errorf("untouched tail should keep its initial values:\n%s", out)
	}
}

func TestRunStrict(t *testing.T) {
	_, err := execute(t, "run", "--backend", "software", "--elements", "256", "--groups", "2", "--strict")
	if !errors.Is(err, vkc.ErrIncompleteCoverage) {
		t.Errorf("run error = %v, want ErrIncompleteCoverage", err)
	}
}

func TestRunRepeatReuse(t *testing.T) {
	out, err := execute(t, "run", "--backend", "software", "--elements", "64", "--repeat", "2", "--reuse", "--timing=false")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if strings.Count(out, "dispatch: ") != 2 || strings.Count(out, "resources: reused") != 1 {
		t.Errorf("output:\n%s", out)
	}
	if strings.Contains(out, "timestamps:") {
		t.Errorf("untimed run printed timestamps:\n%s", out)
	}
}

func TestRunEnvConfig(t *testing.T) {
	t.Setenv("VKPRIME_BACKEND", "software")
	t.Setenv("VKPRIME_DISPATCH_ELEMENTS", "16")
	out, err := execute(t, "run")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "buffer: 16 elements") {
		t.Errorf("output:\n%s", out)
	}
}

func TestRunMissingEntryPoint(t *testing.T) {
	_, err := execute(t, "run", "--backend", "software", "--elements", "8", "--entry", "main")
	if !errors.Is(err, vkc.ErrEntryPointNotFound) {
		t.Errorf("run error = %v, want ErrEntryPointNotFound", err)
	}
}

func TestInvalidBackend(t *testing.T) {
	if _, err := execute(t, "run", "--backend", "metal"); err == nil {
		t.Error("unknown backend accepted")
	}
}

func TestBackendsPerBuild(t *testing.T) {
	_, vulkan := backends["vulkan"]
	_, wgpu := backends["wgpu"]
	if vulkan == wgpu {
		t.Fatalf("backends = %v, want exactly one of vulkan and wgpu", availableBackends())
	}
	if _, ok := backends["software"]; !ok {
		t.Error("software backend missing")
	}

	missing := "wgpu"
	if wgpu {
		missing = "vulkan"
	}
	cfg := config.DefaultConfig()
	cfg.Backend = missing
	if _, err := openDriver(cfg); !errors.Is(err, errBackendUnavailable) {
		t.Errorf("openDriver(%s) error = %v, want errBackendUnavailable", missing, err)
	}
	if _, err := execute(t, "run", "--backend", missing, "--elements", "8"); !errors.Is(err, errBackendUnavailable) {
		t.Errorf("run --backend %s error = %v, want errBackendUnavailable", missing, err)
	}
}

func TestDevicesSoftware(t *testing.T) {
	out, err := execute(t, "devices", "--backend", "software")
	if err != nil {
		t.Fatalf("devices: %v\n%s", err, out)
	}
	for _, want := range []string{"0: vkc software device", "Queue Families", "1 ns per tick"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCompile(t *testing.T) {
	out, err := execute(t, "compile", "-o", "prime.spv")
	if err != nil {
		t.Fatalf("compile: %v\n%s", err, out)
	}
	data, err := os.ReadFile("prime.spv")
	if err != nil {
		t.Fatal(err)
	}
	k, err := vkc.LoadKernel(data)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := k.EntryPoint(vkc.PrimeEntryPoint); err != nil {
		t.Error(err)
	}
	if !strings.Contains(out, "prime.wgsl -> prime.spv") {
		t.Errorf("output:\n%s", out)
	}
}

func TestVerifyPrimes(t *testing.T) {
	res := &vkc.Result{
		Values:   []uint32{1, 1, 2, 3, 4, 5},
		Dispatch: vkc.Dispatch{Coverage: vkc.NewCoverage(6, 4, 1)},
	}
	if bad := verifyPrimes(res); bad != 0 {
		t.Errorf("verifyPrimes = %d, want 0", bad)
	}
	res.Values[4] = 1
	if bad := verifyPrimes(res); bad != 1 {
		t.Errorf("a visited value in the unvisited tail should count, got %d", bad)
	}
}
