package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend != "vulkan" || cfg.Kernel.Entry != "main_cs" {
		t.Errorf("backend/entry = %s/%s", cfg.Backend, cfg.Kernel.Entry)
	}
	if cfg.Dispatch.Elements != 512*48*96*8 || cfg.Dispatch.Groups != 0 {
		t.Errorf("dispatch = %+v, want the reference run", cfg.Dispatch)
	}
	if !cfg.Output.Timing || cfg.Output.Dump {
		t.Errorf("output = %+v", cfg.Output)
	}
	if cfg.Wait.Timeout != 0 {
		t.Errorf("wait.timeout = %s, want unbounded", cfg.Wait.Timeout)
	}
}

func TestLoadEnv(t *testing.T) {
	isolate(t)
	t.Setenv("VKPRIME_BACKEND", "software")
	t.Setenv("VKPRIME_DISPATCH_ELEMENTS", "8")
	t.Setenv("VKPRIME_DISPATCH_GROUPS", "1024")
	t.Setenv("VKPRIME_WAIT_TIMEOUT", "5s")
	t.Setenv("VKPRIME_OUTPUT_DUMP", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend != "software" {
		t.Errorf("backend = %s", cfg.Backend)
	}
	if cfg.Dispatch.Elements != 8 || cfg.Dispatch.Groups != 1024 {
		t.Errorf("dispatch = %+v", cfg.Dispatch)
	}
	if cfg.Wait.Timeout != 5*time.Second {
		t.Errorf("wait.timeout = %s", cfg.Wait.Timeout)
	}
	if !cfg.Output.Dump {
		t.Error("output.dump not set from env")
	}
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	t.Setenv("KERNELS", "/opt/kernels")
	path := filepath.Join(t.TempDir(), "vkprime.yaml")
	yaml := `backend: wgpu
kernel:
  path: $KERNELS/prime.spv
dispatch:
  elements: 768
  strict: true
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%s) error = %v", path, err)
	}
	if cfg.Backend != "wgpu" || cfg.Dispatch.Elements != 768 || !cfg.Dispatch.Strict {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Kernel.Path != "/opt/kernels/prime.spv" {
		t.Errorf("kernel.path = %s, want expanded", cfg.Kernel.Path)
	}
	if cfg.Kernel.Entry != "main_cs" {
		t.Errorf("kernel.entry = %s, want the default", cfg.Kernel.Entry)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %s", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	isolate(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() of an explicit missing file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"backend", func(c *Config) { c.Backend = "metal" }, "backend"},
		{"entry", func(c *Config) { c.Kernel.Entry = "" }, "kernel.entry"},
		{"elements", func(c *Config) { c.Dispatch.Elements = 0 }, "dispatch.elements"},
		{"repeat", func(c *Config) { c.Dispatch.Repeat = 0 }, "dispatch.repeat"},
		{"timeout", func(c *Config) { c.Wait.Timeout = -time.Second }, "wait.timeout"},
		{"level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want an error about %s", err, tt.want)
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if got := expandPath("~/k.spv"); got != filepath.Join(home, "k.spv") {
		t.Errorf("expandPath(~/k.spv) = %s", got)
	}
	if got := expandPath(""); got != "" {
		t.Errorf("expandPath(\"\") = %q", got)
	}
}
