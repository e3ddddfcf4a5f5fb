package commands

import (
	"bufio"
	"fmt"
	"io"

	"github.com/celer/vkc"
	"github.com/celer/vkc/internal/config"
	"github.com/celer/vkc/kernels"
	gu "github.com/docker/go-units"
	"github.com/spf13/cobra"
)

func (a *app) newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch a kernel over a buffer of 0..N-1",
		Long: `Run fills a host visible buffer with 0..N-1, dispatches the kernel over it and waits
for the device to finish.

The workgroup count is derived from N and the workgroup size declared by the kernel. A fixed
count can be given with --groups, a count that leaves elements unvisited is reported and fails
the run with --strict.`,
		Example: `  vkprime run --elements 8 --dump
  vkprime run --backend software --elements 67108864 --groups 1024
  vkprime run --kernel ./prime.spv --entry main_cs --timeout 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd, a.cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("kernel", "", "SPIR-V or WGSL kernel, the built in prime kernel when empty")
	flags.String("entry", "", "compute entry point")
	flags.Int("elements", 0, "buffer length N")
	flags.Uint32("groups", 0, "fixed workgroup count, 0 derives it from N")
	flags.Bool("strict", false, "fail when the dispatch leaves elements unvisited")
	flags.Bool("time-dispatch", false, "record the end timestamp after the dispatch")
	flags.Bool("reuse", false, "keep pipeline and buffer between repeated runs")
	flags.Int("repeat", 0, "number of dispatches")
	flags.Bool("timing", false, "time the dispatch with timestamp queries")
	flags.Bool("dump", false, "print every element as index: value")
	flags.Bool("verify", false, "check the buffer against the prime function on the host")
	flags.Duration("timeout", 0, "bound the wait for completion, 0 waits forever")

	for flag, key := range map[string]string{
		"kernel":        "kernel.path",
		"entry":         "kernel.entry",
		"elements":      "dispatch.elements",
		"groups":        "dispatch.groups",
		"strict":        "dispatch.strict",
		"time-dispatch": "dispatch.time_dispatch",
		"reuse":         "dispatch.reuse",
		"repeat":        "dispatch.repeat",
		"timing":        "output.timing",
		"dump":          "output.dump",
		"verify":        "output.verify",
		"timeout":       "wait.timeout",
	} {
		a.bind(flags.Lookup(flag), key)
	}
	return cmd
}

func loadKernel(cfg *config.Config) (*vkc.Kernel, error) {
	if cfg.Kernel.Path == "" {
		return kernels.Prime()
	}
	return vkc.LoadKernelFile(cfg.Kernel.Path)
}

func runDispatch(cmd *cobra.Command, cfg *config.Config) error {
	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()

	kernel, err := loadKernel(cfg)
	if err != nil {
		return err
	}

	drv, err := openDriver(cfg)
	if err != nil {
		return err
	}
	defer drv.Destroy()

	dc, err := vkc.SelectDevice(drv)
	if err != nil {
		return err
	}
	defer dc.Destroy()

	fmt.Fprintf(out, "device: %s (%s)\n", dc.Adapter.Name(), drv.Name())
	if err := printFamilies(out, dc.Adapter); err != nil {
		return err
	}
	fmt.Fprintf(out, "buffer: %d elements, %s\n", cfg.Dispatch.Elements, gu.BytesSize(float64(cfg.Dispatch.Elements)*4))

	runner := vkc.NewRunner(dc, vkc.RunnerOptions{WaitTimeout: cfg.Wait.Timeout})
	defer runner.Close()

	job := vkc.Job{
		Kernel:       kernel,
		Entry:        cfg.Kernel.Entry,
		Elements:     cfg.Dispatch.Elements,
		Groups:       cfg.Dispatch.Groups,
		Strict:       cfg.Dispatch.Strict,
		TimeDispatch: cfg.Dispatch.TimeDispatch,
		Untimed:      !cfg.Output.Timing,
		Reuse:        cfg.Dispatch.Reuse,
	}

	var res *vkc.Result
	for i := 0; i < cfg.Dispatch.Repeat; i++ {
		if res, err = runner.Run(cmd.Context(), job); err != nil {
			return err
		}
		printResult(out, res)
	}

	if cfg.Output.Verify {
		if bad := verifyPrimes(res); bad > 0 {
			return fmt.Errorf("verify: %d elements differ from the host result", bad)
		}
		fmt.Fprintln(out, "verify: ok")
	}
	if cfg.Output.Dump {
		dumpElements(out, res.Values)
	}
	return nil
}

func printFamilies(w io.Writer, adapter vkc.Adapter) error {
	families, err := adapter.QueueFamilies()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "queue families: %d\n", len(families))
	for _, f := range families {
		fmt.Fprintf(w, "\tfamily %d: %d queues, %s\n", f.Index, f.QueueCount, f)
	}
	return nil
}

func printResult(w io.Writer, res *vkc.Result) {
	fmt.Fprintf(w, "dispatch: %s\n", res.Dispatch)
	if !res.Dispatch.Coverage.Complete() {
		fmt.Fprintf(w, "warning: %d elements were not visited\n", res.Dispatch.Coverage.Unvisited)
	}
	if res.Timing != nil {
		fmt.Fprintf(w, "timestamps: start %d, end %d\n", res.Timing.Start, res.Timing.End)
		fmt.Fprintf(w, "elapsed: %.6f ms\n", res.Timing.Milliseconds())
	}
	if res.Cached {
		fmt.Fprintln(w, "resources: reused")
	}
}

// verifyPrimes counts the elements that do not match the prime kernel run on the host. Elements
// past the visited range must keep their initial value.
func verifyPrimes(res *vkc.Result) int {
	visited := res.Dispatch.Coverage.Visited
	bad := 0
	for i, v := range res.Values {
		want := uint32(i)
		if uint64(i) < visited {
			want = vkc.ResolvePrime(want)
		}
		if v != want {
			bad++
		}
	}
	return bad
}

func dumpElements(w io.Writer, values []uint32) {
	for i, v := range values {
		fmt.Fprintf(w, "%d: %d\n", i, v)
	}
}
