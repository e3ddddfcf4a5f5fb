package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/celer/vkc"
	"github.com/celer/vkc/kernels"
	gu "github.com/docker/go-units"
	"github.com/spf13/cobra"
)

func newCompileCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compile [kernel.wgsl]",
		Short: "Compile a WGSL kernel to SPIR-V",
		Long: `Compile translates a WGSL kernel to a SPIR-V binary and lists its compute entry points.
Without an argument the built in prime kernel is compiled.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, name := kernels.PrimeWGSL, "prime.wgsl"
			if len(args) == 1 {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				source, name = string(data), args[0]
			}
			if output == "" {
				output = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)) + ".spv"
			}

			spirv, err := vkc.CompileWGSL(source)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			k, err := vkc.LoadKernel(spirv)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if err := os.WriteFile(output, spirv, 0644); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s -> %s (%s)\n", name, output, gu.HumanSize(float64(len(spirv))))
			for _, ep := range k.EntryPoints {
				fmt.Fprintf(out, "\t%s\n", ep)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, the input name with .spv by default")
	return cmd
}
