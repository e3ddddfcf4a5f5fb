package commands

import (
	"fmt"
	"io"

	"github.com/celer/vkc"
	"github.com/spf13/cobra"
)

func (a *app) newDevicesCommand() *cobra.Command {
	var layers bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the adapters of the backend",
		Long: `Devices lists every adapter of the configured backend with its queue families. The
first adapter listed is the one run selects. For the vulkan backend the memory heaps and types
are shown as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if layers && a.cfg.Backend == "vulkan" && instanceSupport != nil {
				if err := instanceSupport(out); err != nil {
					return err
				}
			}
			drv, err := openDriver(a.cfg)
			if err != nil {
				return err
			}
			defer drv.Destroy()
			return listAdapters(out, drv)
		},
	}
	cmd.Flags().BoolVar(&layers, "layers", false, "also list the Vulkan instance layers and extensions")
	return cmd
}

func listAdapters(w io.Writer, drv vkc.Driver) error {
	adapters, err := drv.Adapters()
	if err != nil {
		return err
	}
	if len(adapters) == 0 {
		return fmt.Errorf("%w: %s", vkc.ErrNoAdapterFound, drv.Name())
	}
	for i, adapter := range adapters {
		fmt.Fprintf(w, "\n%d: %s\n", i, adapter.Name())
		fmt.Fprintf(w, "-----------------------------\n")
		if t, ok := adapter.(interface{ DeviceType() string }); ok {
			fmt.Fprintf(w, "\tType\t\t%s\n", t.DeviceType())
		}
		if period := adapter.TimestampPeriod(); period > 0 {
			fmt.Fprintf(w, "\tTimestamps\t%g ns per tick\n", period)
		} else {
			fmt.Fprintf(w, "\tTimestamps\tunsupported\n")
		}

		families, err := adapter.QueueFamilies()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n\tQueue Families\n")
		for _, qf := range families {
			fmt.Fprintf(w, "\t\t%d\t%d queues\t%s\n", qf.Index, qf.QueueCount, qf)
		}

		for _, details := range adapterDetails {
			details(w, adapter)
		}
	}
	return nil
}
