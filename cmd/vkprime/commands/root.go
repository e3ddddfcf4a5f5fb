// Package commands implements the vkprime command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/celer/vkc"
	"github.com/celer/vkc/internal/config"
	"github.com/celer/vkc/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const version = "0.3.0"

// app is the state shared by the commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool

	cfg       *config.Config
	logCloser io.Closer
}

// NewRootCommand builds the vkprime command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "vkprime",
		Short: "Run compute kernels on a Vulkan device",
		Long: `vkprime selects a compute capable device, fills a buffer with 0..N-1, dispatches a
compute kernel over it and reads the buffer back, timing the dispatch with timestamp queries
where the device supports them.

Without a kernel path the built in prime kernel runs, replacing every element by itself when
it is prime and by 1 otherwise.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: a.teardown,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.vkprime/vkprime.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	flags.String("backend", "", "device backend: vulkan, wgpu or software")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-file", "", "also append the log to this file")
	flags.Bool("validation", false, "enable the Vulkan validation layer")

	a.bind(flags.Lookup("backend"), "backend")
	a.bind(flags.Lookup("log-level"), "logging.level")
	a.bind(flags.Lookup("log-file"), "logging.file")
	a.bind(flags.Lookup("validation"), "vulkan.validation")

	rootCmd.AddCommand(
		a.newRunCommand(),
		a.newDevicesCommand(),
		newCompileCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

// Execute runs the root command, cancelling the context on interrupt.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *app) bind(flag *pflag.Flag, key string) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding --%s: %v", flag.Name, err))
	}
}

// setup loads the configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWith(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg

	log, closer, err := logging.New(cfg.Logging.Level, cfg.Logging.File, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	a.logCloser = closer
	vkc.SetLogger(log)
	if used := a.v.ConfigFileUsed(); used != "" {
		log.Debugf("using config file %s", used)
	}
	return nil
}

func (a *app) teardown(cmd *cobra.Command, args []string) {
	vkc.SetLogger(nil)
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}
