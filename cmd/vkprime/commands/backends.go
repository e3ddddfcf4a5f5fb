package commands

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/celer/vkc"
	"github.com/celer/vkc/internal/config"
	"github.com/celer/vkc/software"
)

var errBackendUnavailable = errors.New("backend not available in this build")

// opener opens a driver configured by cfg.
type opener func(cfg *config.Config) (vkc.Driver, error)

// backends holds the drivers compiled into the binary. vulkan-go needs cgo and the hal of
// gogpu/wgpu refuses it, so a build carries exactly one of the two next to software.
var backends = map[string]opener{
	"software": func(*config.Config) (vkc.Driver, error) {
		return software.NewPrime(software.Options{}), nil
	},
}

var (
	// instanceSupport lists instance extensions and layers, nil without the vulkan backend.
	instanceSupport func(w io.Writer) error

	// adapterDetails prints what a backend knows beyond the vkc.Adapter interface.
	adapterDetails []func(w io.Writer, adapter vkc.Adapter)
)

func registerBackend(name string, open opener) {
	backends[name] = open
}

func availableBackends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// openDriver opens the backend named by cfg.Backend.
func openDriver(cfg *config.Config) (vkc.Driver, error) {
	open, ok := backends[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("%w: %q, built with %s", errBackendUnavailable, cfg.Backend, strings.Join(availableBackends(), ", "))
	}
	return open(cfg)
}
