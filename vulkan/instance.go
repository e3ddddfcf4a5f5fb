//go:build cgo

package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/celer/vkc"
	vk "github.com/vulkan-go/vulkan"
)

// InitializeForComputeOnly loads the Vulkan runtime without any windowing system.
func InitializeForComputeOnly() error {
	err := vk.SetDefaultGetInstanceProcAddr()
	if err != nil {
		return err
	}
	return vk.Init()
}

// Version is used to specify versions of components
type Version struct {
	Major int
	Minor int
	Patch int
}

// VKVersion returns a Vulkan compatible version representation
func (v *Version) VKVersion() uint32 {
	return vk.MakeVersion(v.Major, v.Minor, v.Patch)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// App is used to provide information about this specific application to Vulkan
type App struct {
	Name       string
	EngineName string
	Version    Version
	// APIVersion the expected minimum version of the Vulkan API (i.e. 1.0.0)
	APIVersion Version

	EnabledLayers     []string
	EnabledExtensions []string
}

// SupportedLayers returns the instance layers of the loaded runtime.
func SupportedLayers() ([]string, error) {
	var count uint32
	err := vk.Error(vk.EnumerateInstanceLayerProperties(&count, nil))
	if err != nil {
		return nil, err
	}
	layers := make([]vk.LayerProperties, count)
	err = vk.Error(vk.EnumerateInstanceLayerProperties(&count, layers))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, layer := range layers {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, nil
}

// SupportedExtensions returns the instance extensions of the loaded runtime.
func SupportedExtensions() ([]string, error) {
	var count uint32
	err := vk.Error(vk.EnumerateInstanceExtensionProperties("", &count, nil))
	if err != nil {
		return nil, err
	}
	exts := make([]vk.ExtensionProperties, count)
	err = vk.Error(vk.EnumerateInstanceExtensionProperties("", &count, exts))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, ext := range exts {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// EnableDebugging turns on the Khronos validation layer and debug reporting.
//
// see: https://vulkan.lunarg.com/doc/view/1.1.130.0/windows/validation_layers.html
func (a *App) EnableDebugging() error {
	if _, err := a.EnableLayer("VK_LAYER_KHRONOS_validation"); err != nil {
		return err
	}
	a.EnableExtension("VK_EXT_debug_report")
	return nil
}

// EnableLayer enables layer if the runtime supports it.
func (a *App) EnableLayer(layer string) (*App, error) {
	layers, err := SupportedLayers()
	if err != nil {
		return a, fmt.Errorf("error getting supported layers: %w", err)
	}
	for _, l := range layers {
		if l == layer {
			a.EnabledLayers = append(a.EnabledLayers, layer)
			return a, nil
		}
	}
	return a, fmt.Errorf("validation layer '%s' not found", layer)
}

// EnableExtension enables an instance extension.
func (a *App) EnableExtension(extension string) *App {
	a.EnabledExtensions = append(a.EnabledExtensions, extension)
	return a
}

// VKApplicationInfo creates a structure representing this application in a Vulkan friendly format
func (a *App) VKApplicationInfo() vk.ApplicationInfo {
	if a.APIVersion.Major < 1 {
		a.APIVersion.Major = 1
	}
	return vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         a.APIVersion.VKVersion(),
		ApplicationVersion: a.Version.VKVersion(),
		PApplicationName:   safeString(a.Name),
		PEngineName:        safeString(a.EngineName),
	}
}

// CreateInstance creates the Vulkan instance
func (a *App) CreateInstance() (*Instance, error) {
	appInfo := a.VKApplicationInfo()

	extensions := safeStrings(a.EnabledExtensions)
	layers := safeStrings(a.EnabledLayers)

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	instance := &Instance{}
	err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance.VKInstance))
	if err != nil {
		return nil, err
	}
	vk.InitInstance(instance.VKInstance)
	return instance, nil
}

// Instance is an instance of the Vulkan subsystem
type Instance struct {
	VKInstance vk.Instance

	debugCallback vk.DebugReportCallback
}

// PhysicalDevices returns the physical devices known to Vulkan
func (i *Instance) PhysicalDevices() ([]*PhysicalDevice, error) {
	var count uint32
	err := vk.Error(vk.EnumeratePhysicalDevices(i.VKInstance, &count, nil))
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	devices := make([]vk.PhysicalDevice, count)
	err = vk.Error(vk.EnumeratePhysicalDevices(i.VKInstance, &count, devices))
	if err != nil {
		return nil, err
	}

	ret := make([]*PhysicalDevice, count)
	for j, device := range devices {
		ret[j] = newPhysicalDevice(device)
	}
	return ret, nil
}

// SetDebugCallback installs callback for validation errors and warnings.
func (i *Instance) SetDebugCallback(callback vk.DebugReportCallbackFunc) error {
	return vk.Error(vk.CreateDebugReportCallback(i.VKInstance, &vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: callback,
	}, nil, &i.debugCallback))
}

// LogDebugCallback forwards validation messages to vkc.Logger.
func LogDebugCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	log := vkc.Logger().WithField("layer", pLayerPrefix).WithField("code", messageCode)
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		log.Error(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		log.Warn(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		log.WithField("performance", true).Warn(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		log.Debug(pMessage)
	default:
		log.Info(pMessage)
	}
	return vk.Bool32(vk.False)
}

func (i *Instance) Destroy() {
	if i.debugCallback != nil {
		vk.DestroyDebugReportCallback(i.VKInstance, i.debugCallback, nil)
	}
	vk.DestroyInstance(i.VKInstance, nil)
}

// Options configure New.
type Options struct {
	AppName string
	// Validation enables the Khronos validation layer when it is installed.
	Validation bool
}

// Driver is the Vulkan vkc.Driver.
type Driver struct {
	Instance *Instance
}

// New loads Vulkan and creates an instance.
func New(opts Options) (*Driver, error) {
	if err := InitializeForComputeOnly(); err != nil {
		return nil, fmt.Errorf("failed to load vulkan: %w", err)
	}
	app := &App{Name: opts.AppName, EngineName: "vkc", APIVersion: Version{Major: 1, Minor: 1}}
	if app.Name == "" {
		app.Name = "vkc"
	}
	validation := false
	if opts.Validation {
		if err := app.EnableDebugging(); err != nil {
			vkc.Logger().WithError(err).Warn("validation requested but unavailable")
		} else {
			validation = true
		}
	}

	instance, err := app.CreateInstance()
	if err != nil {
		return nil, fmt.Errorf("failed to create vulkan instance: %w", err)
	}
	if validation {
		if err := instance.SetDebugCallback(LogDebugCallback); err != nil {
			vkc.Logger().WithError(err).Warn("failed to install debug callback")
		}
	}
	return &Driver{Instance: instance}, nil
}

func (d *Driver) Name() string {
	return "vulkan"
}

func (d *Driver) Adapters() ([]vkc.Adapter, error) {
	devices, err := d.Instance.PhysicalDevices()
	if err != nil {
		return nil, err
	}
	ret := make([]vkc.Adapter, len(devices))
	for i, pd := range devices {
		ret[i] = pd
	}
	return ret, nil
}

func (d *Driver) Destroy() {
	d.Instance.Destroy()
}
