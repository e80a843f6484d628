// Package driver describes the hypervisor disk drivers diskconv understands
// and the image formats each of them accepts.
package driver

import "sort"

// Driver is a hypervisor disk driver and the formats it supports.
// Formats maps a format name onto its canonical file extension (without dot).
type Driver struct {
	Name    string
	Formats map[string]string
}

// Registry maps driver names onto drivers.
type Registry map[string]*Driver

// Default is the registry used by the CLI. Only qemu is supported.
var Default = Registry{
	"qemu": {
		Name: "qemu",
		Formats: map[string]string{
			"raw":   "raw",
			"qcow2": "qcow2",
			"qcow":  "qcow",
			"cow":   "cow",
			"qed":   "qed",
			"vdi":   "vdi",
			"vmdk":  "vmdk",
		},
	},
}

// Lookup returns the named driver.
func (r Registry) Lookup(name string) (*Driver, bool) {
	d, ok := r[name]
	return d, ok
}

// Names returns the registered driver names, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supports reports whether format is valid for the driver.
func (d *Driver) Supports(format string) bool {
	_, ok := d.Formats[format]
	return ok
}

// Extension returns the canonical file extension for format, or "" when the
// format is not supported.
func (d *Driver) Extension(format string) string {
	return d.Formats[format]
}

// FormatNames returns the supported format names, sorted.
func (d *Driver) FormatNames() []string {
	names := make([]string, 0, len(d.Formats))
	for name := range d.Formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
