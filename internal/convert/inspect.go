package convert

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/faize-ai/diskconv/internal/domxml"
	"github.com/faize-ai/diskconv/internal/driver"
	"github.com/faize-ai/diskconv/internal/logging"
	"github.com/faize-ai/diskconv/internal/virt"
)

// Inspector reads a domain's configuration and collects its file-backed disks.
type Inspector struct {
	conn    virt.Connection
	drivers driver.Registry
	log     *zap.Logger
}

// NewInspector creates an Inspector.
func NewInspector(conn virt.Connection, drivers driver.Registry, log *zap.Logger) *Inspector {
	return &Inspector{conn: conn, drivers: drivers, log: logging.OrNop(log)}
}

// Inspect looks up domainName, verifies it is shut off, fetches its
// configuration and validates every file-backed disk. Any invalid disk fails
// the whole inspection; so does a domain without file-backed disks.
func (i *Inspector) Inspect(domainName string) (*domxml.Document, []DiskDescriptor, error) {
	dom, err := i.conn.LookupDomain(domainName)
	if err != nil {
		if errors.Is(err, virt.ErrDomainNotFound) {
			return nil, nil, fmt.Errorf("%w: no domain with name '%s' found", ErrLookup, domainName)
		}
		return nil, nil, fmt.Errorf("%w: domain '%s': %w", ErrLookup, domainName, err)
	}

	active, err := i.conn.IsActive(dom)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: cannot determine state of domain '%s': %w", ErrState, domainName, err)
	}
	if active {
		return nil, nil, fmt.Errorf("%w: domain '%s' is running, shut it down before converting its disk images",
			ErrState, domainName)
	}

	xml, err := i.conn.XMLDesc(dom)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to get XML description of domain '%s': %w", ErrLookup, domainName, err)
	}
	doc, err := domxml.Parse(xml)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: domain '%s': %w", ErrValidation, domainName, err)
	}

	nodes := doc.FileDisks()
	if len(nodes) == 0 {
		return nil, nil, fmt.Errorf("%w: no disk definitions of type file for domain '%s', nothing to do",
			ErrValidation, domainName)
	}

	disks := make([]DiskDescriptor, 0, len(nodes))
	for idx, node := range nodes {
		disk, err := i.describe(node)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: domain '%s' disk %d%s: %w",
				ErrValidation, domainName, idx, devSuffix(node.TargetDev()), err)
		}
		disks = append(disks, disk)
		i.log.Debug("found disk",
			zap.String("domain", domainName),
			zap.String("driver", disk.DriverName),
			zap.String("format", disk.DriverFormat),
			zap.String("source", disk.SourcePath))
	}

	return doc, disks, nil
}

func (i *Inspector) describe(node *domxml.Disk) (DiskDescriptor, error) {
	name, ok := node.DriverName()
	if !ok || name == "" {
		return DiskDescriptor{}, errors.New("failed to get disk driver name")
	}
	drv, ok := i.drivers.Lookup(name)
	if !ok {
		return DiskDescriptor{}, fmt.Errorf("unknown disk driver name '%s' (supported: %s)",
			name, strings.Join(i.drivers.Names(), ", "))
	}

	format, ok := node.DriverType()
	if !ok || format == "" {
		return DiskDescriptor{}, errors.New("failed to get disk driver type")
	}
	if !drv.Supports(format) {
		return DiskDescriptor{}, fmt.Errorf("unknown disk driver type '%s' for driver '%s'", format, name)
	}

	source, ok := node.SourceFile()
	if !ok || source == "" {
		return DiskDescriptor{}, errors.New("failed to get disk image file name")
	}

	return DiskDescriptor{
		Node:         node,
		DriverName:   name,
		DriverFormat: format,
		SourcePath:   source,
		TargetDev:    node.TargetDev(),
	}, nil
}

func devSuffix(dev string) string {
	if dev == "" {
		return ""
	}
	return " (" + dev + ")"
}
