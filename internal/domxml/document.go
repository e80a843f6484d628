// Package domxml holds a libvirt domain configuration document in memory and
// exposes the disk entries diskconv reads and rewrites.
//
// The document is kept as a mutable element tree so everything diskconv does
// not touch (devices, metadata, comments) round-trips unchanged.
package domxml

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// ErrEmptyDocument is returned when the description has no root element.
var ErrEmptyDocument = errors.New("domain description has no root element")

// fileDiskPath selects file-backed disk entries.
const fileDiskPath = "//devices/disk[@type='file']"

// Document is a domain configuration tree.
type Document struct {
	tree *etree.Document
}

// Parse reads a domain XML description.
func Parse(xml string) (*Document, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromString(xml); err != nil {
		return nil, fmt.Errorf("failed to parse domain description: %w", err)
	}
	if tree.Root() == nil {
		return nil, ErrEmptyDocument
	}
	return &Document{tree: tree}, nil
}

// Name returns the <name> of the domain, or "" if absent.
func (d *Document) Name() string {
	el := d.tree.Root().SelectElement("name")
	if el == nil {
		return ""
	}
	return el.Text()
}

// FileDisks returns every disk entry whose type attribute is "file", in
// document order. The returned disks reference nodes inside d.
func (d *Document) FileDisks() []*Disk {
	elements := d.tree.FindElements(fileDiskPath)
	disks := make([]*Disk, 0, len(elements))
	for _, el := range elements {
		disks = append(disks, &Disk{el: el})
	}
	return disks
}

// String serializes the document.
func (d *Document) String() (string, error) {
	return d.tree.WriteToString()
}

// Disk is a reference to a <disk> node inside a Document.
type Disk struct {
	el *etree.Element
}

// DriverName returns driver/@name.
func (k *Disk) DriverName() (string, bool) {
	return k.childAttr("driver", "name")
}

// DriverType returns driver/@type.
func (k *Disk) DriverType() (string, bool) {
	return k.childAttr("driver", "type")
}

// SourceFile returns source/@file.
func (k *Disk) SourceFile() (string, bool) {
	return k.childAttr("source", "file")
}

// TargetDev returns target/@dev (vda, sdb, ...) or "" if absent.
func (k *Disk) TargetDev() string {
	dev, _ := k.childAttr("target", "dev")
	return dev
}

// Retarget points the disk at a new image: driver/@type becomes format and
// source/@file becomes path. Both children must exist; nothing is changed
// otherwise.
func (k *Disk) Retarget(format, path string) error {
	driver := k.el.SelectElement("driver")
	if driver == nil {
		return errors.New("disk has no driver element")
	}
	source := k.el.SelectElement("source")
	if source == nil {
		return errors.New("disk has no source element")
	}
	driver.CreateAttr("type", format)
	source.CreateAttr("file", path)
	return nil
}

func (k *Disk) childAttr(child, attr string) (string, bool) {
	el := k.el.SelectElement(child)
	if el == nil {
		return "", false
	}
	a := el.SelectAttr(attr)
	if a == nil {
		return "", false
	}
	return a.Value, true
}
