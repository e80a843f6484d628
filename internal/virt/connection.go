// Package virt is the management connection diskconv uses to look up domains,
// read their configuration and define a replacement configuration.
package virt

import "errors"

// ErrDomainNotFound is returned when no domain with the requested name exists.
var ErrDomainNotFound = errors.New("domain not found")

// Domain identifies a domain on the connection.
type Domain struct {
	Name string
	UUID [16]byte

	// handle is the implementation specific reference, opaque to callers
	handle any
}

// Connection is an open management connection.
type Connection interface {
	// LookupDomain finds a domain by name. Returns ErrDomainNotFound if absent.
	LookupDomain(name string) (*Domain, error)

	// IsActive reports whether the domain is running.
	IsActive(dom *Domain) (bool, error)

	// XMLDesc returns the domain's configuration document.
	XMLDesc(dom *Domain) (string, error)

	// DefineXML persists xml as the new configuration of the domain it names.
	DefineXML(xml string) error

	// Close releases the connection.
	Close() error
}
