package virt

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
	"go.uber.org/zap"
)

// Options configure Dial.
type Options struct {
	// URI is the libvirt connection URI, e.g. qemu:///system or qemu+tcp://host/system
	URI string
	// Socket is the local unix socket used for URIs without a host
	Socket string
	// Timeout bounds the dial
	Timeout time.Duration
	Logger  *zap.Logger
}

// LibvirtConnection talks to libvirtd over its RPC protocol.
type LibvirtConnection struct {
	l   *libvirt.Libvirt
	uri string
	log *zap.Logger
}

// Dial opens a connection to the libvirt daemon described by opts.
func Dial(opts Options) (*LibvirtConnection, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	host, driverURI, err := SplitURI(opts.URI)
	if err != nil {
		return nil, err
	}

	var l *libvirt.Libvirt
	if host == "" {
		l = libvirt.NewWithDialer(dialers.NewLocal(
			dialers.WithSocket(opts.Socket),
			dialers.WithLocalTimeout(opts.Timeout),
		))
		log.Debug("dialing local libvirt socket", zap.String("socket", opts.Socket))
	} else {
		l = libvirt.NewWithDialer(dialers.NewRemote(host,
			dialers.UsePort(remotePort(opts.URI)),
			dialers.WithRemoteTimeout(opts.Timeout),
		))
		log.Debug("dialing remote libvirt", zap.String("host", host))
	}

	if err := l.ConnectToURI(libvirt.ConnectURI(driverURI)); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.URI, err)
	}
	log.Debug("connected to libvirt", zap.String("uri", opts.URI))

	return &LibvirtConnection{l: l, uri: opts.URI, log: log}, nil
}

// LookupDomain finds a domain by name.
func (c *LibvirtConnection) LookupDomain(name string) (*Domain, error) {
	dom, err := c.l.DomainLookupByName(name)
	if err != nil {
		if libvirt.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrDomainNotFound, name)
		}
		return nil, fmt.Errorf("failed to look up domain %s: %w", name, err)
	}
	return &Domain{Name: dom.Name, UUID: dom.UUID, handle: dom}, nil
}

// IsActive reports whether the domain is running.
func (c *LibvirtConnection) IsActive(dom *Domain) (bool, error) {
	d, err := c.handle(dom)
	if err != nil {
		return false, err
	}
	active, err := c.l.DomainIsActive(d)
	if err != nil {
		return false, fmt.Errorf("failed to query state of domain %s: %w", dom.Name, err)
	}
	return active == 1, nil
}

// XMLDescFlags requests the persistent configuration including secrets such
// as graphics passwords, so redefining it does not drop them.
const XMLDescFlags = libvirt.DomainXMLSecure | libvirt.DomainXMLInactive

// XMLDesc returns the persistent XML description of the domain, secrets included.
func (c *LibvirtConnection) XMLDesc(dom *Domain) (string, error) {
	d, err := c.handle(dom)
	if err != nil {
		return "", err
	}
	xml, err := c.l.DomainGetXMLDesc(d, XMLDescFlags)
	if err != nil {
		return "", fmt.Errorf("failed to get XML description of domain %s: %w", dom.Name, err)
	}
	return xml, nil
}

// DefineXML persists a domain configuration.
func (c *LibvirtConnection) DefineXML(xml string) error {
	dom, err := c.l.DomainDefineXML(xml)
	if err != nil {
		return fmt.Errorf("failed to define domain: %w", err)
	}
	c.log.Debug("domain defined", zap.String("domain", dom.Name))
	return nil
}

// Close disconnects from libvirtd.
func (c *LibvirtConnection) Close() error {
	return c.l.Disconnect()
}

func (c *LibvirtConnection) handle(dom *Domain) (libvirt.Domain, error) {
	if dom == nil {
		return libvirt.Domain{}, fmt.Errorf("domain cannot be nil")
	}
	d, ok := dom.handle.(libvirt.Domain)
	if !ok {
		return libvirt.Domain{}, fmt.Errorf("domain %s was not obtained from this connection", dom.Name)
	}
	return d, nil
}

// SplitURI separates a libvirt URI into the host to dial (empty for local
// connections) and the driver URI to hand to the daemon.
//
//   - "qemu:///system"          -> ("", "qemu:///system")
//   - "qemu+tcp://hv01/system"  -> ("hv01", "qemu:///system")
//   - "test:///default"         -> ("", "test:///default")
func SplitURI(uri string) (string, string, error) {
	if uri == "" {
		return "", "", fmt.Errorf("connection URI cannot be empty")
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid connection URI %q: %w", uri, err)
	}
	if u.Scheme == "" {
		return "", "", fmt.Errorf("invalid connection URI %q: missing driver", uri)
	}

	driver, transport, _ := strings.Cut(u.Scheme, "+")
	host := u.Hostname()
	if host == "" {
		return "", driver + "://" + u.Path, nil
	}
	if transport != "" && transport != "tcp" {
		return "", "", fmt.Errorf("unsupported transport %q in %q: only local sockets and tcp are supported", transport, uri)
	}
	return host, driver + "://" + u.Path, nil
}

func remotePort(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Port() == "" {
		return "16509"
	}
	return u.Port()
}
