package virt

import (
	"fmt"
	"sync"

	"github.com/beevik/etree"
)

// MemoryConnection is an in-process Connection holding domain definitions in
// a map, for tests.
type MemoryConnection struct {
	mu      sync.Mutex
	domains map[string]*memoryDomain

	// DefineErr, when set, is returned by DefineXML.
	DefineErr error
	// Defined counts successful DefineXML calls.
	Defined int
	// XMLFetches counts XMLDesc calls.
	XMLFetches int
	closed     bool
}

type memoryDomain struct {
	xml    string
	active bool
}

// NewMemoryConnection creates an empty in-memory connection.
func NewMemoryConnection() *MemoryConnection {
	return &MemoryConnection{domains: make(map[string]*memoryDomain)}
}

// AddDomain registers a domain definition.
func (m *MemoryConnection) AddDomain(name, xml string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[name] = &memoryDomain{xml: xml, active: active}
}

// Definition returns the stored XML of a domain.
func (m *MemoryConnection) Definition(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[name]
	if !ok {
		return "", false
	}
	return d.xml, true
}

// Closed reports whether Close was called.
func (m *MemoryConnection) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MemoryConnection) LookupDomain(name string) (*Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.domains[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrDomainNotFound, name)
	}
	return &Domain{Name: name, handle: name}, nil
}

func (m *MemoryConnection) IsActive(dom *Domain) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[dom.Name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrDomainNotFound, dom.Name)
	}
	return d.active, nil
}

func (m *MemoryConnection) XMLDesc(dom *Domain) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.XMLFetches++
	d, ok := m.domains[dom.Name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDomainNotFound, dom.Name)
	}
	return d.xml, nil
}

// DefineXML stores xml under the domain's <name>, as libvirtd does.
func (m *MemoryConnection) DefineXML(xml string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DefineErr != nil {
		return m.DefineErr
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(xml); err != nil {
		return fmt.Errorf("failed to define domain: %w", err)
	}
	if doc.Root() == nil || doc.Root().SelectElement("name") == nil {
		return fmt.Errorf("failed to define domain: missing name")
	}
	name := doc.Root().SelectElement("name").Text()

	existing, ok := m.domains[name]
	if !ok {
		existing = &memoryDomain{}
		m.domains[name] = existing
	}
	existing.xml = xml
	m.Defined++
	return nil
}

func (m *MemoryConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
