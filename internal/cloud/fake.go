package cloud

import (
	"context"
	"fmt"
	"sync"
)

// FakeProvisioner is an in-memory Provisioner used in tests and local
// development. Hosts receive an address after a configurable number of
// GetHost polls, imitating the delay before a real provider assigns one.
type FakeProvisioner struct {
	mu     sync.Mutex
	nextID int
	hosts  map[string]*fakeHost

	// PollsUntilAddress is the number of GetHost calls before a host reports
	// an address. Zero means the address is available immediately.
	PollsUntilAddress int

	// CreateErr, when set, makes CreateHost fail with it.
	CreateErr error
	// DeleteErr, when set, makes DeleteHost fail with it.
	DeleteErr error
}

type fakeHost struct {
	address string
	polls   int
}

func NewFakeProvisioner() *FakeProvisioner {
	return &FakeProvisioner{hosts: make(map[string]*fakeHost)}
}

func (p *FakeProvisioner) CreateHost(_ context.Context, req HostRequest) (*Host, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.CreateErr != nil {
		return nil, p.CreateErr
	}

	p.nextID++
	id := fmt.Sprintf("fake-%d", p.nextID)
	p.hosts[id] = &fakeHost{address: fmt.Sprintf("10.0.0.%d", p.nextID)}
	return &Host{ProviderID: id}, nil
}

func (p *FakeProvisioner) GetHost(_ context.Context, providerID string) (*Host, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.hosts[providerID]
	if !ok {
		return nil, ErrHostNotFound
	}

	h.polls++
	host := &Host{ProviderID: providerID}
	if h.polls > p.PollsUntilAddress {
		host.Address = h.address
	}
	return host, nil
}

func (p *FakeProvisioner) DeleteHost(_ context.Context, providerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.DeleteErr != nil {
		return p.DeleteErr
	}

	if _, ok := p.hosts[providerID]; !ok {
		return ErrHostNotFound
	}
	delete(p.hosts, providerID)
	return nil
}
