package engine

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/inocsim/server/internal/domain/host"
)

var (
	// ErrUnknownHost is returned when a host identifier does not exist.
	ErrUnknownHost = errors.New("unknown host")
	// ErrUnknownInoculation is returned when an inoculation identifier is stale.
	ErrUnknownInoculation = errors.New("unknown inoculation")
)

// Population is the arena holding every host and inoculation. Ownership is an
// explicit index in both directions instead of pointers between entities.
type Population struct {
	hosts        []*host.Host
	inoculations map[host.InoculationID]*host.Inoculation
	owned        map[host.ID]map[host.InoculationID]struct{}
	nextID       host.InoculationID
}

// NewPopulation creates an empty arena.
func NewPopulation() *Population {
	return &Population{
		inoculations: make(map[host.InoculationID]*host.Inoculation),
		owned:        make(map[host.ID]map[host.InoculationID]struct{}),
	}
}

// AddHost creates the next host. Host IDs are dense, starting at 0.
func (p *Population) AddHost() *host.Host {
	h := host.NewHost(host.ID(len(p.hosts)))
	p.hosts = append(p.hosts, h)
	p.owned[h.ID] = make(map[host.InoculationID]struct{})
	return h
}

// Host looks up a host by ID.
func (p *Population) Host(id host.ID) (*host.Host, error) {
	if id < 0 || int(id) >= len(p.hosts) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHost, id)
	}
	return p.hosts[id], nil
}

// Hosts returns every host in ID order.
func (p *Population) Hosts() []*host.Host {
	return slices.Clone(p.hosts)
}

// HostCount returns the number of hosts.
func (p *Population) HostCount() int {
	return len(p.hosts)
}

// InoculationCount returns the number of live inoculations.
func (p *Population) InoculationCount() int {
	return len(p.inoculations)
}

// Infect creates a new Exposed inoculation owned by owner.
func (p *Population) Infect(owner host.ID, day uint32, delay float64) (*host.Inoculation, error) {
	if _, err := p.Host(owner); err != nil {
		return nil, err
	}
	p.nextID++
	inoc := &host.Inoculation{
		ID:        p.nextID,
		Owner:     owner,
		State:     host.StateExposed,
		StartDay:  day,
		DelayDays: delay,
	}
	p.inoculations[inoc.ID] = inoc
	p.owned[owner][inoc.ID] = struct{}{}
	return inoc, nil
}

// Inoculation looks up a live inoculation.
func (p *Population) Inoculation(id host.InoculationID) (*host.Inoculation, error) {
	inoc, ok := p.inoculations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInoculation, id)
	}
	return inoc, nil
}

// InoculationIDs returns a point-in-time snapshot of live IDs in creation order.
// Callers may remove inoculations while ranging over it.
func (p *Population) InoculationIDs() []host.InoculationID {
	return slices.Sorted(maps.Keys(p.inoculations))
}

// Owned returns the live inoculations of owner in creation order.
func (p *Population) Owned(owner host.ID) ([]*host.Inoculation, error) {
	if _, err := p.Host(owner); err != nil {
		return nil, err
	}
	ids := slices.Sorted(maps.Keys(p.owned[owner]))
	out := make([]*host.Inoculation, 0, len(ids))
	for _, id := range ids {
		inoc, ok := p.inoculations[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d indexed under host %s", ErrUnknownInoculation, id, owner)
		}
		out = append(out, inoc)
	}
	return out, nil
}

// Remove destroys an inoculation and detaches it from its owner.
func (p *Population) Remove(id host.InoculationID) error {
	inoc, err := p.Inoculation(id)
	if err != nil {
		return err
	}
	delete(p.owned[inoc.Owner], id)
	delete(p.inoculations, id)
	return nil
}

// ClearHost destroys every inoculation owned by owner and returns the removed IDs.
func (p *Population) ClearHost(owner host.ID) ([]host.InoculationID, error) {
	if _, err := p.Host(owner); err != nil {
		return nil, err
	}
	ids := slices.Sorted(maps.Keys(p.owned[owner]))
	for _, id := range ids {
		delete(p.inoculations, id)
	}
	p.owned[owner] = make(map[host.InoculationID]struct{})
	return ids, nil
}
