package core

import "fmt"

// IdentifierPool hands out small integer ids and recycles released ones.
// It is not safe for concurrent use.
type IdentifierPool struct {
	owners []interface{}
	free   []uint32
}

func NewIdentifierPool(capacity int) *IdentifierPool {
	return &IdentifierPool{
		owners: make([]interface{}, 0, capacity),
	}
}

func (p *IdentifierPool) AcquireNewID(owner interface{}) uint32 {
	if owner == nil {
		Invariantf("identifier pool: nil owner")
	}
	// Existing free spot. Take it.
	if n := len(p.free); n > 0 {
		id := p.free[n-1]
		p.free = p.free[:n-1]
		p.owners[id] = owner
		return id
	}
	// No existing free slots, push a new one.
	p.owners = append(p.owners, owner)
	return uint32(len(p.owners) - 1)
}

func (p *IdentifierPool) ReleaseID(id uint32) error {
	if int(id) >= len(p.owners) {
		return fmt.Errorf("identifier pool: id '%d' out of range (max=%d). Nothing was done", id, len(p.owners))
	}
	if p.owners[id] == nil {
		return fmt.Errorf("identifier pool: id '%d' is not in use. Nothing was done", id)
	}
	p.owners[id] = nil
	p.free = append(p.free, id)
	return nil
}

func (p *IdentifierPool) Owner(id uint32) (interface{}, bool) {
	if int(id) >= len(p.owners) || p.owners[id] == nil {
		return nil, false
	}
	return p.owners[id], true
}

// InUse is the number of ids currently handed out.
func (p *IdentifierPool) InUse() int {
	return len(p.owners) - len(p.free)
}
