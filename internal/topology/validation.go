package topology

import (
	"fmt"
	"strings"
)

const maxNameLength = 255

func (in *DeviceInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.NodeType = strings.TrimSpace(in.NodeType)
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if len(in.Name) > maxNameLength {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalid, maxNameLength)
	}
	if in.NodeType == "" {
		return fmt.Errorf("%w: node_type is required", ErrInvalid)
	}
	return nil
}

func (p *Patch) normalize() error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" || len(name) > maxNameLength {
			return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalid, maxNameLength)
		}
		p.Name = &name
	}
	if p.NodeType != nil {
		nt := strings.TrimSpace(*p.NodeType)
		if nt == "" {
			return fmt.Errorf("%w: node_type cannot be empty", ErrInvalid)
		}
		p.NodeType = &nt
	}
	dev, _ := p.deviceAssignments()
	if len(dev) == 0 && len(p.Link.assignments(true)) == 0 {
		return fmt.Errorf("%w: no fields to update", ErrInvalid)
	}
	return nil
}

func (t ResetTarget) valid() bool {
	switch t {
	case ResetNode, ResetGroup, ResetGeneral:
		return true
	}
	return false
}

func (m ResetMode) valid() bool {
	return m == ResetAuto || m == ResetManual
}
