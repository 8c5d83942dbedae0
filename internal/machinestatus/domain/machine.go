package machinestatus

import (
	"context"
	"strconv"
)

// Machine is an entry of the machine catalogue.
type Machine struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Group            string `json:"group"`
	Type             string `json:"type"`
	Status           Status `json:"status"`
	ConnectionStatus string `json:"connection_status"`
}

// DisplayName returns the name, or a generated one when it is empty.
func (m Machine) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return "Machine " + strconv.FormatInt(m.ID, 10)
}

// MachineFilter narrows catalogue listings. Empty fields match everything.
type MachineFilter struct {
	Group string
	Type  string
}

// MachineCatalog lists machines.
type MachineCatalog interface {
	List(ctx context.Context, filter MachineFilter) ([]Machine, error)
	Get(ctx context.Context, id int64) (*Machine, error)
	ListTypes(ctx context.Context) ([]string, error)
}
