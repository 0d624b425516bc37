package types

import (
	"fmt"
	"strings"
)

// Address is the shipping destination stored as jsonb on an order.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

// Validate checks the fields required to ship a regulated transfer.
func (a Address) Validate() error {
	if strings.TrimSpace(a.Street) == "" {
		return fmt.Errorf("address: missing street")
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("address: missing city")
	}
	if strings.TrimSpace(a.State) == "" {
		return fmt.Errorf("address: missing state")
	}
	if strings.TrimSpace(a.ZipCode) == "" {
		return fmt.Errorf("address: missing zip_code")
	}
	return nil
}
