package domain

import "time"

// Device is a member machine of the mesh network as reported by the
// control plane
type Device struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Hostname  string    `json:"hostname"`
	User      string    `json:"user"`
	Tags      []string  `json:"tags,omitempty"`
	Addresses []string  `json:"addresses"`
	OS        string    `json:"os,omitempty"`
	Online    bool      `json:"online"`
	LastSeen  time.Time `json:"lastSeen"`
}

// DisplayName returns the device's short name, falling back to hostname
// and then ID
func (d *Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	if d.Hostname != "" {
		return d.Hostname
	}
	return d.ID
}

// Directory bundles the lookup tables used to resolve raw IPs to stable
// identities: the device list, the service map (name -> registered
// addresses) and the static DNS record map (name -> addresses).
type Directory struct {
	Devices  []Device            `json:"devices"`
	Services map[string][]string `json:"services,omitempty"`
	Records  map[string][]string `json:"records,omitempty"`
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{
		Services: make(map[string][]string),
		Records:  make(map[string][]string),
	}
}
