// Package identity maps raw IPs to stable logical identities using the
// directory's device, service and static-record lookup tables.
package identity

import (
	"sort"
	"strings"

	"meshmap/internal/domain"
	"meshmap/internal/netflow"
)

// servicePrefix marks directory entries that name a service rather than a
// host; it is stripped from the display identity.
const servicePrefix = "svc:"

type deviceEntry struct {
	device *domain.Device
	addrs  []string
}

type tableEntry struct {
	name  string
	addrs []string
}

// Resolver answers identity lookups against one directory snapshot. All
// addresses are normalized once at construction; lookups never mutate
// the resolver, so it is safe for concurrent use.
type Resolver struct {
	devices  []deviceEntry
	services []tableEntry
	records  []tableEntry
}

// NewResolver builds a resolver from a directory snapshot
func NewResolver(dir *domain.Directory) *Resolver {
	r := &Resolver{}
	if dir == nil {
		return r
	}
	for i := range dir.Devices {
		dev := &dir.Devices[i]
		entry := deviceEntry{device: dev}
		for _, a := range dev.Addresses {
			if norm := netflow.Normalize(a); norm != "" {
				entry.addrs = append(entry.addrs, norm)
			}
		}
		r.devices = append(r.devices, entry)
	}
	r.services = sortedEntries(dir.Services, servicePrefix)
	r.records = sortedEntries(dir.Records, "")
	return r
}

// sortedEntries flattens a name->addrs table into name order so lookups
// are deterministic regardless of map iteration
func sortedEntries(table map[string][]string, stripPrefix string) []tableEntry {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]tableEntry, 0, len(names))
	for _, name := range names {
		display := name
		if stripPrefix != "" {
			display = strings.TrimPrefix(name, stripPrefix)
		}
		addrs := make([]string, 0, len(table[name]))
		for _, a := range table[name] {
			if norm := netflow.Normalize(a); norm != "" {
				addrs = append(addrs, norm)
			}
		}
		entries = append(entries, tableEntry{name: display, addrs: addrs})
	}
	return entries
}

// Resolve maps a bare IP to its logical identity: first matching device,
// then service, then static record, then the normalized IP itself.
func (r *Resolver) Resolve(ip string) domain.Identity {
	norm := netflow.Normalize(ip)

	for _, d := range r.devices {
		for _, a := range d.addrs {
			if addrMatch(norm, a) {
				return domain.Identity{
					Key:    d.device.DisplayName(),
					Kind:   domain.IdentityDevice,
					Device: d.device,
				}
			}
		}
	}
	for _, s := range r.services {
		for _, a := range s.addrs {
			if addrMatch(norm, a) {
				return domain.Identity{Key: s.name, Kind: domain.IdentityService}
			}
		}
	}
	for _, rec := range r.records {
		for _, a := range rec.addrs {
			if addrMatch(norm, a) {
				return domain.Identity{Key: rec.name, Kind: domain.IdentityRecord}
			}
		}
	}
	return domain.Identity{Key: norm, Kind: domain.IdentityIP}
}

// addrMatch reports whether two normalized addresses refer to the same
// endpoint. Prefix equality in either direction tolerates formatting
// leftovers such as zone suffixes.
func addrMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}
