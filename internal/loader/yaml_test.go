package loader

import (
	"os"
	"path/filepath"
	"testing"
)

const seedDoc = `
version: 1
devices:
  - id: node-1
    name: alpha
    hostname: alpha.example.ts.net
    addresses: ["100.64.0.1"]
    os: linux
    tags: ["server"]
  - hostname: beta.example.ts.net
    addresses: ["100.64.0.2", "fd7a:115c:a1e0::2"]
services:
  "svc:web":
    - 100.100.1.1
records:
  printer.lan:
    - 192.168.1.9
  empty.lan: []
`

func TestParseDirectory(t *testing.T) {
	dir, err := ParseDirectory([]byte(seedDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(dir.Devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(dir.Devices))
	}

	alpha := dir.Devices[0]
	if alpha.ID != "node-1" || alpha.Name != "alpha" || alpha.OS != "linux" {
		t.Errorf("alpha = %+v", alpha)
	}
	if len(alpha.Tags) != 1 || alpha.Tags[0] != "server" {
		t.Errorf("alpha tags = %v", alpha.Tags)
	}

	// Name and ID fall back to the hostname's first label
	beta := dir.Devices[1]
	if beta.Name != "beta" || beta.ID != "beta" {
		t.Errorf("beta = %+v", beta)
	}
	if len(beta.Addresses) != 2 {
		t.Errorf("beta addresses = %v", beta.Addresses)
	}

	if addrs := dir.Services["svc:web"]; len(addrs) != 1 || addrs[0] != "100.100.1.1" {
		t.Errorf("services = %+v", dir.Services)
	}
	if addrs := dir.Records["printer.lan"]; len(addrs) != 1 || addrs[0] != "192.168.1.9" {
		t.Errorf("records = %+v", dir.Records)
	}
	if _, ok := dir.Records["empty.lan"]; ok {
		t.Error("record with no addresses was kept")
	}
}

func TestParseDirectoryRejectsAnonymousDevice(t *testing.T) {
	doc := `
devices:
  - addresses: ["100.64.0.9"]
`
	if _, err := ParseDirectory([]byte(doc)); err == nil {
		t.Error("device without id, name, or hostname was accepted")
	}
}

func TestParseDirectoryBadYAML(t *testing.T) {
	if _, err := ParseDirectory([]byte("devices: [unclosed")); err == nil {
		t.Error("malformed YAML was accepted")
	}
}

func TestLoadDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seedDoc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dir, err := LoadDirectory(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(dir.Devices) != 2 {
		t.Errorf("got %d devices, want 2", len(dir.Devices))
	}

	if _, err := LoadDirectory(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file did not error")
	}
}
