package loader

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"meshmap/internal/domain"
)

// directoryYAML is the file structure of a directory seed
type directoryYAML struct {
	Version  int                 `yaml:"version"`
	Devices  []deviceYAML        `yaml:"devices"`
	Services map[string][]string `yaml:"services,omitempty"`
	Records  map[string][]string `yaml:"records,omitempty"`
}

// deviceYAML is one device entry in a seed file
type deviceYAML struct {
	ID        string   `yaml:"id,omitempty"`
	Name      string   `yaml:"name,omitempty"`
	Hostname  string   `yaml:"hostname,omitempty"`
	User      string   `yaml:"user,omitempty"`
	Tags      []string `yaml:"tags,omitempty"`
	Addresses []string `yaml:"addresses"`
	OS        string   `yaml:"os,omitempty"`
}

// LoadDirectory loads an identity directory from a YAML seed file. Seed
// files stand in for the control plane in deployments that only ingest
// spool files or captures.
func LoadDirectory(path string) (*domain.Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseDirectory(data)
}

// ParseDirectory parses an identity directory from YAML bytes
func ParseDirectory(data []byte) (*domain.Directory, error) {
	var y directoryYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return convertDirectory(&y)
}

func convertDirectory(y *directoryYAML) (*domain.Directory, error) {
	dir := domain.NewDirectory()

	for i, d := range y.Devices {
		dev := domain.Device{
			ID:        d.ID,
			Name:      d.Name,
			Hostname:  d.Hostname,
			User:      d.User,
			Tags:      d.Tags,
			Addresses: d.Addresses,
			OS:        d.OS,
		}

		if dev.Name == "" && dev.Hostname != "" {
			dev.Name = strings.SplitN(dev.Hostname, ".", 2)[0]
		}
		if dev.ID == "" {
			dev.ID = dev.Name
		}
		if dev.ID == "" {
			return nil, fmt.Errorf("device %d: needs an id, name, or hostname", i)
		}

		dir.Devices = append(dir.Devices, dev)
	}

	for name, addrs := range y.Services {
		if name == "" || len(addrs) == 0 {
			continue
		}
		dir.Services[name] = addrs
	}
	for name, addrs := range y.Records {
		if name == "" || len(addrs) == 0 {
			continue
		}
		dir.Records[name] = addrs
	}

	return dir, nil
}
