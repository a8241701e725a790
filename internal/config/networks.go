package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Network describes a single ledger deployment: where to reach it, which
// program holds the tender state and which functions that program declares.
type Network struct {
	Name           string   `yaml:"name"`
	ChainID        string   `yaml:"chainId"`
	Endpoint       string   `yaml:"endpoint"`
	ProgramAddress string   `yaml:"programAddress"`
	Functions      []string `yaml:"functions"`
	Dev            bool     `yaml:"dev,omitempty"`
}

type NetworkCatalog struct {
	Networks []Network `yaml:"networks"`
}

// LoadNetworks reads the catalog from path. A missing file is not an
// error: the built-in catalog covers the local simulator and the public
// test network, which is enough to boot without any deployment step.
func LoadNetworks(path string) (*NetworkCatalog, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultCatalog(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config.LoadNetworks: %w", err)
	}

	catalog := &NetworkCatalog{}
	err = yaml.Unmarshal(data, catalog)
	if err != nil {
		return nil, fmt.Errorf("config.LoadNetworks: %w", err)
	}
	if len(catalog.Networks) == 0 {
		return nil, fmt.Errorf("config.LoadNetworks: %s declares no networks", path)
	}
	return catalog, nil
}

func (c *NetworkCatalog) ByName(name string) (Network, bool) {
	for _, network := range c.Networks {
		if network.Name == name {
			return network, true
		}
	}
	return Network{}, false
}

func DefaultCatalog() *NetworkCatalog {
	return &NetworkCatalog{
		Networks: []Network{
			{
				Name:           "local",
				ChainID:        "1337",
				Endpoint:       "",
				ProgramAddress: "0x0000000000000000000000000000000000001337",
				Dev:            true,
			},
			{
				Name:           "testnet",
				ChainID:        "11155111",
				Endpoint:       "https://rpc.sepolia.org",
				ProgramAddress: "0x7a68f2b3C4d5E6f708192A3b4C5d6E7f80912345",
			},
		},
	}
}
