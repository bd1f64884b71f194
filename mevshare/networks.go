package mevshare

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnsupportedNetwork = errors.New("unsupported network")
	ErrInvalidNetwork     = errors.New("invalid network specification")
)

// Network is a relay deployment: where to post signed calls and where to read events.
type Network struct {
	ChainID   uint64 `yaml:"chainId"`
	Name      string `yaml:"name"`
	StreamURL string `yaml:"streamUrl"`
	APIURL    string `yaml:"apiUrl"`
}

var (
	Mainnet = Network{
		ChainID:   1,
		Name:      "mainnet",
		StreamURL: "https://mev-share.flashbots.net",
		APIURL:    "https://relay.flashbots.net",
	}
	Goerli = Network{
		ChainID:   5,
		Name:      "goerli",
		StreamURL: "https://mev-share-goerli.flashbots.net",
		APIURL:    "https://relay-goerli.flashbots.net",
	}
	Sepolia = Network{
		ChainID:   11155111,
		Name:      "sepolia",
		StreamURL: "https://mev-share-sepolia.flashbots.net",
		APIURL:    "https://relay-sepolia.flashbots.net",
	}
	Holesky = Network{
		ChainID:   17000,
		Name:      "holesky",
		StreamURL: "https://mev-share-holesky.flashbots.net",
		APIURL:    "https://relay-holesky.flashbots.net",
	}
)

// Networks is a set of known networks, keyed by chain id.
type Networks map[uint64]Network

func DefaultNetworks() Networks {
	return Networks{
		Mainnet.ChainID: Mainnet,
		Goerli.ChainID:  Goerli,
		Sepolia.ChainID: Sepolia,
		Holesky.ChainID: Holesky,
	}
}

// CustomNetwork describes a relay deployment that is not one of the presets.
func CustomNetwork(chainID uint64, name, streamURL, apiURL string) (Network, error) {
	n := Network{ChainID: chainID, Name: name, StreamURL: streamURL, APIURL: apiURL}
	return n, n.Validate()
}

func (n Network) Validate() error {
	if n.StreamURL == "" || n.APIURL == "" {
		return fmt.Errorf("%w: %q needs both streamUrl and apiUrl", ErrInvalidNetwork, n.Name)
	}
	return nil
}

func (n Network) String() string {
	return fmt.Sprintf("%s (%d)", n.Name, n.ChainID)
}

// ByChainID returns the network for chainID.
func (ns Networks) ByChainID(chainID uint64) (Network, error) {
	n, ok := ns[chainID]
	if !ok {
		return Network{}, fmt.Errorf("%w: chain id %d", ErrUnsupportedNetwork, chainID)
	}
	return n, nil
}

// ByName looks a network up by its case-insensitive name.
func (ns Networks) ByName(name string) (Network, error) {
	for _, n := range ns {
		if strings.EqualFold(n.Name, name) {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, name)
}

type NetworksConfig struct {
	Networks []Network `yaml:"networks"`
}

// LoadNetworksConfig parses extra networks from a file and merges them over the presets
func LoadNetworksConfig(file string) (Networks, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return ParseNetworksConfig(data)
}

func ParseNetworksConfig(data []byte) (Networks, error) {
	var config NetworksConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	networks := DefaultNetworks()
	for _, n := range config.Networks {
		if err := n.Validate(); err != nil {
			return nil, err
		}
		networks[n.ChainID] = n
	}
	return networks, nil
}
