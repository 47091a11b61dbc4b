package config

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"stakeflow/internal/models"
)

// DefaultNetwork is the network targeted when NETWORK is unset
const DefaultNetwork = "sepolia"

// DefaultDecimals is used for tokens missing from the network table
const DefaultDecimals = 18

// Sepolia deployment defaults
const (
	SepoliaChainID       = 11155111
	SepoliaRouterAddress = "0xe7489b54feF646bf318F043AB7E8A6a1cb456116"
	SepoliaWETHAddress   = "0x918530d86c239f92E58A98CE8ed446DC042613DB"
	SepoliaWBTCAddress   = "0xA32ecf29Ed19102A639cd1a9706079d055f3CF2B"
	SepoliaUSDCAddress   = "0xaDD1Fbe72192A8328AeD0EA6E1f729fde11Fd8Ad" // also backs MockSOL
	SepoliaExplorerURL   = "https://sepolia.etherscan.io"
)

// TokenConfig holds the on-chain location and precision of a token
type TokenConfig struct {
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

// NetworkConfig is the static table describing one network deployment
type NetworkConfig struct {
	Name          string                       `yaml:"-"`
	ChainID       int64                        `yaml:"chain_id"`
	RPCEndpoint   string                       `yaml:"rpc_endpoint"`
	RouterAddress string                       `yaml:"router"`
	ExplorerURL   string                       `yaml:"explorer"`
	Tokens        map[models.Token]TokenConfig `yaml:"tokens"`
}

// DefaultNetworks returns the built-in network table
func DefaultNetworks() map[string]NetworkConfig {
	return map[string]NetworkConfig{
		"sepolia": {
			Name:          "sepolia",
			ChainID:       SepoliaChainID,
			RouterAddress: SepoliaRouterAddress,
			ExplorerURL:   SepoliaExplorerURL,
			Tokens: map[models.Token]TokenConfig{
				models.TokenWETH: {Address: SepoliaWETHAddress, Decimals: 18},
				models.TokenWBTC: {Address: SepoliaWBTCAddress, Decimals: 8},
				models.TokenSOL:  {Address: SepoliaUSDCAddress, Decimals: 6},
				models.TokenUSDC: {Address: SepoliaUSDCAddress, Decimals: 6},
			},
		},
	}
}

type networkTable struct {
	Networks map[string]NetworkConfig `yaml:"networks"`
}

// LoadNetworkTable reads additional or replacement networks from a YAML file
func LoadNetworkTable(path string) (map[string]NetworkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network table: %w", err)
	}

	var table networkTable
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &table); err != nil {
		return nil, fmt.Errorf("failed to parse network table: %w", err)
	}

	for name, n := range table.Networks {
		n.Name = name
		if n.Tokens == nil {
			n.Tokens = make(map[models.Token]TokenConfig)
		}
		table.Networks[name] = n
	}

	return table.Networks, nil
}

// ResolveToken returns the token's address and decimals.
// Unknown tokens get DefaultDecimals and an empty address; known reports the lookup result.
func (n *NetworkConfig) ResolveToken(token models.Token) (address string, decimals uint8, known bool) {
	tok, ok := n.Tokens[token]
	if !ok {
		return "", DefaultDecimals, false
	}
	return tok.Address, tok.Decimals, true
}

// TxURL returns the block explorer link for a transaction hash
func (n *NetworkConfig) TxURL(txHash string) string {
	if n.ExplorerURL == "" {
		return txHash
	}
	return n.ExplorerURL + "/tx/" + txHash
}

// Validate checks addresses in the table
func (n *NetworkConfig) Validate() error {
	if !common.IsHexAddress(n.RouterAddress) {
		return fmt.Errorf("network %s: invalid router address %q", n.Name, n.RouterAddress)
	}

	for symbol, tok := range n.Tokens {
		if !common.IsHexAddress(tok.Address) {
			return fmt.Errorf("network %s: invalid %s address %q", n.Name, symbol, tok.Address)
		}
	}

	return nil
}

// tokenEnvName maps a token symbol to its address environment variable suffix
func tokenEnvName(token models.Token) string {
	// MockSOL is deployed at the USDC address
	if token == models.TokenSOL {
		return "USDC"
	}
	return string(token)
}
