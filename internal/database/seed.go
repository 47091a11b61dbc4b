package database

import "stakeflow/internal/models"

// DefaultProtocolOptions are the adapters deployed on Sepolia
func DefaultProtocolOptions() []models.ProtocolOption {
	return []models.ProtocolOption{
		{ID: "uniswap-weth-sepolia", Protocol: "Uniswap V3", Token: models.TokenWETH, APY: 5.2, TVL: "$1.2B", Risk: "Medium", AdapterAddress: "0xb8152050eCd324186eC1704fD0dF7853380A6aa7", IsActive: true, Network: "sepolia"},
		{ID: "lido-weth-sepolia", Protocol: "Lido", Token: models.TokenWETH, APY: 3.8, TVL: "$15B", Risk: "Low", AdapterAddress: "0x8fEB6f4aA42Aec109b5a95A2653297A01Ef1340A", IsActive: true, Network: "sepolia"},
		{ID: "aave-weth-sepolia", Protocol: "Aave V3", Token: models.TokenWETH, APY: 2.1, TVL: "$4B", Risk: "Low", AdapterAddress: "0xcee40f6aEC2b17E5b3BBB46AAdd3103C0Eb6eA46", IsActive: true, Network: "sepolia"},
		{ID: "uniswap-wbtc-sepolia", Protocol: "Uniswap V3", Token: models.TokenWBTC, APY: 4.5, TVL: "$500M", Risk: "Medium", AdapterAddress: "0xC53d3B458D3393dA5989285905337E94fd1f9b60", IsActive: true, Network: "sepolia"},
		{ID: "aave-wbtc-sepolia", Protocol: "Aave V3", Token: models.TokenWBTC, APY: 1.5, TVL: "$1B", Risk: "Low", AdapterAddress: "0x6b1A165252ADD50d3a833C628Edd36Eab0325f8e", IsActive: true, Network: "sepolia"},
		{ID: "aave-usdc-sepolia", Protocol: "Aave V3", Token: models.TokenUSDC, APY: 3.2, TVL: "$2B", Risk: "Low", AdapterAddress: "0x6b1A165252ADD50d3a833C628Edd36Eab0325f8e", IsActive: true, Network: "sepolia"},
	}
}
