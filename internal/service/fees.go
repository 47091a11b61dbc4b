package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"stakeflow/internal/config"
	"stakeflow/internal/models"
	"stakeflow/internal/stake"
)

// BasisPointsDenominator converts basis points to a fraction
const BasisPointsDenominator = 10000

// ErrFeeSourceUnavailable is returned when no chain connection is configured
var ErrFeeSourceUnavailable = errors.New("fee source not configured")

// FeeSource reads the router's protocol fee.
// *evm.Gateway satisfies it.
type FeeSource interface {
	FeeBasisPoints(ctx context.Context) (*big.Int, error)
}

// FeeService previews the router's protocol fee for a stake
type FeeService struct {
	source  FeeSource
	network *config.NetworkConfig
	logger  *zap.Logger
}

// NewFeeService creates a new fee service. A nil source disables previews.
func NewFeeService(source FeeSource, network *config.NetworkConfig, logger *zap.Logger) *FeeService {
	return &FeeService{
		source:  source,
		network: network,
		logger:  logger.Named("fees"),
	}
}

// FeeCalculation holds calculated fee information
type FeeCalculation struct {
	Token           models.Token
	Amount          string
	Decimals        uint8
	FeeBasisPoints  int64
	AmountBaseUnits *big.Int
	FeeBaseUnits    *big.Int
	NetBaseUnits    *big.Int
}

// Fee returns the fee in user-facing units
func (f *FeeCalculation) Fee() string {
	return stake.FormatUnits(f.FeeBaseUnits, f.Decimals)
}

// Net returns the staked amount after fee in user-facing units
func (f *FeeCalculation) Net() string {
	return stake.FormatUnits(f.NetBaseUnits, f.Decimals)
}

// CalculateStakeFee computes fee = amount * feeBasisPoints / 10000 in base units
func (s *FeeService) CalculateStakeFee(ctx context.Context, token models.Token, amount string) (*FeeCalculation, error) {
	if s.source == nil {
		return nil, ErrFeeSourceUnavailable
	}

	_, decimals, _ := s.network.ResolveToken(token)

	amountBase, err := stake.ParseUnits(amount, decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if amountBase.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRecord)
	}

	bps, err := s.source.FeeBasisPoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read fee basis points: %w", err)
	}

	fee := new(big.Int).Mul(amountBase, bps)
	fee.Quo(fee, big.NewInt(BasisPointsDenominator))
	net := new(big.Int).Sub(amountBase, fee)

	s.logger.Debug("Calculated stake fee",
		zap.String("token", string(token)),
		zap.String("amount", amountBase.String()),
		zap.String("fee_bps", bps.String()),
		zap.String("fee", fee.String()))

	return &FeeCalculation{
		Token:           token,
		Amount:          amount,
		Decimals:        decimals,
		FeeBasisPoints:  bps.Int64(),
		AmountBaseUnits: amountBase,
		FeeBaseUnits:    fee,
		NetBaseUnits:    net,
	}, nil
}
