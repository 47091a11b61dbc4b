package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"stakeflow/internal/config"
	"stakeflow/internal/models"
	"stakeflow/internal/service"
	"stakeflow/internal/stake"
)

const queryTimeout = 30 * time.Second

var queryFlags struct {
	token        string
	tokenAddress string
	adapter      string
	account      string
	amount       string
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the wallet and staked balance of a token",
	RunE:  runBalance,
}

var allowanceCmd = &cobra.Command{
	Use:   "allowance",
	Short: "Show the router's allowance over a token",
	RunE:  runAllowance,
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Check balance, allowance and adapter support before staking",
	RunE:  runDiagnose,
}

var feeCmd = &cobra.Command{
	Use:   "fee",
	Short: "Preview the router's protocol fee for an amount",
	RunE:  runFee,
}

func init() {
	for _, cmd := range []*cobra.Command{balanceCmd, allowanceCmd, diagnoseCmd, feeCmd} {
		cmd.Flags().StringVar(&queryFlags.token, "token", string(models.TokenWETH), "token symbol")
		cmd.Flags().StringVar(&queryFlags.tokenAddress, "token-address", "", "token address for symbols missing from the network table")
		rootCmd.AddCommand(cmd)
	}

	balanceCmd.Flags().StringVar(&queryFlags.adapter, "adapter", "", "adapter to read the staked balance from")
	balanceCmd.Flags().StringVar(&queryFlags.account, "account", "", "account to inspect (defaults to the signer)")
	allowanceCmd.Flags().StringVar(&queryFlags.account, "account", "", "account to inspect (defaults to the signer)")

	diagnoseCmd.Flags().StringVar(&queryFlags.adapter, "adapter", "", "protocol adapter address")
	diagnoseCmd.Flags().StringVar(&queryFlags.amount, "amount", "", "planned stake amount")
	_ = diagnoseCmd.MarkFlagRequired("adapter")
	_ = diagnoseCmd.MarkFlagRequired("amount")

	feeCmd.Flags().StringVar(&queryFlags.amount, "amount", "", "amount to preview")
	_ = feeCmd.MarkFlagRequired("amount")
}

// resolveQueryToken returns the token address and decimals for the query flags
func resolveQueryToken(network *config.NetworkConfig) (common.Address, uint8, error) {
	address, decimals, _ := network.ResolveToken(models.Token(queryFlags.token))
	if address == "" {
		address = queryFlags.tokenAddress
	}
	if !common.IsHexAddress(address) {
		return common.Address{}, 0, fmt.Errorf("unrecognized asset %q", queryFlags.token)
	}
	return common.HexToAddress(address), decimals, nil
}

// queryAccount returns the --account flag or the signer address
func queryAccount(s *session) (common.Address, error) {
	if queryFlags.account == "" {
		if s.gateway.Account() == (common.Address{}) {
			return common.Address{}, fmt.Errorf("--account is required without a signer key")
		}
		return s.gateway.Account(), nil
	}
	if !common.IsHexAddress(queryFlags.account) {
		return common.Address{}, fmt.Errorf("invalid account %q", queryFlags.account)
	}
	return common.HexToAddress(queryFlags.account), nil
}

func runBalance(cmd *cobra.Command, args []string) error {
	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	token, decimals, err := resolveQueryToken(&s.cfg.Network)
	if err != nil {
		return err
	}
	account, err := queryAccount(s)
	if err != nil {
		return err
	}

	balance, err := s.gateway.BalanceOf(ctx, token, account)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wallet: %s %s\n", stake.FormatUnits(balance, decimals), queryFlags.token)

	if queryFlags.adapter != "" {
		if !common.IsHexAddress(queryFlags.adapter) {
			return fmt.Errorf("invalid adapter address %q", queryFlags.adapter)
		}
		staked, err := s.gateway.GetProtocolBalance(ctx, common.HexToAddress(queryFlags.adapter), token, account)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Staked: %s %s\n", stake.FormatUnits(staked, decimals), queryFlags.token)
	}

	return nil
}

func runAllowance(cmd *cobra.Command, args []string) error {
	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	token, decimals, err := resolveQueryToken(&s.cfg.Network)
	if err != nil {
		return err
	}
	account, err := queryAccount(s)
	if err != nil {
		return err
	}

	allowance, err := s.gateway.Allowance(ctx, token, account, s.gateway.Router().Address())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Allowance: %s %s\n", stake.FormatUnits(allowance, decimals), queryFlags.token)
	return nil
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	token, decimals, err := resolveQueryToken(&s.cfg.Network)
	if err != nil {
		return err
	}
	if !common.IsHexAddress(queryFlags.adapter) {
		return fmt.Errorf("invalid adapter address %q", queryFlags.adapter)
	}
	amount, err := stake.ParseUnits(queryFlags.amount, decimals)
	if err != nil {
		return err
	}

	d, err := diagnose(ctx, s.gateway, s.gateway.Router().Address(), token, common.HexToAddress(queryFlags.adapter), amount, decimals)
	if err != nil {
		return err
	}
	return printDiagnosis(cmd.OutOrStdout(), d)
}

func runFee(cmd *cobra.Command, args []string) error {
	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	fees := service.NewFeeService(s.gateway, &s.cfg.Network, s.logger)
	calc, err := fees.CalculateStakeFee(ctx, models.Token(queryFlags.token), queryFlags.amount)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Fee: %s %s (%d bps)\n", calc.Fee(), queryFlags.token, calc.FeeBasisPoints)
	fmt.Fprintf(out, "Staked after fee: %s %s\n", calc.Net(), queryFlags.token)
	return nil
}
