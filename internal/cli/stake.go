package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakeflow/internal/models"
	"stakeflow/internal/sink"
	"stakeflow/internal/stake"
)

var stakeFlags struct {
	protocol     string
	token        string
	tokenAddress string
	adapter      string
	amount       string
}

var stakeCmd = &cobra.Command{
	Use:   "stake",
	Short: "Approve and stake an amount through the staking router",
	RunE:  runStake,
}

func init() {
	f := stakeCmd.Flags()
	f.StringVar(&stakeFlags.protocol, "protocol", "", "protocol name recorded with the stake")
	f.StringVar(&stakeFlags.token, "token", string(models.TokenWETH), "token symbol (WETH, WBTC, SOL, USDC)")
	f.StringVar(&stakeFlags.tokenAddress, "token-address", "", "token address for symbols missing from the network table")
	f.StringVar(&stakeFlags.adapter, "adapter", "", "protocol adapter address")
	f.StringVar(&stakeFlags.amount, "amount", "", "amount in token units, e.g. 0.5")
	_ = stakeCmd.MarkFlagRequired("protocol")
	_ = stakeCmd.MarkFlagRequired("adapter")
	_ = stakeCmd.MarkFlagRequired("amount")

	rootCmd.AddCommand(stakeCmd)
}

func runStake(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := stake.DefaultOptions()
	opts.SinkTimeout = s.cfg.Sink.Timeout
	opts.OnTransition = func(st stake.State) {
		fields := []zap.Field{zap.String("step", string(st.Step))}
		if st.TxHash != "" {
			fields = append(fields, zap.String("tx_hash", st.TxHash))
		}
		if st.Error != "" {
			fields = append(fields, zap.String("error", st.Error), zap.String("code", string(st.Code)))
		}
		s.logger.Info("Stake state changed", fields...)
	}

	orchestrator := stake.NewOrchestrator(s.gateway, sink.NewClient(s.cfg.Sink.URL, s.logger), &s.cfg.Network, opts, s.logger)

	result, err := orchestrator.Stake(ctx, models.StakeRequest{
		Protocol:       stakeFlags.protocol,
		Token:          models.Token(stakeFlags.token),
		TokenAddress:   stakeFlags.tokenAddress,
		AdapterAddress: stakeFlags.adapter,
		Amount:         stakeFlags.amount,
		Network:        s.cfg.Network.Name,
	})
	if err != nil {
		var stakeErr *stake.Error
		if errors.As(err, &stakeErr) && stakeErr.TxHash != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Transaction: %s\n", s.cfg.Network.TxURL(stakeErr.TxHash))
		}
		return fmt.Errorf("stake failed (%s): %w", stake.CodeOf(err), err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Staked %s %s with %s\n", result.Record.Amount, result.Record.Token, result.Record.Protocol)
	fmt.Fprintf(out, "Transaction: %s\n", s.cfg.Network.TxURL(result.TxHash.Hex()))
	fmt.Fprintf(out, "Block: %s  Gas used: %s\n", result.Receipt.BlockNumber, result.Record.Fee)

	if result.SinkErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: stake confirmed but the record was not saved: %v\n", result.SinkErr)
	} else {
		fmt.Fprintf(out, "Record: %s\n", result.RecordID)
	}

	return nil
}
