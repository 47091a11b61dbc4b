package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stakeflow/internal/blockchain/evm"
	"stakeflow/internal/config"
)

var isDebug bool

var rootCmd = &cobra.Command{
	Use:   "stakectl",
	Short: "Stake tokens through the staking router",
	Long: `stakectl submits approve and stake transactions to the staking router,
waits for confirmation and stores the confirmed record in the transaction sink.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if isDebug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// session bundles what every chain-facing command needs
type session struct {
	cfg     *config.Config
	logger  *zap.Logger
	gateway *evm.Gateway
}

func (s *session) Close() {
	s.gateway.Close()
	_ = s.logger.Sync()
}

// openSession loads configuration and connects to the configured network.
// withSigner requires a signer key, read-only commands pass false.
func openSession(withSigner bool) (*session, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	privateKey := ""
	if withSigner {
		if err := cfg.ValidateClient(); err != nil {
			return nil, err
		}
		privateKey = cfg.Signer.PrivateKey
	} else {
		if cfg.Network.RPCEndpoint == "" {
			return nil, fmt.Errorf("RPC endpoint is required")
		}
		if err := cfg.Network.Validate(); err != nil {
			return nil, err
		}
	}

	client, err := evm.NewClient(cfg.Network.RPCEndpoint, privateKey, logger)
	if err != nil {
		return nil, err
	}

	gateway, err := evm.NewGateway(client, &cfg.Network, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, gateway: gateway}, nil
}
