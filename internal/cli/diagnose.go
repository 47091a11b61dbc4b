package cli

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"

	"stakeflow/internal/stake"
)

// chainReader is the read-only view of the router and tokens used by diagnostics
type chainReader interface {
	Account() common.Address
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	SupportedAdapter(ctx context.Context, adapter common.Address) (bool, error)
	GetProtocolBalance(ctx context.Context, adapter, token, user common.Address) (*big.Int, error)
}

// Diagnosis is the pre-flight view of a planned stake
type Diagnosis struct {
	Account          common.Address
	Balance          *big.Int
	Allowance        *big.Int
	ProtocolBalance  *big.Int
	AdapterSupported bool
	Amount           *big.Int
	Decimals         uint8
}

// BalanceCovers reports whether the wallet holds the planned amount
func (d *Diagnosis) BalanceCovers() bool {
	return d.Balance.Cmp(d.Amount) >= 0
}

// AllowanceCovers reports whether an approval is already in place for the amount
func (d *Diagnosis) AllowanceCovers() bool {
	return d.Allowance.Cmp(d.Amount) >= 0
}

// Problems lists what would make the stake fail
func (d *Diagnosis) Problems() []string {
	var problems []string
	if !d.AdapterSupported {
		problems = append(problems, "adapter is not supported by the router")
	}
	if !d.BalanceCovers() {
		problems = append(problems, fmt.Sprintf("insufficient balance: have %s, need %s",
			stake.FormatUnits(d.Balance, d.Decimals), stake.FormatUnits(d.Amount, d.Decimals)))
	}
	return problems
}

func diagnose(ctx context.Context, chain chainReader, router, token, adapter common.Address, amount *big.Int, decimals uint8) (*Diagnosis, error) {
	account := chain.Account()

	balance, err := chain.BalanceOf(ctx, token, account)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}

	allowance, err := chain.Allowance(ctx, token, account, router)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowance: %w", err)
	}

	supported, err := chain.SupportedAdapter(ctx, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to check adapter: %w", err)
	}

	protocolBalance := new(big.Int)
	if supported {
		protocolBalance, err = chain.GetProtocolBalance(ctx, adapter, token, account)
		if err != nil {
			return nil, fmt.Errorf("failed to read protocol balance: %w", err)
		}
	}

	return &Diagnosis{
		Account:          account,
		Balance:          balance,
		Allowance:        allowance,
		ProtocolBalance:  protocolBalance,
		AdapterSupported: supported,
		Amount:           amount,
		Decimals:         decimals,
	}, nil
}

func printDiagnosis(w io.Writer, d *Diagnosis) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ACCOUNT\t%s\n", d.Account.Hex())
	fmt.Fprintf(tw, "AMOUNT\t%s\n", stake.FormatUnits(d.Amount, d.Decimals))
	fmt.Fprintf(tw, "BALANCE\t%s\t%s\n", stake.FormatUnits(d.Balance, d.Decimals), coverage(d.BalanceCovers()))
	fmt.Fprintf(tw, "ALLOWANCE\t%s\t%s\n", stake.FormatUnits(d.Allowance, d.Decimals), approvalNote(d.AllowanceCovers()))
	fmt.Fprintf(tw, "ADAPTER SUPPORTED\t%t\n", d.AdapterSupported)
	fmt.Fprintf(tw, "STAKED\t%s\n", stake.FormatUnits(d.ProtocolBalance, d.Decimals))
	if err := tw.Flush(); err != nil {
		return err
	}

	problems := d.Problems()
	if len(problems) == 0 {
		fmt.Fprintln(w, "Ready to stake")
		return nil
	}
	for _, p := range problems {
		fmt.Fprintf(w, "Problem: %s\n", p)
	}
	return nil
}

func coverage(ok bool) string {
	if ok {
		return "ok"
	}
	return "insufficient"
}

func approvalNote(ok bool) string {
	if ok {
		return "ok"
	}
	return "approval will be sent"
}
