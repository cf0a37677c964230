package app

import (
	"github.com/spf13/cobra"

	"tradedesk/internal/chain"
	apperr "tradedesk/internal/errors"
	"tradedesk/internal/model"
	"tradedesk/internal/sources"
)

type executeData struct {
	Trade model.Trade    `json:"trade"`
	Tx    sources.SwapTx `json:"tx"`
	Quote model.Quote    `json:"quote"`
}

func (s *runtimeState) newTradeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Execute swaps and settle recorded trades",
	}
	cmd.AddCommand(s.newTradeExecuteCommand())
	cmd.AddCommand(s.newTradeUpdateCommand())
	return cmd
}

func (s *runtimeState) newTradeExecuteCommand() *cobra.Command {
	var (
		family      string
		from        string
		to          string
		amount      string
		slippageBps uint16
		quoteID     string
	)

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Fetch quotes and execute a swap with the active wallet",
		Example: `  tradedesk trade execute --chain evm --from ETH --to USDC --amount 0.5
  tradedesk trade execute --chain solana --from SOL --to USDC --amount 2 --quote a1b2c3d4e5f60718`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := trimRootPath(cmd.CommandPath())
			s.restoreWallets(cmd)

			fam, err := chain.ParseFamily(family)
			if err != nil {
				return err
			}
			if err := s.orchestrator.SetFromToken(fam, from); err != nil {
				return err
			}
			if err := s.orchestrator.SetToToken(fam, to); err != nil {
				return err
			}
			if err := s.orchestrator.SetAmount(amount); err != nil {
				return err
			}
			if slippageBps == 0 {
				slippageBps = s.settings.DefaultSlippageBps
			}
			if err := s.orchestrator.SetSlippage(slippageBps); err != nil {
				return err
			}

			if err := s.orchestrator.Refresh(cmd.Context()); err != nil {
				view := s.orchestrator.View()
				return s.failWith(path, err, sourceWarnings(view.Sources), view.Sources, false)
			}
			if quoteID != "" {
				if err := s.orchestrator.SelectQuote(quoteID); err != nil {
					return err
				}
			}

			trade, tx, err := s.orchestrator.ExecuteSwap(cmd.Context())
			view := s.orchestrator.View()
			warnings := sourceWarnings(view.Sources)
			if err != nil {
				return s.failWith(path, err, warnings, view.Sources, false)
			}

			var executed model.Quote
			for _, q := range view.Quotes {
				if q.ID == trade.QuoteID {
					executed = q
					break
				}
			}
			data := executeData{Trade: trade, Tx: tx, Quote: executed}
			return s.emitSuccess(path, data, warnings, model.CacheStatus{Status: model.CacheBypass}, view.Sources, len(warnings) > 0)
		},
	}

	cmd.Flags().StringVar(&family, "chain", "", "Chain family (evm or solana)")
	cmd.Flags().StringVar(&from, "from", "", "Input token symbol or address")
	cmd.Flags().StringVar(&to, "to", "", "Output token symbol or address")
	cmd.Flags().StringVar(&amount, "amount", "", "Input amount in decimal units")
	cmd.Flags().Uint16Var(&slippageBps, "slippage-bps", 0, "Slippage tolerance in basis points")
	cmd.Flags().StringVar(&quoteID, "quote", "", "Execute a specific quote instead of the best ranked one")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *runtimeState) newTradeUpdateCommand() *cobra.Command {
	var (
		tradeID string
		status  string
		txHash  string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Settle a pending trade as confirmed or failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := trimRootPath(cmd.CommandPath())
			if status != model.TradeConfirmed && status != model.TradeFailed {
				return apperr.New(apperr.CodeValidation, "status must be confirmed or failed")
			}
			trade, err := s.history.UpdateStatus(tradeID, status, txHash)
			if err != nil {
				return err
			}
			return s.emitSuccess(path, trade, nil, model.CacheStatus{Status: model.CacheBypass}, nil, false)
		},
	}

	cmd.Flags().StringVar(&tradeID, "id", "", "Trade identifier")
	cmd.Flags().StringVar(&status, "status", "", "New status (confirmed or failed)")
	cmd.Flags().StringVar(&txHash, "tx-hash", "", "On-chain transaction hash")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}
