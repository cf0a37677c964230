package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tradedesk/internal/chain"
	apperr "tradedesk/internal/errors"
	"tradedesk/internal/model"
	"tradedesk/internal/sources"
)

type quoteData struct {
	Family        chain.Family       `json:"family"`
	FromToken     chain.Token        `json:"from_token"`
	ToToken       chain.Token        `json:"to_token"`
	AmountDecimal string             `json:"amount_decimal"`
	SlippageBps   uint16             `json:"slippage_bps"`
	Quotes        []model.Quote      `json:"quotes"`
	BestQuoteID   string             `json:"best_quote_id,omitempty"`
	PricesUSD     map[string]float64 `json:"prices_usd,omitempty"`
}

func (s *runtimeState) newQuoteCommand() *cobra.Command {
	var (
		family      string
		from        string
		to          string
		amount      string
		slippageBps uint16
		withUSD     bool
	)

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Fetch and rank swap quotes across sources",
		Example: `  tradedesk quote --chain evm --from ETH --to USDC --amount 1.5
  tradedesk quote --chain solana --from SOL --to USDC --amount 10 --slippage-bps 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := trimRootPath(cmd.CommandPath())

			fam, err := chain.ParseFamily(family)
			if err != nil {
				return err
			}
			fromTok, err := s.resolver.Resolve(fam, from)
			if err != nil {
				return err
			}
			toTok, err := s.resolver.Resolve(fam, to)
			if err != nil {
				return err
			}
			base, err := chain.ParseAmount(amount, fromTok.Decimals)
			if err != nil {
				return err
			}
			if slippageBps == 0 {
				slippageBps = s.settings.DefaultSlippageBps
			}
			if slippageBps > 5000 {
				return apperr.New(apperr.CodeValidation, "slippage must be between 1 and 5000 bps")
			}

			req := sources.Request{
				FromToken:       fromTok,
				ToToken:         toTok,
				AmountBaseUnits: base.String(),
				AmountDecimal:   chain.NormalizeDecimal(amount),
				SlippageBps:     slippageBps,
			}
			if !s.settings.CacheEnabled {
				s.agg.Invalidate(fam, req)
			}

			res, err := s.agg.Quotes(cmd.Context(), fam, req)
			warnings := sourceWarnings(res.Sources)
			if err != nil {
				return s.failWith(path, err, warnings, res.Sources, false)
			}

			cacheStatus := res.Cache
			if !s.settings.CacheEnabled {
				cacheStatus = model.CacheStatus{Status: model.CacheBypass}
			}

			data := quoteData{
				Family:        fam,
				FromToken:     fromTok,
				ToToken:       toTok,
				AmountDecimal: req.AmountDecimal,
				SlippageBps:   slippageBps,
				Quotes:        res.Quotes,
			}
			if len(res.Quotes) > 0 {
				data.BestQuoteID = res.Quotes[0].ID
			}
			if withUSD {
				prices, perr := s.pricer.Prices(cmd.Context(), []chain.Token{fromTok, toTok})
				if perr != nil {
					s.log.Warn("price lookup failed", zap.Error(perr))
					warnings = append(warnings, "usd prices unavailable: "+perr.Error())
				} else {
					data.PricesUSD = prices
				}
			}

			partial := len(res.Quotes) > 0 && len(warnings) > 0
			return s.emitSuccess(path, data, warnings, cacheStatus, res.Sources, partial)
		},
	}

	cmd.Flags().StringVar(&family, "chain", "", "Chain family (evm or solana)")
	cmd.Flags().StringVar(&from, "from", "", "Input token symbol or address")
	cmd.Flags().StringVar(&to, "to", "", "Output token symbol or address")
	cmd.Flags().StringVar(&amount, "amount", "", "Input amount in decimal units")
	cmd.Flags().Uint16Var(&slippageBps, "slippage-bps", 0, "Slippage tolerance in basis points")
	cmd.Flags().BoolVar(&withUSD, "usd", false, "Attach USD reference prices for the pair")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func sourceWarnings(statuses []model.SourceStatus) []string {
	var warnings []string
	for _, st := range statuses {
		if st.Status == model.SourceOK {
			continue
		}
		msg := fmt.Sprintf("source %s: %s", st.Name, st.Status)
		if st.Error != "" {
			msg += ": " + st.Error
		}
		warnings = append(warnings, msg)
	}
	return warnings
}
