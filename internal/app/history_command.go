package app

import (
	"github.com/spf13/cobra"

	apperr "tradedesk/internal/errors"
	"tradedesk/internal/model"
)

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded trades",
	}
	cmd.AddCommand(s.newHistoryListCommand())
	cmd.AddCommand(s.newHistoryShowCommand())
	return cmd
}

func (s *runtimeState) newHistoryListCommand() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded trades, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := trimRootPath(cmd.CommandPath())
			if status != "" && status != model.TradePending && status != model.TradeConfirmed && status != model.TradeFailed {
				return apperr.New(apperr.CodeValidation, "status must be pending, confirmed or failed")
			}
			trades, err := s.history.List(status, limit)
			if err != nil {
				return err
			}
			return s.emitSuccess(path, trades, nil, model.CacheStatus{Status: model.CacheBypass}, nil, false)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, confirmed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to return (default 20)")
	return cmd
}

func (s *runtimeState) newHistoryShowCommand() *cobra.Command {
	var tradeID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a single recorded trade",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := trimRootPath(cmd.CommandPath())
			trade, err := s.history.Get(tradeID)
			if err != nil {
				return err
			}
			return s.emitSuccess(path, trade, nil, model.CacheStatus{Status: model.CacheBypass}, nil, false)
		},
	}
	cmd.Flags().StringVar(&tradeID, "id", "", "Trade identifier")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
