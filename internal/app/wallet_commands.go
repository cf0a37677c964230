package app

import (
	"github.com/spf13/cobra"

	"tradedesk/internal/chain"
	"tradedesk/internal/model"
)

func (s *runtimeState) newWalletCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage wallet connections per chain family",
	}
	cmd.AddCommand(s.newWalletConnectCommand())
	cmd.AddCommand(s.newWalletDisconnectCommand())
	cmd.AddCommand(s.newWalletSwitchCommand())
	cmd.AddCommand(s.newWalletStatusCommand())
	return cmd
}

func (s *runtimeState) newWalletConnectCommand() *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect the configured wallet for a chain family",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := trimRootPath(cmd.CommandPath())
			fam, err := chain.ParseFamily(family)
			if err != nil {
				return err
			}
			s.restoreWallets(cmd)
			if _, err := s.coordinator.Connect(cmd.Context(), fam); err != nil {
				return err
			}
			s.persistWallets()
			return s.emitSuccess(path, s.coordinator.Status(), nil, model.CacheStatus{Status: model.CacheBypass}, nil, false)
		},
	}
	cmd.Flags().StringVar(&family, "chain", "", "Chain family (evm or solana)")
	_ = cmd.MarkFlagRequired("chain")
	return cmd
}

func (s *runtimeState) newWalletDisconnectCommand() *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect the wallet for a chain family",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := trimRootPath(cmd.CommandPath())
			fam, err := chain.ParseFamily(family)
			if err != nil {
				return err
			}
			s.restoreWallets(cmd)
			if err := s.coordinator.Disconnect(fam); err != nil {
				return err
			}
			s.persistWallets()
			return s.emitSuccess(path, s.coordinator.Status(), nil, model.CacheStatus{Status: model.CacheBypass}, nil, false)
		},
	}
	cmd.Flags().StringVar(&family, "chain", "", "Chain family (evm or solana)")
	_ = cmd.MarkFlagRequired("chain")
	return cmd
}

func (s *runtimeState) newWalletSwitchCommand() *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:   "switch",
		Short: "Pin the active wallet to a connected chain family",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := trimRootPath(cmd.CommandPath())
			fam, err := chain.ParseFamily(family)
			if err != nil {
				return err
			}
			s.restoreWallets(cmd)
			if _, err := s.coordinator.SwitchActive(fam); err != nil {
				return err
			}
			s.persistWallets()
			return s.emitSuccess(path, s.coordinator.Status(), nil, model.CacheStatus{Status: model.CacheBypass}, nil, false)
		},
	}
	cmd.Flags().StringVar(&family, "chain", "", "Chain family (evm or solana)")
	_ = cmd.MarkFlagRequired("chain")
	return cmd
}

func (s *runtimeState) newWalletStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connection state and the active wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := trimRootPath(cmd.CommandPath())
			s.restoreWallets(cmd)
			return s.emitSuccess(path, s.coordinator.Status(), nil, model.CacheStatus{Status: model.CacheBypass}, nil, false)
		},
	}
}
