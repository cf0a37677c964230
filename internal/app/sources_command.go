package app

import (
	"github.com/spf13/cobra"

	"tradedesk/internal/model"
)

func (s *runtimeState) newSourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect configured quote sources",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List quote sources and their capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := trimRootPath(cmd.CommandPath())
			return s.emitSuccess(path, s.sourceInfos, nil, model.CacheStatus{Status: model.CacheBypass}, nil, false)
		},
	})
	return cmd
}
