package app

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"tradedesk/internal/aggregator"
	"tradedesk/internal/chain"
	"tradedesk/internal/config"
	apperr "tradedesk/internal/errors"
	"tradedesk/internal/history"
	"tradedesk/internal/httpx"
	"tradedesk/internal/logging"
	"tradedesk/internal/model"
	"tradedesk/internal/out"
	"tradedesk/internal/pricing"
	"tradedesk/internal/ratelimit"
	"tradedesk/internal/sources"
	"tradedesk/internal/sources/jupiter"
	"tradedesk/internal/sources/oneinch"
	"tradedesk/internal/sources/uniswap"
	"tradedesk/internal/trading"
	"tradedesk/internal/version"
	"tradedesk/internal/wallet"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	root        *cobra.Command
	lastCommand string

	log          *zap.Logger
	resolver     *chain.Resolver
	registry     *sources.Registry
	agg          *aggregator.Aggregator
	history      *history.Store
	coordinator  *wallet.Coordinator
	orchestrator *trading.Orchestrator
	pricer       *pricing.Client
	sourceInfos  []model.SourceInfo
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	state.close()
	if err == nil {
		return 0
	}
	var rendered *renderedError
	if errors.As(err, &rendered) {
		return apperr.ExitCode(rendered.cause)
	}
	err = normalizeRunError(err)
	state.renderError("", err, nil, nil, false)
	return apperr.ExitCode(err)
}

// renderedError marks an error whose envelope was already written by the
// command, with per-source context the generic path does not have.
type renderedError struct{ cause error }

func (e *renderedError) Error() string { return e.cause.Error() }
func (e *renderedError) Unwrap() error { return e.cause }

// failWith renders the error envelope with source statuses attached and
// returns a marker so Run does not render it a second time.
func (s *runtimeState) failWith(commandPath string, err error, warnings []string, srcStatuses []model.SourceStatus, partial bool) error {
	s.renderError(commandPath, err, warnings, srcStatuses, partial)
	return &renderedError{cause: err}
}

func (s *runtimeState) close() {
	if s.history != nil {
		_ = s.history.Close()
	}
	if s.log != nil {
		_ = s.log.Sync()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Cross-chain swap quoting and trading CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return apperr.Wrap(apperr.CodeValidation, "load configuration", err)
			}
			s.settings = settings
			s.lastCommand = trimRootPath(cmd.CommandPath())
			return s.initComponents()
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return apperr.Wrap(apperr.CodeValidation, "parse flags", err)
	})
	// Accept snake_case spellings of every flag.
	cmd.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Source request timeout")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (silent, error, info, debug)")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Bypass the quote cache")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newQuoteCommand())
	cmd.AddCommand(s.newTradeCommand())
	cmd.AddCommand(s.newWalletCommand())
	cmd.AddCommand(s.newHistoryCommand())
	cmd.AddCommand(s.newSourcesCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// initComponents wires the runtime once per invocation, after configuration
// is known. Previously restored wallet connections come back from the
// history store so the session survives across processes.
func (s *runtimeState) initComponents() error {
	if s.agg != nil {
		return nil
	}

	log, err := logging.New(s.settings.LogLevel)
	if err != nil {
		return apperr.Wrap(apperr.CodeValidation, "configure logging", err)
	}
	s.log = log

	httpClient := httpx.New(s.settings.Timeout)
	s.resolver = chain.NewResolver()
	s.pricer = pricing.New(httpClient)

	s.registry = sources.NewRegistry()
	oneinchClient := oneinch.New(httpClient, s.settings.OneInchAPIKey, s.settings.EVMChainID)
	uniswapClient := uniswap.New(httpClient, s.settings.UniswapAPIKey, s.settings.EVMChainID)
	jupiterClient := jupiter.New(httpClient, s.settings.JupiterAPIKey)
	s.registry.Register(oneinchClient)
	s.registry.Register(uniswapClient)
	s.registry.Register(jupiterClient)
	s.sourceInfos = []model.SourceInfo{
		oneinchClient.Info(),
		uniswapClient.Info(),
		jupiterClient.Info(),
	}

	limiter := ratelimit.New(s.settings.SourceRateLimit, s.settings.RateWindow)
	s.agg = aggregator.New(s.registry, limiter, log,
		aggregator.WithTTL(s.settings.QuoteTTL),
		aggregator.WithSourceTimeout(s.settings.SourceTimeout),
	)

	store, err := history.Open(s.settings.HistoryPath, s.settings.HistoryLockPath)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "open history store", err)
	}
	s.history = store

	s.coordinator = wallet.NewCoordinator(log,
		wallet.NewStaticConnector(chain.FamilyEVM, s.settings.EVMWalletAddress, s.settings.EVMWalletName),
		wallet.NewStaticConnector(chain.FamilySolana, s.settings.SolWalletAddress, s.settings.SolWalletName),
	)

	s.orchestrator = trading.NewOrchestrator(log, s.agg, s.coordinator, s.resolver,
		trading.NewSourceExecutor(s.registry), store,
		trading.WithDebounce(s.settings.DebounceWindow),
	)
	return nil
}

func (s *runtimeState) restoreWallets(cmd *cobra.Command) {
	snap, err := s.history.WalletSnapshot()
	if err != nil {
		s.log.Warn("could not read wallet session", zap.Error(err))
		return
	}
	s.coordinator.Restore(cmd.Context(), snap)
}

func (s *runtimeState) persistWallets() {
	if err := s.history.SaveWalletSnapshot(s.coordinator.Snapshot()); err != nil {
		s.log.Warn("could not persist wallet session", zap.Error(err))
	}
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus, srcStatuses []model.SourceStatus, partial bool) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Sources:   srcStatuses,
			Cache:     cacheStatus,
			Partial:   partial,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string, srcStatuses []model.SourceStatus, partial bool) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	message := err.Error()
	if typed, ok := apperr.As(err); ok {
		message = typed.Message
		if typed.Cause != nil {
			message = fmt.Sprintf("%s: %v", typed.Message, typed.Cause)
		}
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    apperr.ExitCode(err),
			Type:    apperr.TypeLabel(err),
			Message: message,
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Sources:   srcStatuses,
			Cache:     model.CacheStatus{Status: model.CacheBypass},
			Partial:   partial,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return apperr.Wrap(apperr.CodeValidation, "invalid command input", err)
	}
	return apperr.Wrap(apperr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
		"required flag(s)",
		"invalid argument",
		"accepts at most",
		"accepts between",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
