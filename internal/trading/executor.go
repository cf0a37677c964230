package trading

import (
	"context"
	"fmt"

	apperr "tradedesk/internal/errors"
	"tradedesk/internal/model"
	"tradedesk/internal/sources"
)

// Executor turns a selected quote into a signable transaction.
type Executor interface {
	Execute(ctx context.Context, quote model.Quote, w model.Wallet) (sources.SwapTx, error)
}

// SourceExecutor delegates execution back to the source that produced the
// quote. A quote can only be executed by its own venue; payloads are not
// portable between sources.
type SourceExecutor struct {
	registry *sources.Registry
}

func NewSourceExecutor(registry *sources.Registry) *SourceExecutor {
	return &SourceExecutor{registry: registry}
}

func (e *SourceExecutor) Execute(ctx context.Context, quote model.Quote, w model.Wallet) (sources.SwapTx, error) {
	src, ok := e.registry.Get(quote.Source)
	if !ok {
		return sources.SwapTx{}, apperr.New(apperr.CodeExecutionFailed,
			fmt.Sprintf("quote source %s is no longer registered", quote.Source))
	}
	builder, ok := src.(sources.SwapBuilder)
	if !ok {
		return sources.SwapTx{}, apperr.New(apperr.CodeExecutionFailed,
			fmt.Sprintf("source %s cannot build swap transactions", quote.Source))
	}
	tx, err := builder.BuildSwap(ctx, quote, w.Address)
	if err != nil {
		if _, typed := apperr.As(err); typed {
			return sources.SwapTx{}, err
		}
		return sources.SwapTx{}, apperr.Wrap(apperr.CodeExecutionFailed, "build swap transaction", err)
	}
	return tx, nil
}
