package wallet

import (
	"context"
	"fmt"

	"tradedesk/internal/chain"
	apperr "tradedesk/internal/errors"
	"tradedesk/internal/model"
)

// Connector produces a connected wallet for one chain family.
type Connector interface {
	Family() chain.Family
	Connect(ctx context.Context) (model.Wallet, error)
}

// StaticConnector serves a preconfigured address, the usual setup for a CLI
// where keys live in an external signer.
type StaticConnector struct {
	family      chain.Family
	address     string
	displayName string
}

func NewStaticConnector(family chain.Family, address, displayName string) *StaticConnector {
	return &StaticConnector{family: family, address: address, displayName: displayName}
}

func (s *StaticConnector) Family() chain.Family { return s.family }

func (s *StaticConnector) Connect(ctx context.Context) (model.Wallet, error) {
	if s.address == "" {
		return model.Wallet{}, apperr.New(apperr.CodeValidation,
			fmt.Sprintf("no %s wallet address configured", s.family))
	}
	if err := chain.ValidateAddress(s.family, s.address); err != nil {
		return model.Wallet{}, err
	}
	return model.Wallet{
		Family:      s.family,
		Address:     chain.NormalizeAddress(s.family, s.address),
		DisplayName: s.displayName,
		Connected:   true,
	}, nil
}
