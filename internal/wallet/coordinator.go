package wallet

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tradedesk/internal/chain"
	apperr "tradedesk/internal/errors"
	"tradedesk/internal/model"
)

// Connection states across both families.
const (
	StateDisconnected = "disconnected"
	StateEVMOnly      = "evm-only"
	StateSolanaOnly   = "solana-only"
	StateBoth         = "both"
)

// Coordinator tracks which wallets are connected and which family is active.
//
// The first connected family becomes active and stays active when the other
// family connects; connecting never switches the selection implicitly. An
// explicit switch is sticky and survives further connects; it is cleared only
// when the chosen family disconnects, at which point the remaining connected
// family, if any, takes over. As long as any wallet is connected the
// coordinator reports an active wallet.
type Coordinator struct {
	mu         sync.Mutex
	log        *zap.Logger
	connectors map[chain.Family]Connector
	wallets    map[chain.Family]model.Wallet
	order      []chain.Family
	override   chain.Family
}

func NewCoordinator(log *zap.Logger, connectors ...Connector) *Coordinator {
	c := &Coordinator{
		log:        log,
		connectors: make(map[chain.Family]Connector),
		wallets:    make(map[chain.Family]model.Wallet),
	}
	for _, conn := range connectors {
		c.connectors[conn.Family()] = conn
	}
	return c
}

// Connect attaches the family's wallet. Reconnecting an already connected
// family refreshes the wallet and keeps its place in the fallback order.
func (c *Coordinator) Connect(ctx context.Context, family chain.Family) (model.Wallet, error) {
	if !family.Valid() {
		return model.Wallet{}, apperr.New(apperr.CodeUnsupportedChain, fmt.Sprintf("unsupported chain family: %s", family))
	}

	c.mu.Lock()
	conn, ok := c.connectors[family]
	c.mu.Unlock()
	if !ok {
		return model.Wallet{}, apperr.New(apperr.CodeWalletNotConnected, fmt.Sprintf("no %s wallet configured", family))
	}

	w, err := conn.Connect(ctx)
	if err != nil {
		return model.Wallet{}, err
	}

	c.mu.Lock()
	c.wallets[family] = w
	c.recordConnectLocked(family)
	active := c.activeFamilyLocked()
	c.mu.Unlock()

	c.log.Info("wallet connected",
		zap.String("family", string(family)),
		zap.String("address", w.Address),
		zap.String("active", string(active)))
	return w, nil
}

// Disconnect detaches the family's wallet. If the explicit switch pointed at
// this family it is cleared, and the other family becomes active when
// connected.
func (c *Coordinator) Disconnect(family chain.Family) error {
	if !family.Valid() {
		return apperr.New(apperr.CodeUnsupportedChain, fmt.Sprintf("unsupported chain family: %s", family))
	}

	c.mu.Lock()
	if _, ok := c.wallets[family]; !ok {
		c.mu.Unlock()
		return apperr.New(apperr.CodeWalletNotConnected, fmt.Sprintf("no %s wallet connected", family))
	}
	delete(c.wallets, family)
	c.dropConnectLocked(family)
	if c.override == family {
		c.override = ""
	}
	active := c.activeFamilyLocked()
	c.mu.Unlock()

	c.log.Info("wallet disconnected",
		zap.String("family", string(family)),
		zap.String("active", string(active)))
	return nil
}

// SwitchActive pins the active family explicitly. Switching to a family with
// no connected wallet fails and leaves the current selection untouched.
func (c *Coordinator) SwitchActive(family chain.Family) (model.Wallet, error) {
	if !family.Valid() {
		return model.Wallet{}, apperr.New(apperr.CodeUnsupportedChain, fmt.Sprintf("unsupported chain family: %s", family))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.wallets[family]
	if !ok {
		return model.Wallet{}, apperr.New(apperr.CodeWalletNotConnected,
			fmt.Sprintf("cannot switch to %s, no wallet connected", family))
	}
	c.override = family
	return w, nil
}

// Active returns the wallet of the active family.
func (c *Coordinator) Active() (model.Wallet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	family := c.activeFamilyLocked()
	if family == "" {
		return model.Wallet{}, false
	}
	return c.wallets[family], true
}

func (c *Coordinator) ActiveFamily() chain.Family {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeFamilyLocked()
}

// Wallet returns the connected wallet for a family, active or not.
func (c *Coordinator) Wallet(family chain.Family) (model.Wallet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.wallets[family]
	return w, ok
}

// State reports the combined connection state.
func (c *Coordinator) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, evm := c.wallets[chain.FamilyEVM]
	_, sol := c.wallets[chain.FamilySolana]
	switch {
	case evm && sol:
		return StateBoth
	case evm:
		return StateEVMOnly
	case sol:
		return StateSolanaOnly
	default:
		return StateDisconnected
	}
}

// Status is the full picture for rendering.
type Status struct {
	State        string         `json:"state"`
	ActiveFamily chain.Family   `json:"active_family,omitempty"`
	Pinned       bool           `json:"pinned"`
	Wallets      []model.Wallet `json:"wallets,omitempty"`
}

func (c *Coordinator) Status() Status {
	state := c.State()

	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:        state,
		ActiveFamily: c.activeFamilyLocked(),
		Pinned:       c.override != "",
	}
	for _, family := range chain.Families() {
		if w, ok := c.wallets[family]; ok {
			st.Wallets = append(st.Wallets, w)
		}
	}
	return st
}

// Snapshot captures connection state for persistence across invocations.
type Snapshot struct {
	Connected []chain.Family `json:"connected"`
	Override  chain.Family   `json:"override,omitempty"`
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{Override: c.override}
	snap.Connected = append(snap.Connected, c.order...)
	return snap
}

// Restore replays a snapshot through the configured connectors. Families
// whose connector fails are skipped; the override is kept only if its family
// reconnected.
func (c *Coordinator) Restore(ctx context.Context, snap Snapshot) {
	for _, family := range snap.Connected {
		if _, err := c.Connect(ctx, family); err != nil {
			c.log.Warn("could not restore wallet connection",
				zap.String("family", string(family)), zap.Error(err))
		}
	}
	if snap.Override != "" {
		if _, err := c.SwitchActive(snap.Override); err != nil {
			c.log.Warn("could not restore active wallet selection",
				zap.String("family", string(snap.Override)))
		}
	}
}

// activeFamilyLocked resolves the selection: the explicit override when its
// wallet is still connected, otherwise the earliest surviving connection.
func (c *Coordinator) activeFamilyLocked() chain.Family {
	if c.override != "" {
		if _, ok := c.wallets[c.override]; ok {
			return c.override
		}
	}
	if len(c.order) == 0 {
		return ""
	}
	return c.order[0]
}

func (c *Coordinator) recordConnectLocked(family chain.Family) {
	for _, f := range c.order {
		if f == family {
			return
		}
	}
	c.order = append(c.order, family)
}

func (c *Coordinator) dropConnectLocked(family chain.Family) {
	for i, f := range c.order {
		if f == family {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
