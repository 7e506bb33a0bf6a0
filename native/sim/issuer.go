package sim

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"flashliq/native/flash"
	"flashliq/state"
)

var basisPoints = big.NewInt(10_000)

// Issuer is an in-process proxy-token issuer. It pulls the underlying from
// the supplier through the allowance it was granted and mints proxy tokens
// back, optionally shaving a fee so the minted amount diverges from the
// nominal supply — which is exactly what the engine's balance differencing
// is there to catch.
type Issuer struct {
	state      *state.Manager
	token      common.Address
	underlying common.Address
	supplier   common.Address
	mintFeeBps uint64
}

// NewIssuer constructs an issuer identified by (and minting) token, backed
// by the given underlying asset, supplying on behalf of supplier.
func NewIssuer(st *state.Manager, token, underlying, supplier common.Address) *Issuer {
	return &Issuer{state: st, token: token, underlying: underlying, supplier: supplier}
}

// SetMintFeeBps configures the haircut applied to the minted amount.
func (i *Issuer) SetMintFeeBps(bps uint64) {
	if i == nil || bps > 10_000 {
		return
	}
	i.mintFeeBps = bps
}

// Token returns the proxy token identity, which doubles as the allowance
// spender the supplier must approve.
func (i *Issuer) Token() common.Address { return i.token }

// SupplyUnderlying pulls amount of the underlying from the supplier and
// mints proxy tokens to them.
func (i *Issuer) SupplyUnderlying(amount *big.Int) error {
	if i == nil || i.state == nil {
		return errors.New("sim issuer: not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("sim issuer: amount must be positive")
	}
	if err := i.state.TransferFrom(i.underlying, i.token, i.supplier, i.token, amount); err != nil {
		return fmt.Errorf("sim issuer: pull underlying: %w", err)
	}
	minted := new(big.Int).Set(amount)
	if i.mintFeeBps > 0 {
		fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(i.mintFeeBps))
		fee.Quo(fee, basisPoints)
		minted.Sub(minted, fee)
	}
	return i.state.Mint(i.token, i.supplier, minted)
}

// IssuerSet resolves issuers by proxy-token identity.
type IssuerSet struct {
	issuers map[common.Address]*Issuer
}

// NewIssuerSet constructs an empty resolver.
func NewIssuerSet() *IssuerSet {
	return &IssuerSet{issuers: make(map[common.Address]*Issuer)}
}

// Register adds the issuer under its token identity.
func (s *IssuerSet) Register(issuer *Issuer) {
	if s == nil || issuer == nil {
		return
	}
	s.issuers[issuer.Token()] = issuer
}

// IssuerFor implements flash.IssuerRegistry.
func (s *IssuerSet) IssuerFor(token common.Address) (flash.ProxyIssuer, error) {
	if s == nil {
		return nil, errors.New("sim issuer: no issuers registered")
	}
	issuer, ok := s.issuers[token]
	if !ok {
		return nil, fmt.Errorf("sim issuer: unknown proxy token %s", token.Hex())
	}
	return issuer, nil
}
