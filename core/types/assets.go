package types

import (
	"strings"

	"github.com/pkg/errors"
)

// Asset is an asset symbol, e.g. "BTC".
type Asset string

// AccountGuid identifies an account.
type AccountGuid int64

// OrderGuid identifies an order. Guids are assigned by the caller and must be
// unique within a market.
type OrderGuid int64

// MarketID is a market identifier of the form "BASE/QUOTE".
type MarketID string

var ErrInvalidMarketID = errors.New("market id must be of the form BASE/QUOTE")

func (id MarketID) Validate() error {
	base, quote, ok := strings.Cut(string(id), "/")
	if !ok || base == "" || quote == "" {
		return errors.Wrapf(ErrInvalidMarketID, "%q", string(id))
	}
	return nil
}

// Assets returns the base and quote assets of the market.
func (id MarketID) Assets() (Asset, Asset) {
	base, quote, _ := strings.Cut(string(id), "/")
	return Asset(base), Asset(quote)
}

func (id MarketID) BaseAsset() Asset {
	base, _ := id.Assets()
	return base
}

func (id MarketID) QuoteAsset() Asset {
	_, quote := id.Assets()
	return quote
}

func (id MarketID) String() string {
	return string(id)
}
