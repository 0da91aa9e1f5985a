// Package position implements the pure bookkeeping math for open exposures:
// volume-weighted entry prices on buys, share reduction on sells, and
// mark-to-market valuation. All arithmetic is exact decimal; binary floats
// never touch share or balance accounting.
package position

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Book is the share count and average entry price of one (agent, market, side)
// exposure.
type Book struct {
	Shares     decimal.Decimal
	EntryPrice decimal.Decimal
}

// ApplyBuy adds sizeUSD worth of shares bought at price and returns the
// updated book. On an existing position the entry price becomes the
// size-weighted average:
//
//	newEntry = (oldShares*oldEntry + sizeUSD) / (oldShares + newShares)
func (b Book) ApplyBuy(sizeUSD, price decimal.Decimal) (Book, error) {
	if !price.IsPositive() {
		return b, fmt.Errorf("position.ApplyBuy: non-positive price %s", price)
	}
	newShares := sizeUSD.Div(price)
	if b.Shares.IsZero() {
		return Book{Shares: newShares, EntryPrice: price}, nil
	}
	totalShares := b.Shares.Add(newShares)
	costBasis := b.Shares.Mul(b.EntryPrice).Add(sizeUSD)
	return Book{
		Shares:     totalShares,
		EntryPrice: costBasis.Div(totalShares),
	}, nil
}

// ApplySell removes sizeUSD worth of shares sold at price and returns the
// updated book. The entry price is unchanged; only the share count shrinks.
// Selling more than the position holds is a caller bug, validated upstream.
func (b Book) ApplySell(sizeUSD, price decimal.Decimal) (Book, error) {
	if !price.IsPositive() {
		return b, fmt.Errorf("position.ApplySell: non-positive price %s", price)
	}
	soldShares := sizeUSD.Div(price)
	remaining := b.Shares.Sub(soldShares)
	if remaining.IsNegative() {
		return b, fmt.Errorf("position.ApplySell: %s shares requested, %s held", soldShares, b.Shares)
	}
	return Book{Shares: remaining, EntryPrice: b.EntryPrice}, nil
}

// IsDust reports whether the remaining share count has fallen below epsilon
// and the position should be removed rather than carried forward.
func (b Book) IsDust(epsilon decimal.Decimal) bool {
	return b.Shares.LessThan(epsilon)
}

// Value returns the mark-to-market value of the book at the given price.
func (b Book) Value(price decimal.Decimal) decimal.Decimal {
	return b.Shares.Mul(price)
}

// UnrealizedPnL returns (price - entry) * shares at the given price.
func (b Book) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(b.EntryPrice).Mul(b.Shares)
}
