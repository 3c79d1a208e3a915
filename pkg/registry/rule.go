// Package registry holds the configured set of qualifying assets.
//
// The registry is append-only: rules are registered once and never removed.
// Each contract address carries an enabled flag in a separate lookup index,
// so disabling an asset is an O(1) flag flip while the full registration
// history stays intact for auditing.
package registry

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Standard identifies the ownership semantics of a qualifying asset.
type Standard uint8

const (
	StandardERC721 Standard = iota
	StandardERC1155
	StandardERC20
)

func (s Standard) String() string {
	switch s {
	case StandardERC721:
		return "erc721"
	case StandardERC1155:
		return "erc1155"
	case StandardERC20:
		return "erc20"
	default:
		return fmt.Sprintf("standard(%d)", uint8(s))
	}
}

// ParseStandard converts a wire label into a Standard. Unknown labels are
// rejected rather than coerced.
func ParseStandard(label string) (Standard, error) {
	switch label {
	case "erc721":
		return StandardERC721, nil
	case "erc1155":
		return StandardERC1155, nil
	case "erc20":
		return StandardERC20, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAssetType, label)
	}
}

// Registration validation errors.
var (
	ErrUnsupportedAssetType = errors.New("unsupported asset type")
	ErrMissingTokenID       = errors.New("token id required")
	ErrMissingAmount        = errors.New("minimum amount required")
	ErrUnknownAsset         = errors.New("asset not registered or already disabled")
)

// AssetRule is one configured qualifying asset.
type AssetRule struct {
	// Contract is the external asset contract being queried.
	Contract common.Address

	// Standard selects the holding-check procedure.
	Standard Standard

	// TokenID binds the rule to a specific token instance. Required for
	// ERC-1155, optional for ERC-721 (nil means any token of the
	// collection), ignored for ERC-20.
	TokenID *big.Int

	// Lifetime marks the rule as permanently qualifying rather than
	// consumable. Consumption is not implemented; every registered rule
	// is lifetime today.
	Lifetime bool

	// MinAmount is the strict lower bound on the holder's balance for
	// ERC-20 and ERC-1155 checks. Must be positive for ERC-20.
	MinAmount *big.Int
}

// Validate checks the rule's internal consistency before registration.
func (r AssetRule) Validate() error {
	switch r.Standard {
	case StandardERC721:
		if r.TokenID != nil && r.TokenID.Sign() < 0 {
			return fmt.Errorf("%w: negative token id", ErrMissingTokenID)
		}
	case StandardERC1155:
		if r.TokenID == nil || r.TokenID.Sign() < 0 {
			return ErrMissingTokenID
		}
		if r.MinAmount != nil && r.MinAmount.Sign() < 0 {
			return fmt.Errorf("%w: negative minimum", ErrMissingAmount)
		}
	case StandardERC20:
		if r.MinAmount == nil || r.MinAmount.Sign() <= 0 {
			return ErrMissingAmount
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAssetType, r.Standard)
	}
	return nil
}

// Threshold returns the rule's balance threshold, treating nil as zero.
func (r AssetRule) Threshold() *big.Int {
	if r.MinAmount == nil {
		return big.NewInt(0)
	}
	return r.MinAmount
}
