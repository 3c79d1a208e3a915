// Package holdings queries external asset contracts for an account's
// holdings. It is a pure read layer: nothing here mutates local state, and
// the contracts it talks to are collaborator-owned, never ours.
package holdings

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/halverson/tokengate/pkg/registry"
)

// ErrOracleFailure wraps every failure to reach or decode an external asset
// contract. Callers decide whether such a failure aborts the evaluation or
// counts the rule as not qualifying.
var ErrOracleFailure = errors.New("asset oracle query failed")

// Oracle answers whether an account's holdings satisfy a rule.
type Oracle interface {
	// Holds reports whether account qualifies under rule.
	//
	// Semantics per standard:
	//   - ERC-721 without token id: balanceOf(account) > 0
	//   - ERC-721 with token id:    ownerOf(tokenId) == account
	//   - ERC-1155:                 balanceOf(account, tokenId) > rule threshold
	//   - ERC-20:                   balanceOf(account) > rule threshold
	Holds(ctx context.Context, rule registry.AssetRule, account common.Address) (bool, error)
}
