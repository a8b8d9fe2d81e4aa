// Package policy defines the pluggable authorization contract consulted by
// the token service before every ledger mutation, together with the
// reference permission-window implementation.
package policy

import (
	"github.com/custodia-fin/custodia/internal/identity"
)

// Policy answers the seven operation-specific authorization questions. All
// predicates are read-only, side-effect free, and safe to call by anyone.
// The token service depends only on this contract, so a substitute
// compliance regime is a drop-in replacement.
type Policy interface {
	CanIssue(to identity.Identity, amount uint64, data []byte) bool
	CanTransfer(from, to identity.Identity, amount uint64, data []byte) bool
	CanTransferFrom(operator, from, to identity.Identity, amount uint64, data []byte) bool
	CanRedeem(sender identity.Identity, amount uint64, data []byte) bool
	CanRedeemFrom(operator, holder identity.Identity, amount uint64, data []byte) bool

	// Controller predicates gate forced operations. The reference policy
	// grants them unconditionally; a stricter implementation may layer
	// controller-specific checks here.
	CanControllerTransfer(controller, from, to identity.Identity, amount uint64, data, operatorData []byte) bool
	CanControllerRedeem(controller, holder identity.Identity, amount uint64, data, operatorData []byte) bool
}
