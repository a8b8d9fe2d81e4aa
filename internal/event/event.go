package event

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-fin/custodia/internal/identity"
)

// Type names a notification kind.
type Type string

// Notification kinds emitted by the core. Emitted only after the
// corresponding mutation succeeded, never before and never on failure.
const (
	TypeRoleAdded             Type = "role.added"
	TypeRoleRemoved           Type = "role.removed"
	TypePermissionChanged     Type = "permission.changed"
	TypeOwnershipTransferred  Type = "ownership.transferred"
	TypePaused                Type = "lifecycle.paused"
	TypeUnpaused              Type = "lifecycle.unpaused"
	TypeIssuanceFinished      Type = "lifecycle.issuance_finished"
	TypeTransfer              Type = "ledger.transfer"
	TypeApproval              Type = "ledger.approval"
	TypeIssued                Type = "token.issued"
	TypeRedeemed              Type = "token.redeemed"
	TypeControllerTransfer    Type = "token.controller_transfer"
	TypeControllerRedeem      Type = "token.controller_redeem"
	TypeIssuershipTransferred Type = "token.issuership_transferred"
	TypePolicyReplaced        Type = "token.policy_replaced"
)

// Event is the notification envelope published to observers.
type Event struct {
	ID   uuid.UUID      `json:"id"`
	Type Type           `json:"type"`
	At   time.Time      `json:"at"`
	Data map[string]any `json:"data"`
}

// Sink receives notifications from the core.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// New builds an event envelope.
func New(t Type, at time.Time, data map[string]any) Event {
	return Event{ID: uuid.New(), Type: t, At: at, Data: data}
}

// NewRoleAdded reports a new member of a role set.
func NewRoleAdded(at time.Time, kind string, member identity.Identity, actor identity.Identity) Event {
	return New(TypeRoleAdded, at, map[string]any{
		"role":   kind,
		"member": member.String(),
		"actor":  actor.String(),
	})
}

// NewRoleRemoved reports a member leaving a role set.
func NewRoleRemoved(at time.Time, kind string, member identity.Identity, actor identity.Identity) Event {
	return New(TypeRoleRemoved, at, map[string]any{
		"role":   kind,
		"member": member.String(),
		"actor":  actor.String(),
	})
}

// NewPermissionChanged reports a replaced permission record. All record
// fields travel with the event together with the acting regulator.
func NewPermissionChanged(at time.Time, investor, regulator identity.Identity, sendAllowed, receiveAllowed bool, sendTime, receiveTime, expiryTime time.Time) Event {
	return New(TypePermissionChanged, at, map[string]any{
		"investor":        investor.String(),
		"regulator":       regulator.String(),
		"send_allowed":    sendAllowed,
		"receive_allowed": receiveAllowed,
		"send_time":       sendTime,
		"receive_time":    receiveTime,
		"expiry_time":     expiryTime,
	})
}

// NewOwnershipTransferred reports an ownership handover.
func NewOwnershipTransferred(at time.Time, previous, next identity.Identity) Event {
	return New(TypeOwnershipTransferred, at, map[string]any{
		"previous_owner": previous.String(),
		"new_owner":      next.String(),
	})
}

// NewPaused reports the ledger entering the paused state.
func NewPaused(at time.Time, actor identity.Identity) Event {
	return New(TypePaused, at, map[string]any{"actor": actor.String()})
}

// NewUnpaused reports the ledger leaving the paused state.
func NewUnpaused(at time.Time, actor identity.Identity) Event {
	return New(TypeUnpaused, at, map[string]any{"actor": actor.String()})
}

// NewIssuanceFinished reports the one-way issuance latch closing.
func NewIssuanceFinished(at time.Time, actor identity.Identity) Event {
	return New(TypeIssuanceFinished, at, map[string]any{"actor": actor.String()})
}

// NewTransfer reports a balance movement.
func NewTransfer(at time.Time, operator, from, to identity.Identity, amount uint64) Event {
	return New(TypeTransfer, at, map[string]any{
		"operator": operator.String(),
		"from":     from.String(),
		"to":       to.String(),
		"amount":   amount,
	})
}

// NewApproval reports an allowance overwrite.
func NewApproval(at time.Time, owner, spender identity.Identity, amount uint64) Event {
	return New(TypeApproval, at, map[string]any{
		"owner":   owner.String(),
		"spender": spender.String(),
		"amount":  amount,
	})
}

// NewIssued reports freshly minted units.
func NewIssued(at time.Time, operator, to identity.Identity, amount uint64, data []byte) Event {
	return New(TypeIssued, at, map[string]any{
		"operator": operator.String(),
		"to":       to.String(),
		"amount":   amount,
		"data":     string(data),
	})
}

// NewRedeemed reports burned units.
func NewRedeemed(at time.Time, operator, from identity.Identity, amount uint64, data []byte) Event {
	return New(TypeRedeemed, at, map[string]any{
		"operator": operator.String(),
		"from":     from.String(),
		"amount":   amount,
		"data":     string(data),
	})
}

// NewControllerTransfer reports a forced transfer.
func NewControllerTransfer(at time.Time, controller, from, to identity.Identity, amount uint64, data, operatorData []byte) Event {
	return New(TypeControllerTransfer, at, map[string]any{
		"controller":    controller.String(),
		"from":          from.String(),
		"to":            to.String(),
		"amount":        amount,
		"data":          string(data),
		"operator_data": string(operatorData),
	})
}

// NewControllerRedeem reports a forced redemption.
func NewControllerRedeem(at time.Time, controller, holder identity.Identity, amount uint64, data, operatorData []byte) Event {
	return New(TypeControllerRedeem, at, map[string]any{
		"controller":    controller.String(),
		"holder":        holder.String(),
		"amount":        amount,
		"data":          string(data),
		"operator_data": string(operatorData),
	})
}

// NewIssuershipTransferred reports the issuer role moving to a new identity.
func NewIssuershipTransferred(at time.Time, previous, next identity.Identity) Event {
	return New(TypeIssuershipTransferred, at, map[string]any{
		"previous_issuer": previous.String(),
		"new_issuer":      next.String(),
	})
}

// NewPolicyReplaced reports an installed substitute policy.
func NewPolicyReplaced(at time.Time, controller identity.Identity) Event {
	return New(TypePolicyReplaced, at, map[string]any{"controller": controller.String()})
}
