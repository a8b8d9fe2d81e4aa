// Package token orchestrates the value ledger. Every mutating operation is
// the ordered composition lifecycle gate → role check → policy check →
// ledger mutation → audit and notification; a failure at any stage leaves
// all state exactly as it was.
package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-fin/custodia/internal/audit"
	"github.com/custodia-fin/custodia/internal/event"
	"github.com/custodia-fin/custodia/internal/identity"
	"github.com/custodia-fin/custodia/internal/ledger"
	"github.com/custodia-fin/custodia/internal/lifecycle"
	"github.com/custodia-fin/custodia/internal/ownership"
	"github.com/custodia-fin/custodia/internal/policy"
	"github.com/custodia-fin/custodia/internal/roles"
	"github.com/custodia-fin/custodia/internal/shared"
)

// MetricsPort receives operation outcomes and supply levels. Implemented by
// the observability package; nil disables recording.
type MetricsPort interface {
	OperationObserved(op string, err error)
	SupplyObserved(totalSupply, totalRedeemed uint64)
}

// Config collects the dependencies for a Service.
type Config struct {
	// Deployer seeds ownership and the first membership of all four roles.
	Deployer identity.Identity
	Sink     event.Sink
	Audit    audit.Recorder
	Metrics  MetricsPort
	// Policy overrides the reference policy when set.
	Policy policy.Policy
}

// Service is the externally callable surface of the ledger. All mutating
// operations are strictly serialized: one runs to completion (success or
// total rollback) before the next is observed.
type Service struct {
	mu         sync.Mutex
	ledger     *ledger.Ledger
	gate       *lifecycle.Gate
	owner      *ownership.Ownership
	registries map[roles.Kind]*roles.Registry
	policy     policy.Policy
	regulated  *policy.Regulated
	sink       event.Sink
	audit      audit.Recorder
	metrics    MetricsPort
	now        func() time.Time
}

// NewService builds a ledger with the deployer seeded as owner and first
// member of every role. The reference permission-window policy is installed
// unless cfg.Policy supplies a substitute.
func NewService(cfg Config) (*Service, error) {
	if cfg.Deployer.IsZero() {
		return nil, fmt.Errorf("token: new service: %w", shared.ErrInvalidIdentity)
	}
	registries := make(map[roles.Kind]*roles.Registry, len(roles.Kinds()))
	for _, kind := range roles.Kinds() {
		registries[kind] = roles.NewRegistry(kind, cfg.Deployer, cfg.Sink)
	}
	regulated := policy.NewRegulated(registries[roles.KindRegulator], cfg.Sink)
	active := policy.Policy(regulated)
	if cfg.Policy != nil {
		active = cfg.Policy
	}
	return &Service{
		ledger:     ledger.New(),
		gate:       lifecycle.NewGate(),
		owner:      ownership.New(cfg.Deployer, cfg.Sink),
		registries: registries,
		policy:     active,
		regulated:  regulated,
		sink:       cfg.Sink,
		audit:      cfg.Audit,
		metrics:    cfg.Metrics,
		now:        time.Now,
	}, nil
}

// WithNow overrides the clock for the service, its registries, the reference
// policy, and ownership. Used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now == nil {
		return
	}
	s.now = now
	s.regulated.WithNow(now)
	s.owner.WithNow(now)
	for _, reg := range s.registries {
		reg.WithNow(now)
	}
}

// RegulatedPolicy exposes the reference policy for permission administration
// and the expiry sweep, regardless of which policy is currently active.
func (s *Service) RegulatedPolicy() *policy.Regulated {
	return s.regulated
}

// Ownership exposes the administrative owner singleton.
func (s *Service) Ownership() *ownership.Ownership {
	return s.owner
}

// Registry returns the role registry for a kind.
func (s *Service) Registry(kind roles.Kind) *roles.Registry {
	return s.registries[kind]
}

// BalanceOf returns the balance of id.
func (s *Service) BalanceOf(id identity.Identity) uint64 {
	return s.ledger.BalanceOf(id)
}

// Allowance returns the remaining approved amount from owner to spender.
func (s *Service) Allowance(owner, spender identity.Identity) uint64 {
	return s.ledger.Allowance(owner, spender)
}

// TotalSupply returns the current total supply.
func (s *Service) TotalSupply() uint64 {
	return s.ledger.TotalSupply()
}

// TotalRedeemed returns the cumulative redeemed amount.
func (s *Service) TotalRedeemed() uint64 {
	return s.ledger.TotalRedeemed()
}

// Paused reports the pause switch.
func (s *Service) Paused() bool {
	return s.gate.Paused()
}

// Issuable reports the issuance latch.
func (s *Service) Issuable() bool {
	return s.gate.Issuable()
}

// SumBalances adds every balance; always equals TotalSupply.
func (s *Service) SumBalances() uint64 {
	return s.ledger.SumBalances()
}

// Issue mints amount to `to`. Caller must hold the issuer role, the ledger
// must be active and issuable, and the policy must approve.
func (s *Service) Issue(ctx context.Context, caller, to identity.Identity, amount uint64, data []byte) (err error) {
	defer s.observe("issue", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gate.Paused() {
		return fmt.Errorf("token: issue: %w", shared.ErrPaused)
	}
	if !s.gate.Issuable() {
		return fmt.Errorf("token: issue: %w", shared.ErrIssuanceClosed)
	}
	if !s.registries[roles.KindIssuer].IsMember(caller) {
		return fmt.Errorf("token: issue: %w", shared.ErrUnauthorized)
	}
	if to.IsZero() {
		return fmt.Errorf("token: issue: %w", shared.ErrInvalidIdentity)
	}
	if !s.policy.CanIssue(to, amount, data) {
		return fmt.Errorf("token: issue: %w", shared.ErrPolicyDenied)
	}
	if err := s.ledger.Mint(to, amount); err != nil {
		return err
	}

	now := s.now()
	s.publish(ctx, event.NewIssued(now, caller, to, amount, data))
	s.record(ctx, caller, "token.issue", map[string]any{"to": to.String(), "amount": amount})
	return nil
}

// Transfer moves amount from the caller to `to`.
func (s *Service) Transfer(ctx context.Context, caller, to identity.Identity, amount uint64) error {
	return s.TransferWithData(ctx, caller, to, amount, nil)
}

// TransferWithData is Transfer with opaque auxiliary data for the policy.
func (s *Service) TransferWithData(ctx context.Context, caller, to identity.Identity, amount uint64, data []byte) (err error) {
	defer s.observe("transfer", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gate.Paused() {
		return fmt.Errorf("token: transfer: %w", shared.ErrPaused)
	}
	if caller.IsZero() || to.IsZero() {
		return fmt.Errorf("token: transfer: %w", shared.ErrInvalidIdentity)
	}
	if !s.policy.CanTransfer(caller, to, amount, data) {
		return fmt.Errorf("token: transfer: %w", shared.ErrPolicyDenied)
	}
	if err := s.ledger.Move(caller, to, amount); err != nil {
		return err
	}

	s.publish(ctx, event.NewTransfer(s.now(), caller, caller, to, amount))
	s.record(ctx, caller, "token.transfer", map[string]any{"to": to.String(), "amount": amount})
	return nil
}

// TransferFrom moves amount from `from` to `to` using the caller's
// allowance. The allowance spend and the move form one atomic step.
func (s *Service) TransferFrom(ctx context.Context, caller, from, to identity.Identity, amount uint64) error {
	return s.TransferFromWithData(ctx, caller, from, to, amount, nil)
}

// TransferFromWithData is TransferFrom with opaque auxiliary data.
func (s *Service) TransferFromWithData(ctx context.Context, caller, from, to identity.Identity, amount uint64, data []byte) (err error) {
	defer s.observe("transfer_from", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gate.Paused() {
		return fmt.Errorf("token: transfer from: %w", shared.ErrPaused)
	}
	if caller.IsZero() || from.IsZero() || to.IsZero() {
		return fmt.Errorf("token: transfer from: %w", shared.ErrInvalidIdentity)
	}
	if !s.policy.CanTransferFrom(caller, from, to, amount, data) {
		return fmt.Errorf("token: transfer from: %w", shared.ErrPolicyDenied)
	}
	// Validate both steps before mutating either.
	if amount > s.ledger.Allowance(from, caller) {
		return fmt.Errorf("token: transfer from: %w", shared.ErrInsufficientAllowance)
	}
	if err := s.ledger.CheckMove(from, to, amount); err != nil {
		return err
	}
	if err := s.ledger.SpendAllowance(from, caller, amount); err != nil {
		return err
	}
	if err := s.ledger.Move(from, to, amount); err != nil {
		return err
	}

	s.publish(ctx, event.NewTransfer(s.now(), caller, from, to, amount))
	s.record(ctx, caller, "token.transfer_from", map[string]any{"from": from.String(), "to": to.String(), "amount": amount})
	return nil
}

// Approve overwrites the allowance from the caller to spender. Bookkeeping
// only: neither the pause switch nor the policy applies.
func (s *Service) Approve(ctx context.Context, caller, spender identity.Identity, amount uint64) (err error) {
	defer s.observe("approve", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.Approve(caller, spender, amount); err != nil {
		return err
	}
	s.publish(ctx, event.NewApproval(s.now(), caller, spender, amount))
	s.record(ctx, caller, "token.approve", map[string]any{"spender": spender.String(), "amount": amount})
	return nil
}

// Redeem burns amount from the caller's balance.
func (s *Service) Redeem(ctx context.Context, caller identity.Identity, amount uint64, data []byte) (err error) {
	defer s.observe("redeem", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gate.Paused() {
		return fmt.Errorf("token: redeem: %w", shared.ErrPaused)
	}
	if caller.IsZero() {
		return fmt.Errorf("token: redeem: %w", shared.ErrInvalidIdentity)
	}
	if !s.policy.CanRedeem(caller, amount, data) {
		return fmt.Errorf("token: redeem: %w", shared.ErrPolicyDenied)
	}
	if err := s.ledger.Burn(caller, amount); err != nil {
		return err
	}

	s.publish(ctx, event.NewRedeemed(s.now(), caller, caller, amount, data))
	s.record(ctx, caller, "token.redeem", map[string]any{"amount": amount})
	return nil
}

// RedeemFrom burns amount from holder using the caller's allowance.
func (s *Service) RedeemFrom(ctx context.Context, caller, holder identity.Identity, amount uint64, data []byte) (err error) {
	defer s.observe("redeem_from", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gate.Paused() {
		return fmt.Errorf("token: redeem from: %w", shared.ErrPaused)
	}
	if caller.IsZero() || holder.IsZero() {
		return fmt.Errorf("token: redeem from: %w", shared.ErrInvalidIdentity)
	}
	if !s.policy.CanRedeemFrom(caller, holder, amount, data) {
		return fmt.Errorf("token: redeem from: %w", shared.ErrPolicyDenied)
	}
	if amount > s.ledger.Allowance(holder, caller) {
		return fmt.Errorf("token: redeem from: %w", shared.ErrInsufficientAllowance)
	}
	if err := s.ledger.CheckBurn(holder, amount); err != nil {
		return err
	}
	if err := s.ledger.SpendAllowance(holder, caller, amount); err != nil {
		return err
	}
	if err := s.ledger.Burn(holder, amount); err != nil {
		return err
	}

	s.publish(ctx, event.NewRedeemed(s.now(), caller, holder, amount, data))
	s.record(ctx, caller, "token.redeem_from", map[string]any{"holder": holder.String(), "amount": amount})
	return nil
}

// ControllerTransfer force-moves amount between two holders. Requires the
// controller role and is not gated by pause. The balance pre-check surfaces
// as an authorization failure, before the ledger is consulted.
func (s *Service) ControllerTransfer(ctx context.Context, caller, from, to identity.Identity, amount uint64, data, operatorData []byte) (err error) {
	defer s.observe("controller_transfer", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registries[roles.KindController].IsMember(caller) {
		return fmt.Errorf("token: controller transfer: %w", shared.ErrUnauthorized)
	}
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("token: controller transfer: %w", shared.ErrInvalidIdentity)
	}
	if amount > s.ledger.BalanceOf(from) {
		return fmt.Errorf("token: controller transfer: %w", shared.ErrControllerLimit)
	}
	if !s.policy.CanControllerTransfer(caller, from, to, amount, data, operatorData) {
		return fmt.Errorf("token: controller transfer: %w", shared.ErrPolicyDenied)
	}
	if err := s.ledger.Move(from, to, amount); err != nil {
		return err
	}

	s.publish(ctx, event.NewControllerTransfer(s.now(), caller, from, to, amount, data, operatorData))
	s.record(ctx, caller, "token.controller_transfer", map[string]any{"from": from.String(), "to": to.String(), "amount": amount})
	return nil
}

// ControllerRedeem force-burns amount from holder. Requires the controller
// role and is not gated by pause.
func (s *Service) ControllerRedeem(ctx context.Context, caller, holder identity.Identity, amount uint64, data, operatorData []byte) (err error) {
	defer s.observe("controller_redeem", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registries[roles.KindController].IsMember(caller) {
		return fmt.Errorf("token: controller redeem: %w", shared.ErrUnauthorized)
	}
	if holder.IsZero() {
		return fmt.Errorf("token: controller redeem: %w", shared.ErrInvalidIdentity)
	}
	if amount > s.ledger.BalanceOf(holder) {
		return fmt.Errorf("token: controller redeem: %w", shared.ErrControllerLimit)
	}
	if !s.policy.CanControllerRedeem(caller, holder, amount, data, operatorData) {
		return fmt.Errorf("token: controller redeem: %w", shared.ErrPolicyDenied)
	}
	if err := s.ledger.Burn(holder, amount); err != nil {
		return err
	}

	s.publish(ctx, event.NewControllerRedeem(s.now(), caller, holder, amount, data, operatorData))
	s.record(ctx, caller, "token.controller_redeem", map[string]any{"holder": holder.String(), "amount": amount})
	return nil
}

// SetPolicy installs a substitute policy. Requires the controller role; a
// nil policy is rejected as unreachable.
func (s *Service) SetPolicy(ctx context.Context, caller identity.Identity, p policy.Policy) (err error) {
	defer s.observe("set_policy", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registries[roles.KindController].IsMember(caller) {
		return fmt.Errorf("token: set policy: %w", shared.ErrUnauthorized)
	}
	if p == nil {
		return fmt.Errorf("token: set policy: %w", shared.ErrNilPolicy)
	}
	s.policy = p

	s.publish(ctx, event.NewPolicyReplaced(s.now(), caller))
	s.record(ctx, caller, "token.set_policy", nil)
	return nil
}

// TransferIssuership hands the caller's issuer membership to a new identity.
// Self-transfer is explicitly rejected.
func (s *Service) TransferIssuership(ctx context.Context, caller, next identity.Identity) (err error) {
	defer s.observe("transfer_issuership", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	issuers := s.registries[roles.KindIssuer]
	if !issuers.IsMember(caller) {
		return fmt.Errorf("token: transfer issuership: %w", shared.ErrUnauthorized)
	}
	if next.IsZero() {
		return fmt.Errorf("token: transfer issuership: %w", shared.ErrInvalidIdentity)
	}
	if next == caller {
		return fmt.Errorf("token: transfer issuership: %w", shared.ErrSelfTransfer)
	}
	if err := issuers.Add(ctx, caller, next); err != nil {
		return err
	}
	if err := issuers.Renounce(ctx, caller); err != nil {
		// Unreachable: the caller's membership was checked above and this
		// goroutine holds the service mutex.
		return err
	}

	s.publish(ctx, event.NewIssuershipTransferred(s.now(), caller, next))
	s.record(ctx, caller, "token.transfer_issuership", map[string]any{"new_issuer": next.String()})
	return nil
}

// Pause halts ordinary ledger mutations. Requires the pauser role.
func (s *Service) Pause(ctx context.Context, caller identity.Identity) (err error) {
	defer s.observe("pause", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registries[roles.KindPauser].IsMember(caller) {
		return fmt.Errorf("token: pause: %w", shared.ErrUnauthorized)
	}
	if err := s.gate.Pause(); err != nil {
		return err
	}
	s.publish(ctx, event.NewPaused(s.now(), caller))
	s.record(ctx, caller, "lifecycle.pause", nil)
	return nil
}

// Unpause resumes ordinary ledger mutations. Requires the pauser role.
func (s *Service) Unpause(ctx context.Context, caller identity.Identity) (err error) {
	defer s.observe("unpause", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registries[roles.KindPauser].IsMember(caller) {
		return fmt.Errorf("token: unpause: %w", shared.ErrUnauthorized)
	}
	if err := s.gate.Unpause(); err != nil {
		return err
	}
	s.publish(ctx, event.NewUnpaused(s.now(), caller))
	s.record(ctx, caller, "lifecycle.unpause", nil)
	return nil
}

// FinishIssuance closes issuance permanently. Requires the issuer role.
func (s *Service) FinishIssuance(ctx context.Context, caller identity.Identity) (err error) {
	defer s.observe("finish_issuance", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registries[roles.KindIssuer].IsMember(caller) {
		return fmt.Errorf("token: finish issuance: %w", shared.ErrUnauthorized)
	}
	if err := s.gate.FinishIssuance(); err != nil {
		return err
	}
	s.publish(ctx, event.NewIssuanceFinished(s.now(), caller))
	s.record(ctx, caller, "lifecycle.finish_issuance", nil)
	return nil
}

// AddRole adds id to the kind registry on behalf of caller.
func (s *Service) AddRole(ctx context.Context, caller identity.Identity, kind roles.Kind, id identity.Identity) (err error) {
	defer s.observe("role_add", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registries[kind]
	if !ok {
		return fmt.Errorf("token: add role: unknown kind %q", kind)
	}
	if err := reg.Add(ctx, caller, id); err != nil {
		return err
	}
	s.record(ctx, caller, "role.add", map[string]any{"kind": string(kind), "member": id.String()})
	return nil
}

// RemoveRole removes id from the kind registry on behalf of caller.
func (s *Service) RemoveRole(ctx context.Context, caller identity.Identity, kind roles.Kind, id identity.Identity) (err error) {
	defer s.observe("role_remove", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registries[kind]
	if !ok {
		return fmt.Errorf("token: remove role: unknown kind %q", kind)
	}
	if err := reg.Remove(ctx, caller, id); err != nil {
		return err
	}
	s.record(ctx, caller, "role.remove", map[string]any{"kind": string(kind), "member": id.String()})
	return nil
}

// RenounceRole removes the caller's own membership of kind.
func (s *Service) RenounceRole(ctx context.Context, caller identity.Identity, kind roles.Kind) (err error) {
	defer s.observe("role_renounce", &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registries[kind]
	if !ok {
		return fmt.Errorf("token: renounce role: unknown kind %q", kind)
	}
	if err := reg.Renounce(ctx, caller); err != nil {
		return err
	}
	s.record(ctx, caller, "role.renounce", map[string]any{"kind": string(kind)})
	return nil
}

// IsRole reports whether id holds the kind role.
func (s *Service) IsRole(kind roles.Kind, id identity.Identity) bool {
	reg, ok := s.registries[kind]
	return ok && reg.IsMember(id)
}

func (s *Service) publish(ctx context.Context, ev event.Event) {
	if s.sink != nil {
		_ = s.sink.Publish(ctx, ev)
	}
}

func (s *Service) record(ctx context.Context, actor identity.Identity, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, audit.Entry{
		Actor:  actor,
		Action: action,
		Entity: "token",
		Meta:   meta,
		At:     s.now(),
	})
}

func (s *Service) observe(op string, err *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.OperationObserved(op, *err)
	s.metrics.SupplyObserved(s.ledger.TotalSupply(), s.ledger.TotalRedeemed())
}
