package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-fin/custodia/internal/audit"
	"github.com/custodia-fin/custodia/internal/event"
	"github.com/custodia-fin/custodia/internal/identity"
	"github.com/custodia-fin/custodia/internal/permission"
	"github.com/custodia-fin/custodia/internal/policy"
	"github.com/custodia-fin/custodia/internal/roles"
	"github.com/custodia-fin/custodia/internal/shared"
	"github.com/custodia-fin/custodia/internal/token"
)

var (
	deployer  = identity.MustParse("0x0000000000000000000000000000000000000001")
	investorX = identity.MustParse("0x00000000000000000000000000000000000000aa")
	investorY = identity.MustParse("0x00000000000000000000000000000000000000bb")
	outsider  = identity.MustParse("0x00000000000000000000000000000000000000ff")
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *token.Service
	sink  *event.MemorySink
	audit *audit.MemoryRecorder
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sink := event.NewMemorySink()
	recorder := audit.NewMemoryRecorder()
	svc, err := token.NewService(token.Config{Deployer: deployer, Sink: sink, Audit: recorder})
	require.NoError(t, err)
	svc.WithNow(func() time.Time { return baseTime })
	return &fixture{svc: svc, sink: sink, audit: recorder, ctx: context.Background()}
}

// grant writes a permission record valid for 30 days from baseTime.
func (f *fixture) grant(t *testing.T, id identity.Identity, send, receive bool) {
	t.Helper()
	err := f.svc.RegulatedPolicy().SetPermission(f.ctx, deployer, id, permission.Record{
		SendAllowed:    send,
		ReceiveAllowed: receive,
		ExpiryTime:     baseTime.Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)
}

func (f *fixture) invariant(t *testing.T) {
	t.Helper()
	require.Equal(t, f.svc.TotalSupply(), f.svc.SumBalances(), "sum(balances) must equal totalSupply")
}

func TestNewServiceSeedsDeployerEverywhere(t *testing.T) {
	f := newFixture(t)
	for _, kind := range roles.Kinds() {
		require.True(t, f.svc.IsRole(kind, deployer), "deployer must hold %s", kind)
	}
	require.Equal(t, deployer, f.svc.Ownership().Owner())
	require.False(t, f.svc.Paused())
	require.True(t, f.svc.Issuable())
}

func TestNewServiceRejectsNullDeployer(t *testing.T) {
	_, err := token.NewService(token.Config{Deployer: identity.Zero})
	require.ErrorIs(t, err, shared.ErrInvalidIdentity)
}

func TestIssueScenario(t *testing.T) {
	f := newFixture(t)
	// X may receive but not send.
	f.grant(t, investorX, false, true)

	require.False(t, f.svc.RegulatedPolicy().CanSend(investorX))
	require.True(t, f.svc.RegulatedPolicy().CanReceive(investorX))

	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorX, 300, nil))
	require.Equal(t, uint64(300), f.svc.BalanceOf(investorX))
	require.Equal(t, uint64(300), f.svc.TotalSupply())
	f.invariant(t)

	issued := f.sink.ByType(event.TypeIssued)
	require.Len(t, issued, 1)
	require.Equal(t, deployer.String(), issued[0].Data["operator"])
}

func TestIssueChecks(t *testing.T) {
	f := newFixture(t)
	f.grant(t, investorX, false, true)

	// Role check: outsider is not an issuer.
	require.ErrorIs(t, f.svc.Issue(f.ctx, outsider, investorX, 1, nil), shared.ErrUnauthorized)

	// Policy check: Y has no receive window.
	require.ErrorIs(t, f.svc.Issue(f.ctx, deployer, investorY, 1, nil), shared.ErrPolicyDenied)

	// Null recipient.
	require.ErrorIs(t, f.svc.Issue(f.ctx, deployer, identity.Zero, 1, nil), shared.ErrInvalidIdentity)

	require.Zero(t, f.svc.TotalSupply())
	require.Empty(t, f.sink.ByType(event.TypeIssued))
}

func TestTransferScenario(t *testing.T) {
	f := newFixture(t)
	f.grant(t, investorX, true, true)
	f.grant(t, investorY, false, true)
	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorX, 300, nil))

	require.NoError(t, f.svc.Transfer(f.ctx, investorX, investorY, 10))
	require.Equal(t, uint64(290), f.svc.BalanceOf(investorX))
	require.Equal(t, uint64(10), f.svc.BalanceOf(investorY))
	f.invariant(t)
}

func TestTransferDeniedWithoutWindows(t *testing.T) {
	f := newFixture(t)
	f.grant(t, investorX, true, true)
	f.grant(t, investorY, false, true)
	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorX, 100, nil))

	// Y cannot send.
	require.NoError(t, f.svc.Transfer(f.ctx, investorX, investorY, 10))
	require.ErrorIs(t, f.svc.Transfer(f.ctx, investorY, investorX, 5), shared.ErrPolicyDenied)

	// Outsider cannot receive.
	require.ErrorIs(t, f.svc.Transfer(f.ctx, investorX, outsider, 5), shared.ErrPolicyDenied)

	// Balance shortfall surfaces after the policy gate.
	require.ErrorIs(t, f.svc.Transfer(f.ctx, investorX, investorY, 1000), shared.ErrInsufficientBalance)
	f.invariant(t)
}

func TestApproveAndTransferFromScenario(t *testing.T) {
	f := newFixture(t)
	f.grant(t, investorX, true, true)
	f.grant(t, investorY, true, true)
	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorX, 300, nil))

	require.NoError(t, f.svc.Approve(f.ctx, investorX, investorY, 5))
	require.Equal(t, uint64(5), f.svc.Allowance(investorX, investorY))

	require.NoError(t, f.svc.TransferFrom(f.ctx, investorY, investorX, investorY, 5))
	require.Zero(t, f.svc.Allowance(investorX, investorY))
	require.Equal(t, uint64(5), f.svc.BalanceOf(investorY))

	err := f.svc.TransferFrom(f.ctx, investorY, investorX, investorY, 1)
	require.ErrorIs(t, err, shared.ErrInsufficientAllowance)
	f.invariant(t)
}

func TestTransferFromLeavesAllowanceOnFailedMove(t *testing.T) {
	f := newFixture(t)
	f.grant(t, investorX, true, true)
	f.grant(t, investorY, true, true)
	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorX, 10, nil))
	require.NoError(t, f.svc.Approve(f.ctx, investorX, investorY, 100))

	// Allowance covers it, balance does not; nothing may change.
	err := f.svc.TransferFrom(f.ctx, investorY, investorX, investorY, 50)
	require.ErrorIs(t, err, shared.ErrInsufficientBalance)
	require.Equal(t, uint64(100), f.svc.Allowance(investorX, investorY))
	require.Equal(t, uint64(10), f.svc.BalanceOf(investorX))
	f.invariant(t)
}

func TestRedeemRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.grant(t, investorX, true, true)

	before := f.svc.TotalSupply()
	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorX, 120, nil))
	require.NoError(t, f.svc.Redeem(f.ctx, investorX, 120, nil))

	require.Equal(t, before, f.svc.TotalSupply())
	require.Equal(t, uint64(120), f.svc.TotalRedeemed())
	f.invariant(t)
}

func TestRedeemRequiresSendWindow(t *testing.T) {
	f := newFixture(t)
	f.grant(t, investorX, false, true)
	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorX, 50, nil))

	require.ErrorIs(t, f.svc.Redeem(f.ctx, investorX, 10, nil), shared.ErrPolicyDenied)
	require.Equal(t, uint64(50), f.svc.BalanceOf(investorX))
	require.Zero(t, f.svc.TotalRedeemed())
}

func TestRedeemFromRequiresBothSendWindows(t *testing.T) {
	f := newFixture(t)
	f.grant(t, investorX, true, true)
	f.grant(t, investorY, false, true)
	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorX, 100, nil))
	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorY, 100, nil))

	require.NoError(t, f.svc.Approve(f.ctx, investorY, investorX, 40))

	// Holder Y has no send window.
	require.ErrorIs(t, f.svc.RedeemFrom(f.ctx, investorX, investorY, 40, nil), shared.ErrPolicyDenied)

	f.grant(t, investorY, true, true)
	require.NoError(t, f.svc.RedeemFrom(f.ctx, investorX, investorY, 40, nil))
	require.Equal(t, uint64(60), f.svc.BalanceOf(investorY))
	require.Zero(t, f.svc.Allowance(investorY, investorX))
	require.Equal(t, uint64(40), f.svc.TotalRedeemed())
	f.invariant(t)
}

func TestPauseGatesOrdinaryOperations(t *testing.T) {
	f := newFixture(t)
	f.grant(t, investorX, true, true)
	f.grant(t, investorY, true, true)
	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorX, 100, nil))
	require.NoError(t, f.svc.Approve(f.ctx, investorX, investorY, 50))

	require.NoError(t, f.svc.Pause(f.ctx, deployer))

	require.ErrorIs(t, f.svc.Issue(f.ctx, deployer, investorX, 1, nil), shared.ErrPaused)
	require.ErrorIs(t, f.svc.Transfer(f.ctx, investorX, investorY, 1), shared.ErrPaused)
	require.ErrorIs(t, f.svc.TransferFrom(f.ctx, investorY, investorX, investorY, 1), shared.ErrPaused)
	require.ErrorIs(t, f.svc.Redeem(f.ctx, investorX, 1, nil), shared.ErrPaused)
	require.ErrorIs(t, f.svc.RedeemFrom(f.ctx, investorY, investorX, 1, nil), shared.ErrPaused)

	// Controller operations are unaffected by pause.
	require.NoError(t, f.svc.ControllerTransfer(f.ctx, deployer, investorX, investorY, 5, nil, nil))
	require.NoError(t, f.svc.ControllerRedeem(f.ctx, deployer, investorY, 5, nil, nil))

	require.NoError(t, f.svc.Unpause(f.ctx, deployer))
	require.NoError(t, f.svc.Transfer(f.ctx, investorX, investorY, 1))
	f.invariant(t)
}

func TestPauseRequiresPauserRole(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.svc.Pause(f.ctx, outsider), shared.ErrUnauthorized)
	require.NoError(t, f.svc.Pause(f.ctx, deployer))
	require.ErrorIs(t, f.svc.Pause(f.ctx, deployer), shared.ErrAlreadyPaused)
	require.ErrorIs(t, f.svc.Unpause(f.ctx, outsider), shared.ErrUnauthorized)
}

func TestControllerBypassesClosedSendWindow(t *testing.T) {
	f := newFixture(t)
	// X can only receive; its send window is closed.
	f.grant(t, investorX, false, true)
	f.grant(t, investorY, false, true)
	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorX, 300, nil))

	require.NoError(t, f.svc.ControllerTransfer(f.ctx, deployer, investorX, investorY, 5, nil, []byte("court order")))
	require.Equal(t, uint64(295), f.svc.BalanceOf(investorX))
	require.Equal(t, uint64(5), f.svc.BalanceOf(investorY))
	f.invariant(t)

	events := f.sink.ByType(event.TypeControllerTransfer)
	require.Len(t, events, 1)
	require.Equal(t, "court order", events[0].Data["operator_data"])
}

func TestControllerOperationsRequireRole(t *testing.T) {
	f := newFixture(t)
	f.grant(t, investorX, false, true)
	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorX, 100, nil))

	require.ErrorIs(t, f.svc.ControllerTransfer(f.ctx, outsider, investorX, investorY, 1, nil, nil), shared.ErrUnauthorized)
	require.ErrorIs(t, f.svc.ControllerRedeem(f.ctx, outsider, investorX, 1, nil, nil), shared.ErrUnauthorized)
}

func TestControllerLimitPrecedesLedger(t *testing.T) {
	f := newFixture(t)
	f.grant(t, investorX, false, true)
	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorX, 10, nil))

	err := f.svc.ControllerTransfer(f.ctx, deployer, investorX, investorY, 11, nil, nil)
	require.ErrorIs(t, err, shared.ErrControllerLimit)
	require.NotErrorIs(t, err, shared.ErrInsufficientBalance)

	err = f.svc.ControllerRedeem(f.ctx, deployer, investorX, 11, nil, nil)
	require.ErrorIs(t, err, shared.ErrControllerLimit)
	f.invariant(t)
}

func TestFinishIssuanceScenario(t *testing.T) {
	f := newFixture(t)
	f.grant(t, investorX, false, true)

	require.ErrorIs(t, f.svc.FinishIssuance(f.ctx, outsider), shared.ErrUnauthorized)
	require.NoError(t, f.svc.FinishIssuance(f.ctx, deployer))
	require.False(t, f.svc.Issuable())

	require.ErrorIs(t, f.svc.Issue(f.ctx, deployer, investorX, 1, nil), shared.ErrIssuanceClosed)
	require.ErrorIs(t, f.svc.FinishIssuance(f.ctx, deployer), shared.ErrIssuanceAlreadyClosed)
}

func TestTransferIssuership(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.svc.TransferIssuership(f.ctx, outsider, investorX), shared.ErrUnauthorized)
	require.ErrorIs(t, f.svc.TransferIssuership(f.ctx, deployer, identity.Zero), shared.ErrInvalidIdentity)
	require.ErrorIs(t, f.svc.TransferIssuership(f.ctx, deployer, deployer), shared.ErrSelfTransfer)

	require.NoError(t, f.svc.TransferIssuership(f.ctx, deployer, investorX))
	require.True(t, f.svc.IsRole(roles.KindIssuer, investorX))
	require.False(t, f.svc.IsRole(roles.KindIssuer, deployer))

	events := f.sink.ByType(event.TypeIssuershipTransferred)
	require.Len(t, events, 1)
}

func TestSetPolicy(t *testing.T) {
	f := newFixture(t)
	f.grant(t, investorX, false, true)

	require.ErrorIs(t, f.svc.SetPolicy(f.ctx, outsider, allowAll{}), shared.ErrUnauthorized)
	require.ErrorIs(t, f.svc.SetPolicy(f.ctx, deployer, nil), shared.ErrNilPolicy)

	// An allow-all substitute opens operations the reference policy denies.
	require.NoError(t, f.svc.SetPolicy(f.ctx, deployer, allowAll{}))
	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorY, 10, nil))
	require.NoError(t, f.svc.Transfer(f.ctx, investorY, outsider, 3))

	// A deny-all substitute closes everything, independent of windows.
	require.NoError(t, f.svc.SetPolicy(f.ctx, deployer, denyAll{}))
	require.ErrorIs(t, f.svc.Issue(f.ctx, deployer, investorX, 1, nil), shared.ErrPolicyDenied)
	f.invariant(t)
}

func TestRolePassThroughs(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.AddRole(f.ctx, deployer, roles.KindRegulator, investorX))
	require.True(t, f.svc.IsRole(roles.KindRegulator, investorX))

	require.NoError(t, f.svc.RenounceRole(f.ctx, investorX, roles.KindRegulator))
	require.False(t, f.svc.IsRole(roles.KindRegulator, investorX))
	require.ErrorIs(t, f.svc.RenounceRole(f.ctx, investorX, roles.KindRegulator), shared.ErrNotMember)

	require.NoError(t, f.svc.AddRole(f.ctx, deployer, roles.KindPauser, investorY))
	require.NoError(t, f.svc.RemoveRole(f.ctx, deployer, roles.KindPauser, investorY))
}

func TestAuditTrailRecordsSuccessOnly(t *testing.T) {
	f := newFixture(t)
	f.grant(t, investorX, true, true)

	require.NoError(t, f.svc.Issue(f.ctx, deployer, investorX, 100, nil))
	require.ErrorIs(t, f.svc.Issue(f.ctx, outsider, investorX, 1, nil), shared.ErrUnauthorized)

	var issues int
	for _, entry := range f.audit.Entries() {
		if entry.Action == "token.issue" {
			issues++
			require.Equal(t, deployer, entry.Actor)
		}
	}
	require.Equal(t, 1, issues)
}

func TestDeterministicUnderFixedClock(t *testing.T) {
	run := func() (uint64, uint64, uint64) {
		f := newFixture(t)
		f.grant(t, investorX, true, true)
		f.grant(t, investorY, true, true)
		require.NoError(t, f.svc.Issue(f.ctx, deployer, investorX, 500, nil))
		require.NoError(t, f.svc.Transfer(f.ctx, investorX, investorY, 123))
		require.NoError(t, f.svc.Redeem(f.ctx, investorY, 23, nil))
		return f.svc.BalanceOf(investorX), f.svc.BalanceOf(investorY), f.svc.TotalRedeemed()
	}
	x1, y1, r1 := run()
	x2, y2, r2 := run()
	require.Equal(t, x1, x2)
	require.Equal(t, y1, y2)
	require.Equal(t, r1, r2)
}

// allowAll approves every operation.
type allowAll struct{}

func (allowAll) CanIssue(identity.Identity, uint64, []byte) bool { return true }
func (allowAll) CanTransfer(identity.Identity, identity.Identity, uint64, []byte) bool {
	return true
}
func (allowAll) CanTransferFrom(identity.Identity, identity.Identity, identity.Identity, uint64, []byte) bool {
	return true
}
func (allowAll) CanRedeem(identity.Identity, uint64, []byte) bool { return true }
func (allowAll) CanRedeemFrom(identity.Identity, identity.Identity, uint64, []byte) bool {
	return true
}
func (allowAll) CanControllerTransfer(identity.Identity, identity.Identity, identity.Identity, uint64, []byte, []byte) bool {
	return true
}
func (allowAll) CanControllerRedeem(identity.Identity, identity.Identity, uint64, []byte, []byte) bool {
	return true
}

// denyAll rejects every operation.
type denyAll struct{}

func (denyAll) CanIssue(identity.Identity, uint64, []byte) bool { return false }
func (denyAll) CanTransfer(identity.Identity, identity.Identity, uint64, []byte) bool {
	return false
}
func (denyAll) CanTransferFrom(identity.Identity, identity.Identity, identity.Identity, uint64, []byte) bool {
	return false
}
func (denyAll) CanRedeem(identity.Identity, uint64, []byte) bool { return false }
func (denyAll) CanRedeemFrom(identity.Identity, identity.Identity, uint64, []byte) bool {
	return false
}
func (denyAll) CanControllerTransfer(identity.Identity, identity.Identity, identity.Identity, uint64, []byte, []byte) bool {
	return false
}
func (denyAll) CanControllerRedeem(identity.Identity, identity.Identity, uint64, []byte, []byte) bool {
	return false
}

var _ policy.Policy = allowAll{}
var _ policy.Policy = denyAll{}
