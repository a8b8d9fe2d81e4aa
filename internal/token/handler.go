package token

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/custodia-fin/custodia/internal/identity"
	"github.com/custodia-fin/custodia/internal/permission"
	"github.com/custodia-fin/custodia/internal/roles"
	"github.com/custodia-fin/custodia/internal/shared"
)

// BalanceCache serves balance reads, refilling from the loader on a miss.
// Nil disables caching; reads then hit the ledger directly.
type BalanceCache interface {
	Balance(ctx context.Context, id identity.Identity, load func() uint64) (uint64, error)
	Invalidate(ctx context.Context, ids ...identity.Identity) error
}

// Handler wires the JSON API for the token service.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	cache     BalanceCache
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, cache BalanceCache) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		cache:     cache,
		validator: validator.New(),
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "malformed request body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) parseIdentity(w http.ResponseWriter, r *http.Request, value string) (identity.Identity, bool) {
	id, err := identity.Parse(value)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid identity: "+value)
		return identity.Zero, false
	}
	return id, true
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	actor := shared.ActorFromContext(r.Context())
	if actor.IsZero() {
		h.writeError(w, r, http.StatusUnauthorized, "missing actor identity")
		return identity.Zero, false
	}
	return actor, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && h.logger != nil {
		h.logger.Error("encode response", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if h.logger != nil && status >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("path", r.URL.Path), slog.String("error", message))
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the error taxonomy onto HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrInvalidIdentity),
		errors.Is(err, shared.ErrNilPolicy),
		errors.Is(err, shared.ErrSelfTransfer):
		status = http.StatusBadRequest
	case errors.Is(err, shared.ErrUnauthorized),
		errors.Is(err, shared.ErrPolicyDenied),
		errors.Is(err, shared.ErrControllerLimit):
		status = http.StatusForbidden
	case errors.Is(err, shared.ErrAlreadyMember),
		errors.Is(err, shared.ErrNotMember),
		errors.Is(err, shared.ErrPaused),
		errors.Is(err, shared.ErrNotPaused),
		errors.Is(err, shared.ErrAlreadyPaused),
		errors.Is(err, shared.ErrIssuanceClosed),
		errors.Is(err, shared.ErrIssuanceAlreadyClosed):
		status = http.StatusConflict
	case errors.Is(err, shared.ErrInsufficientBalance),
		errors.Is(err, shared.ErrInsufficientAllowance),
		errors.Is(err, shared.ErrExpiredPermission),
		errors.Is(err, shared.ErrAmountOverflow):
		status = http.StatusUnprocessableEntity
	}
	h.writeError(w, r, status, err.Error())
}

func (h *Handler) invalidate(ctx context.Context, ids ...identity.Identity) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, ids...); err != nil && h.logger != nil {
		h.logger.Warn("cache invalidate", slog.Any("error", err))
	}
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req issueRequest
	if !h.decode(w, r, &req) {
		return
	}
	to, ok := h.parseIdentity(w, r, req.To)
	if !ok {
		return
	}
	if err := h.service.Issue(r.Context(), actor, to, req.Amount, []byte(req.Data)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.invalidate(r.Context(), to)
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "issued"})
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	to, ok := h.parseIdentity(w, r, req.To)
	if !ok {
		return
	}
	if err := h.service.TransferWithData(r.Context(), actor, to, req.Amount, []byte(req.Data)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.invalidate(r.Context(), actor, to)
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "transferred"})
}

func (h *Handler) handleTransferFrom(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req transferFromRequest
	if !h.decode(w, r, &req) {
		return
	}
	from, ok := h.parseIdentity(w, r, req.From)
	if !ok {
		return
	}
	to, ok := h.parseIdentity(w, r, req.To)
	if !ok {
		return
	}
	if err := h.service.TransferFromWithData(r.Context(), actor, from, to, req.Amount, []byte(req.Data)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.invalidate(r.Context(), from, to)
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "transferred"})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !h.decode(w, r, &req) {
		return
	}
	spender, ok := h.parseIdentity(w, r, req.Spender)
	if !ok {
		return
	}
	if err := h.service.Approve(r.Context(), actor, spender, req.Amount); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "approved"})
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req redeemRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.Redeem(r.Context(), actor, req.Amount, []byte(req.Data)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.invalidate(r.Context(), actor)
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "redeemed"})
}

func (h *Handler) handleRedeemFrom(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req redeemFromRequest
	if !h.decode(w, r, &req) {
		return
	}
	holder, ok := h.parseIdentity(w, r, req.Holder)
	if !ok {
		return
	}
	if err := h.service.RedeemFrom(r.Context(), actor, holder, req.Amount, []byte(req.Data)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.invalidate(r.Context(), holder)
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "redeemed"})
}

func (h *Handler) handleControllerTransfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req controllerTransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	from, ok := h.parseIdentity(w, r, req.From)
	if !ok {
		return
	}
	to, ok := h.parseIdentity(w, r, req.To)
	if !ok {
		return
	}
	if err := h.service.ControllerTransfer(r.Context(), actor, from, to, req.Amount, []byte(req.Data), []byte(req.OperatorData)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.invalidate(r.Context(), from, to)
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "transferred"})
}

func (h *Handler) handleControllerRedeem(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req controllerRedeemRequest
	if !h.decode(w, r, &req) {
		return
	}
	holder, ok := h.parseIdentity(w, r, req.Holder)
	if !ok {
		return
	}
	if err := h.service.ControllerRedeem(r.Context(), actor, holder, req.Amount, []byte(req.Data), []byte(req.OperatorData)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.invalidate(r.Context(), holder)
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "redeemed"})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseIdentity(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	balance := h.svcBalance(r.Context(), id)
	h.writeJSON(w, http.StatusOK, balanceResponse{Identity: id.String(), Balance: balance})
}

func (h *Handler) svcBalance(ctx context.Context, id identity.Identity) uint64 {
	if h.cache != nil {
		if balance, err := h.cache.Balance(ctx, id, func() uint64 { return h.service.BalanceOf(id) }); err == nil {
			return balance
		} else if h.logger != nil {
			h.logger.Warn("balance cache read", slog.Any("error", err))
		}
	}
	return h.service.BalanceOf(id)
}

func (h *Handler) handleAllowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.parseIdentity(w, r, chi.URLParam(r, "owner"))
	if !ok {
		return
	}
	spender, ok := h.parseIdentity(w, r, chi.URLParam(r, "spender"))
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, allowanceResponse{
		Owner:     owner.String(),
		Spender:   spender.String(),
		Allowance: h.service.Allowance(owner, spender),
	})
}

func (h *Handler) handleSupply(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, supplyResponse{
		TotalSupply:   h.service.TotalSupply(),
		TotalRedeemed: h.service.TotalRedeemed(),
	})
}

func (h *Handler) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, lifecycleResponse{
		Paused:   h.service.Paused(),
		Issuable: h.service.Issuable(),
	})
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.service.Pause(r.Context(), actor); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "paused"})
}

func (h *Handler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.service.Unpause(r.Context(), actor); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "active"})
}

func (h *Handler) handleFinishIssuance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.service.FinishIssuance(r.Context(), actor); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "issuance_closed"})
}

func (h *Handler) parseKind(w http.ResponseWriter, r *http.Request) (roles.Kind, bool) {
	kind, err := roles.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return "", false
	}
	return kind, true
}

func (h *Handler) handleRoleAdd(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	kind, ok := h.parseKind(w, r)
	if !ok {
		return
	}
	var req roleMemberRequest
	if !h.decode(w, r, &req) {
		return
	}
	member, ok := h.parseIdentity(w, r, req.Member)
	if !ok {
		return
	}
	if err := h.service.AddRole(r.Context(), actor, kind, member); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, membershipResponse{Role: string(kind), Identity: member.String(), Member: true})
}

func (h *Handler) handleRoleRemove(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	kind, ok := h.parseKind(w, r)
	if !ok {
		return
	}
	member, ok := h.parseIdentity(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), actor, kind, member); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, membershipResponse{Role: string(kind), Identity: member.String(), Member: false})
}

func (h *Handler) handleRoleRenounce(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	kind, ok := h.parseKind(w, r)
	if !ok {
		return
	}
	if err := h.service.RenounceRole(r.Context(), actor, kind); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, membershipResponse{Role: string(kind), Identity: actor.String(), Member: false})
}

func (h *Handler) handleRoleCheck(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.parseKind(w, r)
	if !ok {
		return
	}
	id, ok := h.parseIdentity(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, membershipResponse{
		Role:     string(kind),
		Identity: id.String(),
		Member:   h.service.IsRole(kind, id),
	})
}

func (h *Handler) handleSetPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req permissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	investor, ok := h.parseIdentity(w, r, req.Investor)
	if !ok {
		return
	}
	rec := permission.Record{
		SendAllowed:    req.SendAllowed,
		ReceiveAllowed: req.ReceiveAllowed,
		SendTime:       req.SendTime,
		ReceiveTime:    req.ReceiveTime,
		ExpiryTime:     req.ExpiryTime,
	}
	if err := h.service.RegulatedPolicy().SetPermission(r.Context(), actor, investor, rec); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "permission_set"})
}

func (h *Handler) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseIdentity(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	regulated := h.service.RegulatedPolicy()
	rec := regulated.Permission(id)
	h.writeJSON(w, http.StatusOK, permissionResponse{
		Investor:       id.String(),
		SendAllowed:    rec.SendAllowed,
		ReceiveAllowed: rec.ReceiveAllowed,
		SendTime:       rec.SendTime,
		ReceiveTime:    rec.ReceiveTime,
		ExpiryTime:     rec.ExpiryTime,
		CanSend:        regulated.CanSend(id),
		CanReceive:     regulated.CanReceive(id),
	})
}

func (h *Handler) handleOwner(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ownerResponse{Owner: h.service.Ownership().Owner().String()})
}

func (h *Handler) handleOwnershipTransfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req ownershipTransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	next, ok := h.parseIdentity(w, r, req.NewOwner)
	if !ok {
		return
	}
	if err := h.service.Ownership().Transfer(r.Context(), actor, next); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ownerResponse{Owner: next.String()})
}

func (h *Handler) handleOwnershipRenounce(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.service.Ownership().Renounce(r.Context(), actor); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ownerResponse{Owner: identity.Zero.String()})
}

func (h *Handler) handleTransferIssuership(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req issuershipTransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	next, ok := h.parseIdentity(w, r, req.NewIssuer)
	if !ok {
		return
	}
	if err := h.service.TransferIssuership(r.Context(), actor, next); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "issuership_transferred"})
}
