package token

import "github.com/go-chi/chi/v5"

// MountRoutes registers the token API.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/issue", h.handleIssue)
	r.Post("/transfer", h.handleTransfer)
	r.Post("/transfer-from", h.handleTransferFrom)
	r.Post("/approve", h.handleApprove)
	r.Post("/redeem", h.handleRedeem)
	r.Post("/redeem-from", h.handleRedeemFrom)
	r.Post("/controller/transfer", h.handleControllerTransfer)
	r.Post("/controller/redeem", h.handleControllerRedeem)
	r.Post("/issuership", h.handleTransferIssuership)

	r.Get("/balances/{id}", h.handleBalance)
	r.Get("/allowances/{owner}/{spender}", h.handleAllowance)
	r.Get("/supply", h.handleSupply)

	r.Get("/lifecycle", h.handleLifecycle)
	r.Post("/lifecycle/pause", h.handlePause)
	r.Post("/lifecycle/unpause", h.handleUnpause)
	r.Post("/lifecycle/finish-issuance", h.handleFinishIssuance)

	r.Post("/roles/{kind}/members", h.handleRoleAdd)
	r.Delete("/roles/{kind}/members/{id}", h.handleRoleRemove)
	r.Post("/roles/{kind}/renounce", h.handleRoleRenounce)
	r.Get("/roles/{kind}/members/{id}", h.handleRoleCheck)

	r.Post("/permissions", h.handleSetPermission)
	r.Get("/permissions/{id}", h.handleGetPermission)

	r.Get("/ownership", h.handleOwner)
	r.Post("/ownership/transfer", h.handleOwnershipTransfer)
	r.Post("/ownership/renounce", h.handleOwnershipRenounce)
}
