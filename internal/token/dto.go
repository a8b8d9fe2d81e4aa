package token

import "time"

// Request bodies for the JSON API. Identities travel as 0x-prefixed hex
// strings; opaque data fields are free-form strings handed to the policy.

type issueRequest struct {
	To     string `json:"to" validate:"required"`
	Amount uint64 `json:"amount" validate:"required,gt=0"`
	Data   string `json:"data"`
}

type transferRequest struct {
	To     string `json:"to" validate:"required"`
	Amount uint64 `json:"amount" validate:"required,gt=0"`
	Data   string `json:"data"`
}

type transferFromRequest struct {
	From   string `json:"from" validate:"required"`
	To     string `json:"to" validate:"required"`
	Amount uint64 `json:"amount" validate:"required,gt=0"`
	Data   string `json:"data"`
}

type approveRequest struct {
	Spender string `json:"spender" validate:"required"`
	Amount  uint64 `json:"amount"`
}

type redeemRequest struct {
	Amount uint64 `json:"amount" validate:"required,gt=0"`
	Data   string `json:"data"`
}

type redeemFromRequest struct {
	Holder string `json:"holder" validate:"required"`
	Amount uint64 `json:"amount" validate:"required,gt=0"`
	Data   string `json:"data"`
}

type controllerTransferRequest struct {
	From         string `json:"from" validate:"required"`
	To           string `json:"to" validate:"required"`
	Amount       uint64 `json:"amount" validate:"required,gt=0"`
	Data         string `json:"data"`
	OperatorData string `json:"operator_data"`
}

type controllerRedeemRequest struct {
	Holder       string `json:"holder" validate:"required"`
	Amount       uint64 `json:"amount" validate:"required,gt=0"`
	Data         string `json:"data"`
	OperatorData string `json:"operator_data"`
}

type roleMemberRequest struct {
	Member string `json:"member" validate:"required"`
}

type permissionRequest struct {
	Investor       string    `json:"investor" validate:"required"`
	SendAllowed    bool      `json:"send_allowed"`
	ReceiveAllowed bool      `json:"receive_allowed"`
	SendTime       time.Time `json:"send_time"`
	ReceiveTime    time.Time `json:"receive_time"`
	ExpiryTime     time.Time `json:"expiry_time" validate:"required"`
}

type ownershipTransferRequest struct {
	NewOwner string `json:"new_owner" validate:"required"`
}

type issuershipTransferRequest struct {
	NewIssuer string `json:"new_issuer" validate:"required"`
}

// Response bodies.

type balanceResponse struct {
	Identity string `json:"identity"`
	Balance  uint64 `json:"balance"`
}

type allowanceResponse struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance uint64 `json:"allowance"`
}

type supplyResponse struct {
	TotalSupply   uint64 `json:"total_supply"`
	TotalRedeemed uint64 `json:"total_redeemed"`
}

type lifecycleResponse struct {
	Paused   bool `json:"paused"`
	Issuable bool `json:"issuable"`
}

type membershipResponse struct {
	Role     string `json:"role"`
	Identity string `json:"identity"`
	Member   bool   `json:"member"`
}

type permissionResponse struct {
	Investor       string    `json:"investor"`
	SendAllowed    bool      `json:"send_allowed"`
	ReceiveAllowed bool      `json:"receive_allowed"`
	SendTime       time.Time `json:"send_time"`
	ReceiveTime    time.Time `json:"receive_time"`
	ExpiryTime     time.Time `json:"expiry_time"`
	CanSend        bool      `json:"can_send"`
	CanReceive     bool      `json:"can_receive"`
}

type ownerResponse struct {
	Owner string `json:"owner"`
}

type statusResponse struct {
	Status string `json:"status"`
}
