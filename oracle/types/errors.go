package types

import (
	errorsmod "cosmossdk.io/errors"
)

const Codespace = "oracle"

// errors
var (
	ErrRegistration         = errorsmod.Register(Codespace, 2, "oracle registration failed")
	ErrRegistrationReverted = errorsmod.Register(Codespace, 3, "registration transaction reverted")
	ErrSubmissionRejected   = errorsmod.Register(Codespace, 4, "oracle response rejected")
	ErrTransport            = errorsmod.Register(Codespace, 5, "ledger transport failure")
	ErrInvalidIndex         = errorsmod.Register(Codespace, 6, "invalid selector index")
	ErrVerdictSource        = errorsmod.Register(Codespace, 7, "verdict source failure")
	ErrInvalidConfig        = errorsmod.Register(Codespace, 8, "invalid config")
	ErrReceiptUnknown       = errorsmod.Register(Codespace, 9, "transaction sent, receipt unknown")
)
