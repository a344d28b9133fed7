package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNoWallet           = errors.New("no wallet connected")
	ErrNoClient           = errors.New("no chain client")
	ErrSigningFailed      = errors.New("signing failed")
	ErrReverted           = errors.New("transaction reverted")
	ErrWalletBusy         = errors.New("wallet busy with another transaction")
	ErrUpstream           = errors.New("upstream service error")
	ErrIdentityKeyMissing = errors.New("identity api key not configured")
	ErrLockHeld           = errors.New("lock already held")
)
