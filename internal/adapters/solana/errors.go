package solana

import "errors"

// Sentinel kinds for solana errors.
var (
	ErrNoEndpoint   = errors.New("rpc endpoint required")
	ErrRPC          = errors.New("solana rpc failed")
	ErrTransfer     = errors.New("transfer failed")
	ErrInvalidInput = errors.New("invalid transfer")
)
