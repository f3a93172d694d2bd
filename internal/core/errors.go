package core

import "errors"

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderExpired    = errors.New("order canceled or expired")
	ErrCancelRejected  = errors.New("cancel rejected")
	ErrListenKeyExpiry = errors.New("listen key expired")
)
