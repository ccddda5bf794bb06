package models

import "errors"

var (
	ErrNotFound            = errors.New("creator not found")
	ErrTransientRemote     = errors.New("remote call failed")
	ErrTransactionRejected = errors.New("transaction rejected by signer")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrStaleData           = errors.New("window read failed")
)
