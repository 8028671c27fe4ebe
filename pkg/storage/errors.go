package storage

import "errors"

var (
	ErrNilObject         = errors.New("ouroboros: nil object")
	ErrObjectNotFound    = errors.New("ouroboros: object not found")
	ErrHandleCollision   = errors.New("ouroboros: handle already held by another object")
	ErrBlockRecursion    = errors.New("ouroboros: block reference would recurse into its own block")
	ErrMissingEntityData = errors.New("ouroboros: entity type without entity data")
	ErrTransactionClosed = errors.New("ouroboros: transaction already finished")
)
