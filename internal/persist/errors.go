package persist

import "github.com/zeebo/errs"

// Error is the error class of every failure returned by this package.
var Error = errs.Class("persist")

// ErrNoSnapshot is returned by LoadSnapshot when the store holds no document.
var ErrNoSnapshot = Error.New("no snapshot stored")
