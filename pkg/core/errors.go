package core

import (
	"github.com/cockroachdb/errors"
)

var (
	ErrParse              = errors.New("dascustody: parse error")
	ErrDecode             = errors.New("dascustody: decode error")
	ErrUnsupportedKeyType = errors.New("dascustody: unsupported key type")
	ErrInvalidSubnetCount = errors.New("dascustody: invalid subnet count")
	ErrInvalidSubnet      = errors.New("dascustody: invalid subnet")
	ErrInvalidLength      = errors.New("dascustody: invalid length")
	ErrInvalidConfig      = errors.New("dascustody: invalid config")
	ErrInvalidInput       = errors.New("dascustody: invalid input")
	ErrNotFound           = errors.New("dascustody: not found")
	ErrCorrupt            = errors.New("dascustody: corrupt data")
	ErrClosed             = errors.New("dascustody: registry closed")
)
