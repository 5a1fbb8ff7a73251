package dascustody

import (
	"github.com/agenthands/dascustody/pkg/core"
)

var (
	ErrParse              = core.ErrParse
	ErrDecode             = core.ErrDecode
	ErrUnsupportedKeyType = core.ErrUnsupportedKeyType
	ErrInvalidSubnetCount = core.ErrInvalidSubnetCount
	ErrInvalidSubnet      = core.ErrInvalidSubnet
	ErrInvalidLength      = core.ErrInvalidLength
	ErrInvalidConfig      = core.ErrInvalidConfig
	ErrInvalidInput       = core.ErrInvalidInput
	ErrNotFound           = core.ErrNotFound
	ErrCorrupt            = core.ErrCorrupt
	ErrClosed             = core.ErrClosed
)
