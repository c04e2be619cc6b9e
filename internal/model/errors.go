package model

import "errors"

var ErrNoTimestamp = errors.New("timestamp field missing")
