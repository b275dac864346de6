package models

import "errors"

var ErrImmutableEvent = errors.New("activity events are append-only")
