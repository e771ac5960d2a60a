package epg

import "errors"

// Failure classes for a guide run. Sources wrap these so the generator can
// log and report why it fell back.
var (
	ErrNetwork = errors.New("network error")
	ErrParse   = errors.New("malformed response")
	ErrAuth    = errors.New("authentication failed")
	ErrNoData  = errors.New("no schedule data")
)
