// errors.go
package leafprefs

import "errors"

var (
	ErrNondecodable       = errors.New("preference value not decodable")
	ErrNotFound           = errors.New("preference not found")
	ErrInvalidKey         = errors.New("invalid preference key")
	ErrInvalidContainer   = errors.New("invalid preference container")
	ErrDuplicateKey       = errors.New("duplicate preference key")
	ErrInvalidPayload     = errors.New("invalid notification payload")
	ErrSerialization      = errors.New("preference serialization failed")
	ErrStorageUnavailable = errors.New("storage backend unavailable")
	ErrBusUnavailable     = errors.New("notification bus unavailable")
	ErrBusClosed          = errors.New("notification bus closed")
)
