package common

import "fmt"

// StoreErrType enumerates the failure modes shared by the session store, the
// audit log and the claim store.
type StoreErrType uint32

const (
	// KeyNotFound is returned when no record exists under a key.
	KeyNotFound StoreErrType = iota
	// KeyAlreadyExists is returned when creating a record that already exists.
	KeyAlreadyExists
	// Empty is returned when a collection holds no record, ie. a session
	// without audit entries.
	Empty
	// HashMismatch is returned when content does not hash to the declared
	// value.
	HashMismatch
	// Closed is returned by a store that has been closed.
	Closed
)

// StoreErr is the error type returned by all stores.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error ...
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case KeyAlreadyExists:
		m = "Key Already Exists"
	case Empty:
		m = "Empty"
	case HashMismatch:
		m = "Hash Mismatch"
	case Closed:
		m = "Closed"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that an error is of type StoreErr and that its code matches
// the provided StoreErr code. Wrapped errors are unwrapped first.
func IsStore(err error, t StoreErrType) bool {
	for err != nil {
		if storeErr, ok := err.(StoreErr); ok {
			return storeErr.errType == t
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
