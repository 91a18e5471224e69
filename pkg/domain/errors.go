package domain

import "errors"

// ErrKeyNotFound is returned by a KeyValueStore when a key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// ErrSessionNotFound is returned when no session is stored for a user.
var ErrSessionNotFound = errors.New("session not found")

// ErrNoActiveSession is returned when an operation requires a current session.
var ErrNoActiveSession = errors.New("no active session")

// ErrNamespaceNotRegistered is returned when a namespace is used before registration.
var ErrNamespaceNotRegistered = errors.New("namespace not registered")

// ErrNamespaceExists is returned when a namespace is registered twice.
var ErrNamespaceExists = errors.New("namespace already registered")

// ErrInvalidPolicy is returned when a namespace policy fails validation.
var ErrInvalidPolicy = errors.New("invalid namespace policy")

// ErrQuotaExceeded is returned when a write would exceed the store capacity.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// ErrInvalidImport is returned when imported conversation data is malformed.
var ErrInvalidImport = errors.New("invalid conversation import")

// ErrInvalidTurn is returned when a turn has an unknown role.
var ErrInvalidTurn = errors.New("invalid turn")

// ErrInvalidUser is returned when a user ID cannot be used as a key segment.
var ErrInvalidUser = errors.New("invalid user id")
