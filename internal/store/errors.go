package store

import "errors"

// ErrObjectNotFound reports a missing or trashed object.
var ErrObjectNotFound = errors.New("object not found")

// ErrObjectExists reports an import whose object id is already taken.
var ErrObjectExists = errors.New("object already exists")

// ErrInvalidObjectType reports an object type outside the supported set.
var ErrInvalidObjectType = errors.New("invalid object type")

// ErrClosed reports use of a store after Close.
var ErrClosed = errors.New("store closed")

// ErrSchemaVersion reports a database written by an incompatible schema.
var ErrSchemaVersion = errors.New("schema version mismatch")

// ErrInvalidExport reports an export document that cannot be imported.
var ErrInvalidExport = errors.New("invalid export")
