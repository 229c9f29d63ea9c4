package sending

import "errors"

// ErrNotFound is returned by repositories when the requested campaign,
// outbox or item does not exist. Absence discovered during matching is not
// an error and is reported as a nil/false result instead.
var ErrNotFound = errors.New("not found")
