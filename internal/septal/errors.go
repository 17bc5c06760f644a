package septal

import "errors"

// ErrGateClosed is an expected control signal, not a fault: it reports that
// traffic to/from an isolated peer was refused.
var ErrGateClosed = errors.New("septal: gate closed")
