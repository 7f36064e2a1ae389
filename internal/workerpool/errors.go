package workerpool

import "errors"

// errPoolStopped is returned by Submit once Shutdown has been called.
var errPoolStopped = errors.New("workerpool: pool is shut down")
