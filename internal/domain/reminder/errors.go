package reminder

import "errors"

var errInvalidThresholds = errors.New("reminder thresholds must be positive and strictly ascending")
