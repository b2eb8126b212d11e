package batch

import (
	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
)

// Finalize classifies a parsed outcome. Zero failures yields the plain
// success list; one or more failures yields a single aggregate error that
// carries both the full success list and the full failure list, whatever
// the interleaving was.
func Finalize(o *Outcome) ([]blobtypes.BatchResponse, error) {
	if len(o.Failures) == 0 {
		return o.Successes, nil
	}
	return nil, &errors.BatchError{
		Successes: o.Successes,
		Failures:  o.Failures,
	}
}
