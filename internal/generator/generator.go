// Package generator builds the random records written by workers.
package generator

import (
	"math/rand"

	"workloadgen/internal/config"
	"workloadgen/internal/workload"
)

// ForTarget returns the record source for a target of the given backend kind.
// Broker topics get event schemas, every other backend gets documents.
func ForTarget(kind string, target workload.Target, rng *rand.Rand) workload.RecordSource {
	if kind == config.BackendKafka {
		return NewEvents(target.String(), rng)
	}
	return NewDocument(rng)
}
