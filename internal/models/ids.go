package models

import (
	"strings"
	"sync"

	nanoid "github.com/jaevor/go-nanoid"
)

const (
	transientPrefix    = "tmp_"
	transientIDLength  = 12
	transientFullWidth = len(transientPrefix) + transientIDLength
)

var (
	transientMu  sync.Mutex
	transientGen func() string
)

func init() {
	gen, err := nanoid.Standard(transientIDLength)
	if err != nil {
		panic("models: init transient id generator: " + err.Error())
	}
	transientGen = gen
}

// NewTransientID returns an id for a document that has not been persisted.
// Storage assigns UUIDs, so the prefix and width never collide with them.
func NewTransientID() string {
	transientMu.Lock()
	defer transientMu.Unlock()
	return transientPrefix + transientGen()
}

func IsTransientID(id string) bool {
	return len(id) == transientFullWidth && strings.HasPrefix(id, transientPrefix)
}
