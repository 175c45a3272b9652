package session

import (
	"encoding/json"
)

type GuardMode string

const (
	GuardArmed   GuardMode = "armed"
	GuardGuarded GuardMode = "guarded"
)

// Guard suppresses a resubmission of the exact input that produced the
// result currently on screen.
type Guard struct {
	Mode        GuardMode `json:"mode"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

func (g Guard) Arm() Guard {
	return Guard{Mode: GuardArmed}
}

func (g Guard) Record(fp string) Guard {
	return Guard{Mode: GuardGuarded, Fingerprint: fp}
}

func (g Guard) Rejects(fp string) bool {
	return g.Mode == GuardGuarded && g.Fingerprint == fp
}

// Fingerprint is the canonical serialization of the field values.
// encoding/json writes map keys in sorted order.
func Fingerprint(values map[string]string) string {
	if values == nil {
		values = map[string]string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(b)
}
