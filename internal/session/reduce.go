package session

// Effects is what an identity change asks the caller to do.
type Effects struct {
	Reset bool
	Claim bool
	Load  bool
}

// Reduce decides the effects of moving from prev to next. The active
// document is passed in rather than read from shared state so a late event
// can never act on a value captured earlier.
func Reduce(prev, next *Identity, st State) Effects {
	switch {
	case next == nil:
		return Effects{Reset: prev != nil}
	case prev == nil:
		return Effects{Load: true, Claim: st.CanClaim()}
	case prev.UserID != next.UserID:
		return Effects{Reset: true, Load: true}
	default:
		return Effects{}
	}
}

// ApplyIdentity runs the state part of the transition and reports the
// effects still to be carried out against collaborators.
func (s State) ApplyIdentity(next *Identity) (State, Effects) {
	eff := Reduce(s.Identity, next, s)
	if eff.Reset {
		s = s.Reset()
	}
	s = s.WithIdentity(next)
	return s, eff
}
