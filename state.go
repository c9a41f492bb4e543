package pomelo

// State is the position of a record in its lifecycle. Dirtiness is not
// a state: a loaded record with unsaved edits stays StateLoaded and
// tracks the edits through its dirty key set.
type State uint8

const (
	StateNew State = iota
	StateUnloaded
	StateLoading
	StateLoaded
	StateValidating
	StateSaving
	StateDestroying
	StateDestroyed
	StateError
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateValidating:
		return "validating"
	case StateSaving:
		return "saving"
	case StateDestroying:
		return "destroying"
	case StateDestroyed:
		return "destroyed"
	case StateError:
		return "error"
	default:
		return "invalid"
	}
}
