package item

// ExceptionRegistry overrides the default modifier split for named items.
// The zero value is an empty registry and applies the default rules.
type ExceptionRegistry struct {
	splitOverride map[string]struct{}
	fullValue     map[string]struct{}
}

// ExceptionLists is the on-disk shape of the registry.
type ExceptionLists struct {
	SplitOverride []string `json:"exceptions_80_20" yaml:"exceptions_80_20"`
	FullValue     []string `json:"exceptions_full" yaml:"exceptions_full"`
}

// NewExceptionRegistry builds a registry from the two name lists.
func NewExceptionRegistry(lists ExceptionLists) *ExceptionRegistry {
	return &ExceptionRegistry{
		splitOverride: nameSet(lists.SplitOverride),
		fullValue:     nameSet(lists.FullValue),
	}
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if k := NameKey(n); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

// SplitOverride reports whether name uses the 80/20 split.
func (r *ExceptionRegistry) SplitOverride(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.splitOverride[NameKey(name)]
	return ok
}

// FullValue reports whether name ignores modifiers entirely.
func (r *ExceptionRegistry) FullValue(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.fullValue[NameKey(name)]
	return ok
}

// Counts returns the sizes of the two sets.
func (r *ExceptionRegistry) Counts() (split, full int) {
	if r == nil {
		return 0, 0
	}
	return len(r.splitOverride), len(r.fullValue)
}
