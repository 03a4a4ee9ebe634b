package api

// OperatorSet is the configured set of chat-platform operator ids allowed to
// perform admin-attributed actions.
type OperatorSet map[string]struct{}

// NewOperatorSet builds an OperatorSet from the configured id list.
func NewOperatorSet(ids []string) OperatorSet {
	set := make(OperatorSet, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// Contains reports whether the given id is a configured operator.
func (s OperatorSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}
