package bank

// AccountSet keeps accounts in first-seen order, dropping any account whose
// Key was already seen.
type AccountSet struct {
	seen  map[string]struct{}
	items []Account
}

func NewAccountSet() *AccountSet {
	return &AccountSet{seen: make(map[string]struct{})}
}

// Add reports whether the account was new. Accounts without a key are
// rejected.
func (s *AccountSet) Add(a Account) bool {
	key := a.Key()
	if key == "" {
		return false
	}
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, a)
	return true
}

func (s *AccountSet) Len() int { return len(s.items) }

func (s *AccountSet) Accounts() []Account {
	out := make([]Account, len(s.items))
	copy(out, s.items)
	return out
}

// MovementSet deduplicates movements by their (date, description, amount)
// key within one extraction pass.
type MovementSet struct {
	seen  map[MovementKey]struct{}
	items []Movement
}

func NewMovementSet() *MovementSet {
	return &MovementSet{seen: make(map[MovementKey]struct{})}
}

func (s *MovementSet) Add(m Movement) bool {
	key := m.Key()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, m)
	return true
}

// AddAll returns how many of ms were new.
func (s *MovementSet) AddAll(ms []Movement) int {
	added := 0
	for _, m := range ms {
		if s.Add(m) {
			added++
		}
	}
	return added
}

func (s *MovementSet) Len() int { return len(s.items) }

func (s *MovementSet) Movements() []Movement {
	out := make([]Movement, len(s.items))
	copy(out, s.items)
	return out
}
