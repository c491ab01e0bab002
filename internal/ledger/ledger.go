package ledger

import (
	"slices"

	"pricefeed/internal/schema"
	"pricefeed/pkg/exception"
)

// DuplicatePolicy decides what happens to a record whose sequence was already seen.
type DuplicatePolicy uint8

const (
	// DuplicateKeep appends every record. Only the seen-set is deduplicated.
	DuplicateKeep DuplicatePolicy = iota
	// DuplicateDrop keeps the first record received for each sequence.
	DuplicateDrop
)

func (p DuplicatePolicy) String() string {
	switch p {
	case DuplicateKeep:
		return "keep"
	case DuplicateDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// ParseDuplicatePolicy maps a config value to a policy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, bool) {
	switch s {
	case "", "keep":
		return DuplicateKeep, true
	case "drop":
		return DuplicateDrop, true
	default:
		return DuplicateKeep, false
	}
}

// Ledger stores accepted records and the set of sequences seen so far.
// It is not safe for concurrent use.
type Ledger struct {
	policy  DuplicatePolicy
	records []schema.Record
	seen    map[schema.Sequence]struct{}
	highest schema.Sequence
}

// New creates an empty ledger.
func New(policy DuplicatePolicy) *Ledger {
	return &Ledger{
		policy: policy,
		seen:   make(map[schema.Sequence]struct{}),
	}
}

// Insert stores rec and marks its sequence as seen.
// It reports whether the sequence had not been seen before.
func (l *Ledger) Insert(rec schema.Record) bool {
	_, dup := l.seen[rec.Sequence]
	if dup && l.policy == DuplicateDrop {
		return false
	}

	l.records = append(l.records, rec)
	if dup {
		return false
	}

	if len(l.seen) == 0 || rec.Sequence > l.highest {
		l.highest = rec.Sequence
	}
	l.seen[rec.Sequence] = struct{}{}
	return true
}

// Has reports whether seq was seen.
func (l *Ledger) Has(seq schema.Sequence) bool {
	_, ok := l.seen[seq]
	return ok
}

// Len returns the number of stored records, duplicates included.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Distinct returns the number of distinct sequences seen.
func (l *Ledger) Distinct() int {
	return len(l.seen)
}

// HighestSeen returns the largest sequence seen.
func (l *Ledger) HighestSeen() (schema.Sequence, error) {
	if len(l.seen) == 0 {
		return 0, exception.ErrEmptyLedger
	}
	return l.highest, nil
}

// MissingSequences returns, in ascending order, every sequence in
// [1, HighestSeen) that was not seen. Sequence 0 is never missing.
func (l *Ledger) MissingSequences() []schema.Sequence {
	highest, err := l.HighestSeen()
	if err != nil {
		return nil
	}

	var missing []schema.Sequence
	for seq := schema.Sequence(1); seq < highest; seq++ {
		if _, ok := l.seen[seq]; !ok {
			missing = append(missing, seq)
		}
	}
	return missing
}

// SortedRecords returns a copy of the stored records ordered by sequence.
// Records sharing a sequence keep their arrival order.
func (l *Ledger) SortedRecords() []schema.Record {
	out := slices.Clone(l.records)
	slices.SortStableFunc(out, func(a, b schema.Record) int {
		switch {
		case a.Sequence < b.Sequence:
			return -1
		case a.Sequence > b.Sequence:
			return 1
		default:
			return 0
		}
	})
	return out
}
