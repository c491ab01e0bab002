package reassembly

// OutOfRangePolicy decides what happens to a missing sequence that cannot be
// carried by a resend request.
type OutOfRangePolicy uint8

const (
	// OutOfRangeFail aborts the run.
	OutOfRangeFail OutOfRangePolicy = iota
	// OutOfRangeSkip leaves the sequence missing and carries on.
	OutOfRangeSkip
)

func (p OutOfRangePolicy) String() string {
	switch p {
	case OutOfRangeFail:
		return "fail"
	case OutOfRangeSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// ParseOutOfRangePolicy maps a config value to a policy.
func ParseOutOfRangePolicy(s string) (OutOfRangePolicy, bool) {
	switch s {
	case "", "fail":
		return OutOfRangeFail, true
	case "skip":
		return OutOfRangeSkip, true
	default:
		return OutOfRangeFail, false
	}
}
