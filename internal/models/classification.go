package models

// Classification is the outcome assigned to a single candidate record
type Classification int

const (
	Unknown Classification = iota
	Known
	DuplicateKnown
	EmptyHash
)

// String returns the short name used in logs and summaries
func (c Classification) String() string {
	switch c {
	case Known:
		return "known"
	case Unknown:
		return "unknown"
	case DuplicateKnown:
		return "duplicate"
	case EmptyHash:
		return "empty"
	default:
		return "invalid"
	}
}
