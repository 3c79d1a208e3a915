package subscription

import (
	"errors"
	"fmt"
)

// Kind is the closed set of subscription durations on sale.
type Kind uint8

const (
	KindMonthly Kind = iota
)

func (k Kind) String() string {
	switch k {
	case KindMonthly:
		return "monthly"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ErrUnknownKind rejects fee updates with an unrecognized kind label.
var ErrUnknownKind = errors.New("unknown subscription kind")

// ParseKind converts a free-form label into a Kind. Labels outside the
// closed set are rejected, never truncated or reinterpreted.
func ParseKind(label string) (Kind, error) {
	switch label {
	case "monthly":
		return KindMonthly, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, label)
	}
}
