package registry

import "fmt"

// TransferSequencePolicy decides what sequence a claim carries after a
// transfer.
type TransferSequencePolicy string

const (
	// PreserveSequence keeps the sequence recorded at creation, so a claim's
	// age survives ownership changes. Transfers never read the sequence source.
	PreserveSequence TransferSequencePolicy = "preserve"
	// RefreshSequence records the current sequence on every transfer.
	RefreshSequence TransferSequencePolicy = "refresh"
)

// ParseTransferSequencePolicy accepts "preserve", "refresh" or empty (preserve).
func ParseTransferSequencePolicy(s string) (TransferSequencePolicy, error) {
	p := TransferSequencePolicy(s)
	if p == "" {
		return PreserveSequence, nil
	}
	if !p.valid() {
		return "", fmt.Errorf("unknown transfer sequence policy %q", s)
	}
	return p, nil
}

func (p TransferSequencePolicy) valid() bool {
	return p == PreserveSequence || p == RefreshSequence
}
