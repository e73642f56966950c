package verifier

import (
	"fmt"

	"github.com/starford/shatag/internal/apperr"
)

// Outcome classifies one verification pass.
type Outcome int

const (
	// Ok means stored and actual checksum and timestamp all match.
	Ok Outcome = iota
	// Outdated means the file changed legitimately (or was never tagged) and
	// its tags were rewritten.
	Outdated
	// Corrupt means the content changed while the timestamp did not.
	Corrupt
	// WriteFailure means the tags needed rewriting and the rewrite failed.
	WriteFailure
)

var outcomeNames = [...]string{
	Ok:           "ok",
	Outdated:     "outdated",
	Corrupt:      "corrupt",
	WriteFailure: "write_failure",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// ParseOutcome returns the Outcome named s.
func ParseOutcome(s string) (Outcome, error) {
	for i, name := range outcomeNames {
		if name == s {
			return Outcome(i), nil
		}
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

// ExitStatus maps an outcome to the process exit status.
func (o Outcome) ExitStatus() int {
	switch o {
	case Corrupt:
		return apperr.StatusCorrupt
	case WriteFailure:
		return apperr.StatusWriteFailure
	default:
		return apperr.StatusOK
	}
}
