package verifier

import (
	"fmt"
	"io"

	"github.com/starford/shatag/internal/tagstore"
)

const absent = "-"

// Report writes the operator-facing lines for r. Regular lines go to out;
// the corrupt and write-failure diagnostics go to errOut.
func Report(out, errOut io.Writer, r Result) {
	switch r.Outcome {
	case Ok:
		fmt.Fprintf(out, "<ok> %s\n", r.Path)
		return
	case Corrupt:
		fmt.Fprintf(errOut, "Error: corrupt file %s\n", r.Path)
		fmt.Fprintf(out, "<corrupt> %s\n", r.Path)
	default:
		fmt.Fprintf(out, "<outdated> %s\n", r.Path)
	}
	fmt.Fprintf(out, " stored: %s %s\n", StoredChecksum(r.Stored), StoredTimestamp(r.Stored))
	fmt.Fprintf(out, " actual: %s %s\n", r.Actual.Checksum, tagstore.FormatTimestamp(r.Actual.Timestamp))

	if r.Outcome == WriteFailure {
		fmt.Fprintf(errOut, "Error: could not write metadata to file %s: %v\n", r.Path, r.Err)
	}
}

// StoredChecksum renders the stored checksum, "-" when absent.
func StoredChecksum(s Stored) string {
	if v, ok := s.Checksum.Get(); ok {
		return v
	}
	return absent
}

// StoredTimestamp renders the stored timestamp, "-" when absent.
func StoredTimestamp(s Stored) string {
	if v, ok := s.Timestamp.Get(); ok {
		return tagstore.FormatTimestamp(v)
	}
	return absent
}
