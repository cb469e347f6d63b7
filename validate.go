// {{{ Copyright (c) Paul R. Tagliamonte <paultag@gmail.com> 2020-2021
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

package plasmite

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Issue is one structural defect Validate found.
type Issue struct {
	Offset  uint64
	Seq     *uint64
	Message string

	// Hint, when non-empty, suggests remediation (e.g. rebuild via
	// copy-to-new-pool), per §7's "Validator reports may recommend
	// remediation."
	Hint string
}

func (i Issue) String() string {
	if i.Seq != nil {
		return fmt.Sprintf("offset=%d seq=%d: %s", i.Offset, *i.Seq, i.Message)
	}
	return fmt.Sprintf("offset=%d: %s", i.Offset, i.Message)
}

// ValidationReport is the result of one Validate call. Status is "ok" or
// "corrupt", kept alongside OK() for callers that want the literal string
// form named in spec.md §4.9.
type ValidationReport struct {
	Path            string
	Full            bool
	ScannedMessages uint64
	Issues          []Issue
	MessageCount    uint64

	// LastGoodSeq is, after a full scan, the newest sequence the scan
	// confirmed intact before it stopped, whether because the scan
	// completed cleanly or because it hit the first corrupt frame (0 if
	// no frame was confirmed). Without a full scan no frame is read and it
	// is the header's oldest_seq (0 for an empty pool).
	LastGoodSeq uint64
}

// OK reports whether validation found no issues.
func (r ValidationReport) OK() bool { return len(r.Issues) == 0 }

// Status renders "ok" or "corrupt", matching the literal values spec.md
// §4.9 uses for a validation report's status field.
func (r ValidationReport) Status() string {
	if r.OK() {
		return "ok"
	}
	return "corrupt"
}

// Err returns every issue aggregated into one error via multierror, or
// nil if the pool validated cleanly.
func (r ValidationReport) Err() error {
	if r.OK() {
		return nil
	}
	var merr *multierror.Error
	for _, issue := range r.Issues {
		merr = multierror.Append(merr, fmt.Errorf("%s", issue.String()))
	}
	return merr.ErrorOrNil()
}

// Validate opens path read-only and checks it for structural corruption.
// With full=false it only performs the O(1) checks available from the
// header alone (magic, format version, the size/offset invariants, and
// bounds on head/tail/oldest/newest); with full=true it additionally
// walks every frame in the ring, verifying magic, state, frame_len
// chaining, and commit markers.
func Validate(path string, full bool) (ValidationReport, error) {
	p, err := OpenPool(path, OpenOptions{Writable: false})
	if err != nil {
		return ValidationReport{}, err
	}
	defer p.Close()

	report := ValidationReport{Path: path, Full: full}

	st, rerr := p.refresh()
	if rerr != nil {
		report.Issues = append(report.Issues, Issue{Message: rerr.Error()})
		return report, nil
	}
	report.MessageCount = st.messageCount()
	report.LastGoodSeq = st.h.OldestSeq
	if st.IsEmpty() {
		report.LastGoodSeq = 0
	}

	if !full {
		return report, nil
	}
	report.LastGoodSeq = 0

	ringOffset, ringSize := st.RingBounds()
	ringEnd := int64(ringOffset) + int64(ringSize)
	off := int64(st.h.TailOff)
	remaining := st.messageCount()
	visitedWraps := 0

	for remaining > 0 {
		meta, derr := decodeFrame(p.mmap, off, ringEnd-off)
		if derr != nil {
			report.Issues = append(report.Issues, Issue{
				Offset:  uint64(off),
				Message: derr.Error(),
				Hint:    "rebuild the pool via copy-to-new-pool, carrying forward every sequence up to last_good_seq",
			})
			break
		}
		report.ScannedMessages++

		if meta.State == frameWrap {
			visitedWraps++
			if visitedWraps > 2 {
				report.Issues = append(report.Issues, Issue{
					Offset:  uint64(off),
					Message: "wrap marker visited more than twice; ring chain may be cyclic",
					Hint:    "rebuild the pool via copy-to-new-pool",
				})
				break
			}
			off = int64(ringOffset)
			continue
		}

		if meta.State != frameCommitted {
			seq := meta.Seq
			report.Issues = append(report.Issues, Issue{
				Offset:  uint64(off),
				Seq:     &seq,
				Message: "frame in the live range is not Committed",
				Hint:    "this frame was mid-write when the pool was last observed; it is correctly invisible to readers",
			})
		} else {
			report.LastGoodSeq = meta.Seq
		}

		remaining--
		off += int64(meta.FrameLen)
		if off >= ringEnd {
			off = int64(ringOffset)
		}
	}

	return report, nil
}

// vim: foldmethod=marker
