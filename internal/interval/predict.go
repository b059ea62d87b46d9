package interval

import (
	"fmt"
)

// NextStartLayout is how a derived next start is handed back to the parser.
const NextStartLayout = "2006-01-02 15:04"

// NextInputs describe the interval following the current one.
type NextInputs struct {
	// Requested asks for a prediction even when no other field is set.
	Requested bool

	Start    string
	End      string
	Duration string

	// Offset is the gap after the current interval's end, used only when
	// Start, End and Duration are all absent. Empty means the configured
	// default offset.
	Offset string
}

func (n NextInputs) inputs() Inputs {
	return Inputs{Start: n.Start, End: n.End, Duration: n.Duration}
}

// PredictNext resolves the interval that follows current.
//
// It returns ok=false when no prediction was requested and no next-interval
// field was supplied. With nothing but the request, the next start is
// current.End plus the offset and the default duration applies.
func (r *Resolver) PredictNext(next NextInputs, current Interval) (iv Interval, ok bool, err error) {
	in := next.inputs()
	if !next.Requested && in.Empty() {
		return Interval{}, false, nil
	}

	if in.Empty() {
		offsetText := present(next.Offset)
		if offsetText == "" {
			offsetText = r.cfg.DefaultOffset
		}

		offset, err := r.parser.ParseDuration(offsetText)
		if err != nil {
			return Interval{}, false, fmt.Errorf("offset: %w", err)
		}

		in = Inputs{
			Start: current.End.Add(offset).In(r.cfg.Location).Format(NextStartLayout),
		}
	}

	iv, err = r.Resolve(in)
	if err != nil {
		return Interval{}, false, err
	}
	return iv, true, nil
}
