package driver

import (
	"fmt"
	"io"
	"os"
)

// ProgressPrinter renders upload progress of one file as a percentage,
// rewriting the same console line.
type ProgressPrinter struct {
	w     io.Writer
	total int64
	last  float64
}

// NewProgressPrinter sizes the printer from the file to be uploaded.
func NewProgressPrinter(w io.Writer, file string) (*ProgressPrinter, error) {
	fi, err := os.Stat(file)
	if err != nil {
		return nil, err
	}
	return &ProgressPrinter{w: w, total: fi.Size()}, nil
}

// Fraction maps a byte count to the share of the file sent. The request
// framing makes the count overshoot the file size, so the result is capped at
// 1 and never goes backwards.
func (p *ProgressPrinter) Fraction(sent int64) float64 {
	frac := 1.0
	if p.total > 0 {
		frac = float64(sent) / float64(p.total)
	}
	if frac > 1 {
		frac = 1
	}
	if frac < p.last {
		frac = p.last
	}
	p.last = frac
	return frac
}

func (p *ProgressPrinter) Progress(sent int64) {
	fmt.Fprintf(p.w, "\r[%6.2f%%] ", p.Fraction(sent)*100)
}
