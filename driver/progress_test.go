//go:build unit

package driver_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/squarefactory/polcloud-submit/driver"
	"github.com/stretchr/testify/require"
)

func newPrinter(t *testing.T, size int) (*driver.ProgressPrinter, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipe.gmy")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{'g'}, size), 0o644))
	var out bytes.Buffer
	p, err := driver.NewProgressPrinter(&out, path)
	require.NoError(t, err)
	return p, &out
}

func TestProgressFractionClamped(t *testing.T) {
	p, _ := newPrinter(t, 1000)

	require.Equal(t, 0.25, p.Fraction(250))
	require.Equal(t, 1.0, p.Fraction(1000))
	require.Equal(t, 1.0, p.Fraction(1500))
	require.Equal(t, 1.0, p.Fraction(1<<40))
}

func TestProgressFractionMonotonic(t *testing.T) {
	p, _ := newPrinter(t, 1000)

	last := 0.0
	for _, sent := range []int64{10, 400, 200, 999, 5, 2000, 0} {
		frac := p.Fraction(sent)
		require.GreaterOrEqual(t, frac, last)
		require.LessOrEqual(t, frac, 1.0)
		last = frac
	}
}

func TestProgressEmptyFile(t *testing.T) {
	p, _ := newPrinter(t, 0)

	require.Equal(t, 1.0, p.Fraction(180))
}

func TestProgressRendering(t *testing.T) {
	p, out := newPrinter(t, 200)

	p.Progress(50)
	p.Progress(400)

	require.Equal(t, "\r[ 25.00%] \r[100.00%] ", out.String())
	require.Equal(t, 2, strings.Count(out.String(), "\r"))
}

func TestProgressMissingFile(t *testing.T) {
	_, err := driver.NewProgressPrinter(&bytes.Buffer{}, filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
