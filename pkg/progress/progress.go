package progress

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

type (
	// Bar tracks the rows dumped for a table.
	Bar interface {
		Add(int) error
		Finish() error
	}

	// Builder creates the bar of a table.
	Builder func(table string) Bar

	// RowsBar is a spinner counting rows, the total is unknown until the table is read.
	RowsBar struct {
		*progressbar.ProgressBar
	}

	noopBar struct{}
)

// NewRowsBar creates a rows bar rendering to w.
func NewRowsBar(w io.Writer, table string) *RowsBar {
	return &RowsBar{
		ProgressBar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(table),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("rows"),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionOnCompletion(func() {
				io.WriteString(w, "\n")
			}),
		),
	}
}

// NewBuilder returns a builder of rows bars rendering to w.
func NewBuilder(w io.Writer) Builder {
	return func(table string) Bar {
		return NewRowsBar(w, table)
	}
}

// Noop is a builder of bars that render nothing.
func Noop(string) Bar {
	return noopBar{}
}

func (noopBar) Add(int) error {
	return nil
}

func (noopBar) Finish() error {
	return nil
}
