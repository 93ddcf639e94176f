package formatter

import (
	"bytes"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
)

// colors.
const (
	none   = 0
	red    = 31
	green  = 32
	yellow = 33
	blue   = 34
	gray   = 37
)

// Colors mapping.
var Colors = [...]int{
	log.PanicLevel: red,
	log.FatalLevel: red,
	log.ErrorLevel: red,
	log.WarnLevel:  yellow,
	log.InfoLevel:  blue,
	log.DebugLevel: gray,
	log.TraceLevel: gray,
}

// Strings mapping.
var Strings = [...]string{
	log.PanicLevel: "⨯",
	log.FatalLevel: "⨯",
	log.ErrorLevel: "⨯",
	log.WarnLevel:  "•",
	log.InfoLevel:  "•",
	log.DebugLevel: "•",
	log.TraceLevel: "•",
}

// CliFormatter is a CLI formatter for logrus. The dump goes to stdout, so log lines are
// meant for stderr.
type CliFormatter struct {
	// DisableColors writes plain text, for output that is not a terminal
	DisableColors bool
}

// Format renders a single log entry
func (f *CliFormatter) Format(e *log.Entry) ([]byte, error) {
	var b *bytes.Buffer

	if e.Buffer != nil {
		b = e.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	color := Colors[e.Level]
	if f.DisableColors {
		color = none
	}
	level := Strings[e.Level]

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		if k == "source" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if f.DisableColors {
		fmt.Fprintf(b, "%s %-25s", level, e.Message)
	} else {
		fmt.Fprintf(b, "\033[%dm%*s\033[0m %-25s", color, 1, level, e.Message)
	}

	for _, key := range keys {
		if f.DisableColors {
			fmt.Fprintf(b, " %s=%v", key, e.Data[key])
			continue
		}
		fmt.Fprintf(b, " \033[%dm%s\033[0m=%v", color, key, e.Data[key])
	}

	fmt.Fprintln(b)

	return b.Bytes(), nil
}
