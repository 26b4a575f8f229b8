package tui

import (
	"fmt"
	"io"
	"os"

	"github.com/armon/circbuf"
	"github.com/mattn/go-colorable"
)

// log output is held back while the spinner owns the terminal
const errBufferSize = 128 * 1024

var (
	Out io.Writer = io.Discard
	Err io.Writer = io.Discard

	dump io.Writer = os.Stderr
)

// Init switches the UI on. Until then all views write to io.Discard.
func Init() {
	Out = colorable.NewColorableStdout()
	dump = colorable.NewColorableStderr()

	buf, err := circbuf.NewBuffer(errBufferSize)
	if err != nil {
		Err = io.Discard
		return
	}
	Err = buf
}

// DumpErr prints the held back log lines once a command failed and empties
// the buffer. A running spinner is stopped first.
func DumpErr() {
	buf, ok := Err.(*circbuf.Buffer)
	if !ok || buf.TotalWritten() == 0 {
		return
	}
	if haveSpinner() {
		killSpinner()
	}

	if dropped := buf.TotalWritten() - buf.Size(); dropped > 0 {
		fmt.Fprintf(dump, "(%d bytes of earlier log output dropped)\n", dropped)
	}
	fmt.Fprint(dump, buf.String())
	buf.Reset()
}

func printf(format string, a ...interface{}) {
	fmt.Fprintf(Out, format, a...)
}
