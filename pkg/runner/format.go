package runner

import (
	"strconv"
	"strings"

	"golang.org/x/text/message"

	"github.com/rhuss/runcode/pkg/sandbox"
)

// Format renders an execution as the text returned to the model or user.
// Sections appear in a fixed order (stdout, stderr, return value, error,
// image count) separated by blank lines; empty sections are omitted. An
// execution without any section renders as the no-output message.
func Format(exec *sandbox.Execution, p *message.Printer) string {
	if exec == nil {
		return p.Sprintf(msgNoOutput)
	}

	var parts []string

	if out := strings.TrimSpace(exec.Stdout()); len(exec.Logs.Stdout) > 0 {
		parts = append(parts, p.Sprintf(msgStdout, out))
	}
	if errOut := strings.TrimSpace(exec.Stderr()); len(exec.Logs.Stderr) > 0 {
		parts = append(parts, p.Sprintf(msgStderr, errOut))
	}
	if text := exec.Text(); text != "" {
		parts = append(parts, p.Sprintf(msgReturnValue, text))
	}
	if exec.Error != nil {
		parts = append(parts, p.Sprintf(msgExecError, exec.Error.Name, exec.Error.Value))
	}
	if n := countImages(exec); n > 0 {
		parts = append(parts, p.Sprintf(msgImages, strconv.Itoa(n)))
	}

	if len(parts) == 0 {
		return p.Sprintf(msgNoOutput)
	}
	return strings.Join(parts, "\n\n")
}

func countImages(exec *sandbox.Execution) int {
	if exec == nil {
		return 0
	}
	n := 0
	for _, r := range exec.Results {
		if r.HasImage() {
			n++
		}
	}
	return n
}
