package e2b

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rhuss/runcode/pkg/debug"
	"github.com/rhuss/runcode/pkg/sandbox"
)

// maxLineSize bounds a single NDJSON line. Result events carry base64
// images, so lines can be large.
const maxLineSize = 16 << 20

// parseStream reads the /execute NDJSON stream into an Execution. Unknown
// event types are ignored. The stream is complete when an
// end_of_execution event arrives; a stream that ends without one is
// reported as an error.
func parseStream(r io.Reader) (*sandbox.Execution, error) {
	exec := &sandbox.Execution{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	ended := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("decode execution event: %w", err)
		}

		switch ev.Type {
		case eventStdout:
			exec.Logs.Stdout = append(exec.Logs.Stdout, ev.Text)
		case eventStderr:
			exec.Logs.Stderr = append(exec.Logs.Stderr, ev.Text)
		case eventResult:
			exec.Results = append(exec.Results, sandbox.Result{
				Text:         ev.Text,
				HTML:         ev.HTML,
				Markdown:     ev.Markdown,
				SVG:          ev.SVG,
				PNG:          ev.PNG,
				JPEG:         ev.JPEG,
				JSON:         ev.JSON,
				IsMainResult: ev.IsMainResult,
			})
		case eventError:
			exec.Error = &sandbox.ExecutionError{
				Name:      ev.Name,
				Value:     ev.Value,
				Traceback: ev.Traceback,
			}
		case eventExecutionCount:
			exec.ExecutionCount = ev.ExecutionCount
		case eventEnd:
			ended = true
		default:
			debug.Log("sandbox", "ignoring e2b event", "type", ev.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read execution stream: %w", err)
	}
	if !ended {
		return nil, fmt.Errorf("execution stream ended before end_of_execution")
	}
	return exec, nil
}
