// Command server runs the runcode tool service. It offers run_python_code
// over HTTP (/v1/tools) and MCP (/mcp, or stdio with --stdio), executing
// the code in a remote sandbox.
//
// Configuration is read from a YAML file (--config, RUNCODE_CONFIG,
// ./config.yaml, /etc/runcode/config.yaml) with RUNCODE_* environment
// overrides. The most common ones:
//
//	E2B_API_KEY             - E2B API key for the default backend
//	RUNCODE_SANDBOX_BACKEND - "e2b", "server" or "kubernetes"
//	RUNCODE_PORT            - Listen port (default: 8080)
//	RUNCODE_DEFAULT_SILENT  - Return output to the model by default (default: true)
//	RUNCODE_DEBUG           - Debug categories, e.g. "sandbox,runner"
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
