package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/casegrid-labs/casegrid/pkg/core"
)

// LogFile is the per-case execution log written into the case directory.
const LogFile = "log.txt"

func appendLog(cs *core.Case, format string, args ...any) {
	if cs.Dir == "" {
		return
	}
	f, err := os.OpenFile(filepath.Join(cs.Dir, LogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640) //nolint:gosec // G304: path stays under the case directory
	if err != nil {
		return
	}
	defer f.Close()

	stamp := time.Now().Format(time.RFC3339)
	fmt.Fprintf(f, "%s %s\n", stamp, fmt.Sprintf(format, args...))
}

func logStart(cs *core.Case, uri string) {
	appendLog(cs, "start calculator=%s", uri)
}

func logAttemptFailed(cs *core.Case, uri string, err error) {
	appendLog(cs, "attempt failed calculator=%s error=%v", uri, err)
}

func logTerminal(cs *core.Case) {
	switch cs.Status {
	case core.CaseStatusDone:
		appendLog(cs, "done calculator=%s command=%q", cs.Calculator, cs.Command)
	case core.CaseStatusFailed:
		appendLog(cs, "failed error=%s", cs.Error)
	}
}
