package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/unicon/grader-go/pkg/types"
)

// SubprocessRunner executes submissions as local subprocesses without
// isolation. It exists for development and tests only; production
// deployments use the queue-backed sandbox. Memory limits are not
// enforced locally.
type SubprocessRunner struct {
	python  string
	workDir string
	logger  *slog.Logger
}

// SubprocessConfig holds configuration for the subprocess runner.
type SubprocessConfig struct {
	// Python is the interpreter binary (default "python3").
	Python string

	// WorkDir is the parent directory for per-request scratch dirs
	// (empty = os.TempDir).
	WorkDir string
}

// NewSubprocessRunner creates a local, non-isolated runner.
func NewSubprocessRunner(cfg *SubprocessConfig, logger *slog.Logger) *SubprocessRunner {
	if cfg == nil {
		cfg = &SubprocessConfig{}
	}
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubprocessRunner{python: python, workDir: cfg.WorkDir, logger: logger}
}

const harnessName = "__harness.py"

// harnessTemplate invokes the requested function and prints the structured
// result as the final JSON line on stdout.
const harnessTemplate = `import json
import sys

sys.path.insert(0, ".")

with open("__args.json") as fh:
    args = json.load(fh)

from %s import %s as target

try:
    value = target(*args)
except Exception as exc:  # noqa: BLE001
    print(json.dumps({"status": "RTE", "error": repr(exc)}))
else:
    if not isinstance(value, (str, int, float, bool, list, dict, type(None))):
        value = str(value)
    print(json.dumps({"status": "OK", "value": value}))
`

// Run materializes the file bundle in a scratch directory and executes the
// harness under the request's time limit.
func (d *SubprocessRunner) Run(ctx context.Context, req *types.RunnerRequest) (*types.RunnerResponse, error) {
	dir, err := os.MkdirTemp(d.workDir, "grader-run-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	entry := types.File{Name: req.EntryFile}
	for _, f := range req.Files {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("reject file: %w", err)
		}
		target := filepath.Join(dir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("prepare file dir: %w", err)
		}
		if err := os.WriteFile(target, []byte(f.Content), 0o644); err != nil {
			return nil, fmt.Errorf("write file %s: %w", f.Name, err)
		}
		if f.Name == req.EntryFile {
			entry = f
		}
	}

	args := req.Args
	if args == nil {
		args = []interface{}{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "__args.json"), argsJSON, 0o644); err != nil {
		return nil, fmt.Errorf("write args: %w", err)
	}

	harness := fmt.Sprintf(harnessTemplate, entry.ModuleName(), req.Function)
	if err := os.WriteFile(filepath.Join(dir, harnessName), []byte(harness), 0o644); err != nil {
		return nil, fmt.Errorf("write harness: %w", err)
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if req.TimeLimitSecs > 0 {
		execCtx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeLimitSecs)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, d.python, harnessName)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start harness: %w", err)
	}

	result, stdoutLines := scanHarnessOutput(stdout)

	waitErr := cmd.Wait()

	if execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return &types.RunnerResponse{
			ID:     req.ID,
			Status: types.RunnerStatusTLE,
			Stderr: stderr.String(),
		}, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}

	if result == nil {
		// Process died without reporting: interpreter crash, missing
		// module, OOM kill.
		status := types.RunnerStatusRTE
		msg := stderr.String()
		if waitErr != nil && msg == "" {
			msg = waitErr.Error()
		}
		d.logger.Debug("harness exited without result line",
			slog.String("request_id", req.ID),
			slog.Any("wait_err", waitErr))
		return &types.RunnerResponse{
			ID:     req.ID,
			Status: status,
			Error:  msg,
			Stdout: strings.Join(stdoutLines, "\n"),
			Stderr: stderr.String(),
		}, nil
	}

	result.ID = req.ID
	result.Stdout = strings.Join(stdoutLines, "\n")
	result.Stderr = stderr.String()
	return result, nil
}

// scanHarnessOutput separates the harness result from submission prints.
// The result is the last JSON line carrying a status; every other line is
// kept verbatim as submission stdout, including JSON the submission
// happens to print itself.
func scanHarnessOutput(r io.Reader) (*types.RunnerResponse, []string) {
	var lines []string
	var result *types.RunnerResponse
	var resultLine string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var parsed types.RunnerResponse
		if err := json.Unmarshal([]byte(line), &parsed); err == nil && parsed.Status != "" {
			if result != nil {
				lines = append(lines, resultLine)
			}
			result = &parsed
			resultLine = line
			continue
		}
		lines = append(lines, line)
	}
	return result, lines
}

// Close is a no-op for the subprocess runner.
func (d *SubprocessRunner) Close() error { return nil }
