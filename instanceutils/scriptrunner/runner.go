package scriptrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ruteri/script-provisioning-agent/interfaces"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// OutputFileName is the file in the work dir that receives the script's stdout and stderr.
const OutputFileName = "script-output.log"

// Runner executes provisioning scripts. Shell scripts run in-process,
// PowerShell scripts through the powershell host, anything else directly.
type Runner struct {
	// PowerShell overrides the powershell binary. Empty picks powershell, then pwsh.
	PowerShell string
	// Env is the environment for the script. Nil inherits the agent's environment.
	Env []string

	log *slog.Logger
}

func NewRunner(log *slog.Logger) *Runner {
	return &Runner{log: log}
}

// Run executes scriptPath with args inside workDir. A non-zero exit or a
// failure to start wraps interfaces.ErrScriptExecution.
func (r *Runner) Run(ctx context.Context, scriptPath string, args []string, workDir string) error {
	out, err := os.OpenFile(filepath.Join(workDir, OutputFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: could not open script output: %w", interfaces.ErrScriptExecution, err)
	}
	defer out.Close()

	start := time.Now()
	r.log.Info("Executing provisioning script",
		slog.String("script", filepath.Base(scriptPath)),
		slog.Int("args", len(args)))

	switch strings.ToLower(filepath.Ext(scriptPath)) {
	case ".sh":
		err = r.runShell(ctx, scriptPath, args, workDir, out)
	case ".ps1":
		err = r.runPowerShell(ctx, scriptPath, args, workDir, out)
	default:
		err = r.runExecutable(ctx, scriptPath, args, workDir, out)
	}

	if err != nil {
		r.log.Error("Provisioning script failed",
			slog.String("script", filepath.Base(scriptPath)),
			slog.Duration("duration", time.Since(start)),
			"err", err)
		return fmt.Errorf("%w: %w", interfaces.ErrScriptExecution, err)
	}

	r.log.Info("Provisioning script finished",
		slog.String("script", filepath.Base(scriptPath)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (r *Runner) environ() []string {
	if r.Env != nil {
		return r.Env
	}
	return os.Environ()
}

func (r *Runner) runShell(ctx context.Context, scriptPath string, args []string, workDir string, out io.Writer) error {
	f, err := os.Open(scriptPath)
	if err != nil {
		return err
	}
	defer f.Close()

	prog, err := syntax.NewParser().Parse(f, filepath.Base(scriptPath))
	if err != nil {
		return fmt.Errorf("failed to parse script: %w", err)
	}

	opts := []interp.RunnerOption{
		interp.Dir(workDir),
		interp.Env(expand.ListEnviron(r.environ()...)),
		interp.StdIO(nil, out, out),
	}
	// "--" keeps arguments such as "-v" from being read as shell options
	if len(args) > 0 {
		opts = append(opts, interp.Params(append([]string{"--"}, args...)...))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create interpreter: %w", err)
	}

	err = runner.Run(ctx, prog)
	var exitStatus interp.ExitStatus
	if errors.As(err, &exitStatus) {
		return fmt.Errorf("script exited with status %d", int(exitStatus))
	}
	return err
}

func (r *Runner) powerShell() (string, error) {
	if r.PowerShell != "" {
		return r.PowerShell, nil
	}
	for _, candidate := range []string{"powershell", "pwsh"} {
		if p, err := exec.LookPath(candidate); err == nil {
			return p, nil
		}
	}
	return "", errors.New("no powershell host found")
}

func (r *Runner) runPowerShell(ctx context.Context, scriptPath string, args []string, workDir string, out io.Writer) error {
	host, err := r.powerShell()
	if err != nil {
		return err
	}

	cmdArgs := append([]string{"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Unrestricted", "-File", scriptPath}, args...)
	return r.runCommand(ctx, host, cmdArgs, workDir, out)
}

func (r *Runner) runExecutable(ctx context.Context, scriptPath string, args []string, workDir string, out io.Writer) error {
	if runtime.GOOS != "windows" {
		if err := os.Chmod(scriptPath, 0o755); err != nil {
			return err
		}
	}
	return r.runCommand(ctx, scriptPath, args, workDir, out)
}

func (r *Runner) runCommand(ctx context.Context, name string, args []string, workDir string, out io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir
	cmd.Env = r.environ()
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("script exited with status %d", exitErr.ExitCode())
	}
	return err
}
