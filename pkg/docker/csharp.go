package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultCSharpImage is the SDK image used to build and run student programs.
	DefaultCSharpImage = "mcr.microsoft.com/dotnet/sdk:8.0"

	projectFile = `<Project Sdk="Microsoft.NET.Sdk">
  <PropertyGroup>
    <OutputType>Exe</OutputType>
    <TargetFramework>net8.0</TargetFramework>
    <ImplicitUsings>enable</ImplicitUsings>
    <Nullable>disable</Nullable>
  </PropertyGroup>
</Project>
`
)

// RunOutput is the outcome of compiling and running one C# program.
type RunOutput struct {
	Stdout      string        `json:"stdout"`
	Stderr      string        `json:"stderr"`
	ExitCode    int           `json:"exit_code"`
	TimedOut    bool          `json:"timed_out"`
	Duration    time.Duration `json:"duration"`
	Diagnostics []Diagnostic  `json:"diagnostics"`
}

// CSharpRunnerConfig configures the C# runner.
type CSharpRunnerConfig struct {
	Image         string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	WorkspaceRoot string
}

// CSharpRunner compiles and runs a single Program.cs inside the sandbox.
type CSharpRunner struct {
	executor Executor
	cfg      CSharpRunnerConfig
}

// NewCSharpRunner wraps an executor with the dotnet project layout.
func NewCSharpRunner(executor Executor, cfg CSharpRunnerConfig) *CSharpRunner {
	if cfg.Image == "" {
		cfg.Image = DefaultCSharpImage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &CSharpRunner{executor: executor, cfg: cfg}
}

// Run writes the source into a scratch project and runs it with the given stdin.
func (r *CSharpRunner) Run(ctx context.Context, source, stdin string) (RunOutput, error) {
	workspace, err := os.MkdirTemp(r.cfg.WorkspaceRoot, "csharp-run-*")
	if err != nil {
		return RunOutput{}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, "app.csproj"), []byte(projectFile), 0o644); err != nil {
		return RunOutput{}, fmt.Errorf("write project: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "Program.cs"), []byte(source), 0o644); err != nil {
		return RunOutput{}, fmt.Errorf("write source: %w", err)
	}

	result, runErr := r.executor.Run(ctx, ExecutionRequest{
		Image:         r.cfg.Image,
		Cmd:           []string{"dotnet", "run", "--nologo", "--project", sandboxMountPoint + "/app.csproj"},
		Env:           []string{"DOTNET_CLI_TELEMETRY_OPTOUT=1", "DOTNET_NOLOGO=1"},
		Timeout:       r.cfg.Timeout,
		Workspace:     workspace,
		MemoryLimitMB: r.cfg.MemoryLimitMB,
		CPUShares:     r.cfg.CPUShares,
		Stdin:         stdin,
	})

	output := RunOutput{
		Stdout:      result.Stdout,
		Stderr:      result.Stderr,
		ExitCode:    result.ExitCode,
		TimedOut:    result.TimedOut,
		Duration:    result.Duration,
		Diagnostics: ParseDiagnostics(result.Stdout + "\n" + result.Stderr),
	}
	if runErr != nil && !result.TimedOut {
		return output, runErr
	}
	return output, nil
}
