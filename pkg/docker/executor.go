package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	sandboxMountPoint = "/workspace"
	megabyte          = 1024 * 1024
)

var (
	sandboxRunSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "course",
		Subsystem: "sandbox",
		Name:      "run_duration_seconds",
		Help:      "Wall time of student program runs inside the sandbox",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"image"})

	sandboxRunOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "course",
		Subsystem: "sandbox",
		Name:      "runs_total",
		Help:      "Sandbox runs by outcome",
	}, []string{"image", "outcome"})
)

// Executor runs one job inside a throwaway container.
type Executor interface {
	Run(ctx context.Context, job ExecutionRequest) (ExecutionResult, error)
}

// ExecutionRequest is a single sandbox job. Workspace is bind-mounted at
// /workspace; the container never gets network access unless AllowNetwork is set.
type ExecutionRequest struct {
	Image         string
	Cmd           []string
	Env           []string
	Timeout       time.Duration
	Workspace     string
	MemoryLimitMB int64
	CPUShares     int64
	AllowNetwork  bool
	Stdin         string
}

// ExecutionResult is what the student program produced.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Config holds sandbox defaults applied when a job leaves a limit unset.
type Config struct {
	Host          string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	Logger        zerolog.Logger
}

// DockerExecutor is the Docker engine backed sandbox.
type DockerExecutor struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerExecutor connects to the engine named by cfg.Host, or the
// environment default when empty.
func NewDockerExecutor(cfg Config) (*DockerExecutor, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	return &DockerExecutor{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/csharp-course-api/pkg/docker"),
		logger: cfg.Logger.With().Str("component", "sandbox").Logger(),
	}, nil
}

func (e *DockerExecutor) limits(job ExecutionRequest) (time.Duration, container.Resources) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	memoryMB := job.MemoryLimitMB
	if memoryMB <= 0 {
		memoryMB = e.cfg.MemoryLimitMB
	}
	shares := job.CPUShares
	if shares <= 0 {
		shares = e.cfg.CPUShares
	}
	return timeout, container.Resources{Memory: memoryMB * megabyte, CPUShares: shares}
}

func (e *DockerExecutor) containerSpec(job ExecutionRequest, resources container.Resources) (*container.Config, *container.HostConfig) {
	interactive := job.Stdin != ""
	spec := &container.Config{
		Image:        job.Image,
		Cmd:          job.Cmd,
		Env:          job.Env,
		WorkingDir:   sandboxMountPoint,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  interactive,
		OpenStdin:    interactive,
		StdinOnce:    interactive,
	}

	host := &container.HostConfig{
		Resources:   resources,
		NetworkMode: "none",
	}
	if job.AllowNetwork {
		host.NetworkMode = "bridge"
	}
	if job.Workspace != "" {
		host.Mounts = []mount.Mount{{
			Type:   mount.TypeBind,
			Source: job.Workspace,
			Target: sandboxMountPoint,
		}}
	}
	return spec, host
}

// Run creates the container, feeds stdin, waits for exit or timeout and
// collects the demultiplexed output. A timed out run returns its partial
// result together with an error.
func (e *DockerExecutor) Run(parent context.Context, job ExecutionRequest) (ExecutionResult, error) {
	if job.Image == "" {
		return ExecutionResult{}, errors.New("image is required")
	}

	ctx, span := e.tracer.Start(parent, "sandbox.run", trace.WithAttributes(
		attribute.String("sandbox.image", job.Image),
	))
	defer span.End()

	timeout, resources := e.limits(job)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fail := func(stage string, err error) (ExecutionResult, error) {
		sandboxRunOutcomes.WithLabelValues(job.Image, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ExecutionResult{}, fmt.Errorf("container %s: %w", stage, err)
	}

	spec, host := e.containerSpec(job, resources)
	created, err := e.client.ContainerCreate(ctx, spec, host, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return fail("create", err)
	}
	id := created.ID
	log := e.logger.With().Str("container_id", id).Logger()
	defer e.remove(id, log)

	var stdin *types.HijackedResponse
	if spec.OpenStdin {
		conn, err := e.client.ContainerAttach(ctx, id, container.AttachOptions{Stream: true, Stdin: true})
		if err != nil {
			return fail("attach", err)
		}
		stdin = &conn
		defer stdin.Close()
	}

	started := time.Now()
	if err := e.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fail("start", err)
	}
	if stdin != nil {
		feedStdin(stdin, job.Stdin, log)
	}

	result := ExecutionResult{}
	exitCode, waitErr := e.await(ctx, id)
	result.ExitCode = exitCode
	result.Duration = time.Since(started)
	sandboxRunSeconds.WithLabelValues(job.Image).Observe(result.Duration.Seconds())

	switch {
	case waitErr == nil:
	case errors.Is(waitErr, context.DeadlineExceeded):
		result.TimedOut = true
		e.kill(id, log)
		span.SetStatus(codes.Error, "run timed out")
	case errors.Is(waitErr, context.Canceled):
		return result, waitErr
	default:
		return fail("wait", waitErr)
	}

	result.Stdout, result.Stderr = e.output(parent, id, log)

	if result.TimedOut {
		sandboxRunOutcomes.WithLabelValues(job.Image, "timeout").Inc()
		return result, fmt.Errorf("run timed out after %s", timeout)
	}
	sandboxRunOutcomes.WithLabelValues(job.Image, "exited").Inc()
	return result, nil
}

func (e *DockerExecutor) await(ctx context.Context, id string) (int, error) {
	statusCh, errCh := e.client.ContainerWait(ctx, id, container.WaitConditionNextExit)
	select {
	case status := <-statusCh:
		return int(status.StatusCode), nil
	case err := <-errCh:
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func feedStdin(conn *types.HijackedResponse, input string, log zerolog.Logger) {
	if _, err := io.WriteString(conn.Conn, input); err != nil {
		log.Warn().Err(err).Msg("failed to write program stdin")
	}
	if err := conn.CloseWrite(); err != nil {
		log.Warn().Err(err).Msg("failed to close program stdin")
	}
}

// output reads the container logs with the caller's context so a timed out
// run still reports what it printed before being killed.
func (e *DockerExecutor) output(ctx context.Context, id string, log zerolog.Logger) (string, string) {
	reader, err := e.client.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch program output")
		return "", ""
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		log.Error().Err(err).Msg("failed to read program output")
		return "", ""
	}
	return stdout.String(), stderr.String()
}

func (e *DockerExecutor) kill(id string, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.client.ContainerKill(ctx, id, "KILL"); err != nil {
		log.Error().Err(err).Msg("failed to kill timed out container")
	}
}

func (e *DockerExecutor) remove(id string, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		log.Error().Err(err).Msg("failed to remove container")
	}
}

// Close releases the engine connection.
func (e *DockerExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
