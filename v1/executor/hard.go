package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/EliseyGodX/SchedulerGodX/v1/config"
)

// workerResult is the JSON envelope cmd/taskworker writes to stdout.
type workerResult struct {
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Hard runs a job inside an ephemeral, memory-capped, network-isolated
// container (cmd/taskworker is the image's entrypoint), giving it true
// preemptive isolation: ctx expiry force-kills the container rather than
// hoping the handler cooperates. Grounded on the reference corpus's
// container-sandbox pattern (create, start, wait-with-timeout, SIGKILL on
// deadline, collect logs via stdcopy), adapted from a shell-command
// sandbox to a fixed task-worker entrypoint driven by environment
// variables instead of a bind-mounted workspace.
type Hard struct {
	client *client.Client
	cfg    config.Hard
}

// NewHard constructs a Hard executor using the docker daemon reachable via
// the environment (DOCKER_HOST et al.), per docker's client.FromEnv.
func NewHard(cfg config.Hard) (*Hard, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("executor: docker client: %w", err)
	}
	if cfg.Image == "" {
		cfg.Image = "schedulergodx-taskworker:latest"
	}
	if cfg.MemoryMB <= 0 {
		cfg.MemoryMB = 256
	}
	if cfg.NetworkMode == "" {
		cfg.NetworkMode = "none"
	}
	return &Hard{client: cli, cfg: cfg}, nil
}

// Close releases the docker client.
func (h *Hard) Close() error {
	return h.client.Close()
}

// Run implements Interface.
func (h *Hard) Run(ctx context.Context, job Job) Result {
	if job.Lifetime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Lifetime)
		defer cancel()
	}

	env := []string{
		"SCHEDULERGODX_HANDLER=" + job.Handler,
		"SCHEDULERGODX_ARGS=" + base64.StdEncoding.EncodeToString(job.Args),
		"SCHEDULERGODX_KWARGS=" + base64.StdEncoding.EncodeToString(job.Kwargs),
	}

	resp, err := h.client.ContainerCreate(ctx, &container.Config{
		Image: h.cfg.Image,
		Env:   env,
		Tty:   false,
	}, &container.HostConfig{
		Resources: container.Resources{
			Memory: h.cfg.MemoryMB * 1024 * 1024,
		},
		NetworkMode: container.NetworkMode(h.cfg.NetworkMode),
		AutoRemove:  false,
	}, nil, nil, "")
	if err != nil {
		return Result{Err: fmt.Errorf("executor: create container: %w", err)}
	}
	containerID := resp.ID
	defer func() { _, _ = h.client.ContainerWait(context.Background(), containerID, container.WaitConditionRemoved) }()
	defer func() { _ = h.client.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true}) }()

	if err := h.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return Result{Err: fmt.Errorf("executor: start container: %w", err)}
	}

	statusCh, errCh := h.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			_ = h.client.ContainerKill(context.Background(), containerID, "SIGKILL")
			return Result{TimedOut: true, Err: ErrTimeout}
		}
		return Result{Err: fmt.Errorf("executor: wait container: %w", err)}
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-ctx.Done():
		_ = h.client.ContainerKill(context.Background(), containerID, "SIGKILL")
		return Result{TimedOut: true, Err: ErrTimeout}
	}

	out, err := h.client.ContainerLogs(context.Background(), containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Result{Err: fmt.Errorf("executor: container logs: %w", err)}
	}
	defer out.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, out); err != nil {
		return Result{Err: fmt.Errorf("executor: demux container logs: %w", err)}
	}

	var wr workerResult
	decodeErr := json.Unmarshal(stdoutBuf.Bytes(), &wr)
	if wr.Error != "" {
		return Result{Err: fmt.Errorf("executor: task error: %s", wr.Error)}
	}
	if exitCode != 0 {
		return Result{Err: fmt.Errorf("executor: taskworker exit %d: %s", exitCode, stderrBuf.String())}
	}
	if decodeErr != nil {
		return Result{Err: fmt.Errorf("executor: decode taskworker result: %w", decodeErr)}
	}
	return Result{Output: wr.Output}
}
