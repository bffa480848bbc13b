package hostagent

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// containerLabel marks containers managed by the host agent so stray
// containers on the host are never touched.
const containerLabel = "io.agentopia.toolbox.managed"

// DockerRuntime implements ContainerRuntime against the local Docker Engine.
type DockerRuntime struct {
	cli *client.Client
}

func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerRuntime{cli: cli}, nil
}

func (d *DockerRuntime) PullImage(ctx context.Context, ref string) error {
	rc, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer rc.Close()

	// The pull completes only once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to read pull progress for %s: %w", ref, err)
	}
	return nil
}

func (d *DockerRuntime) CreateContainer(ctx context.Context, name, ref string) error {
	cfg := &container.Config{
		Image:  ref,
		Labels: map[string]string{containerLabel: "true"},
	}
	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}
	if _, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name); err != nil {
		return fmt.Errorf("failed to create container %s: %w", name, err)
	}
	return nil
}

func (d *DockerRuntime) StartContainer(ctx context.Context, name string) error {
	if err := d.cli.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		if client.IsErrNotFound(err) {
			return ErrContainerNotFound
		}
		return fmt.Errorf("failed to start container %s: %w", name, err)
	}
	return nil
}

func (d *DockerRuntime) StopContainer(ctx context.Context, name string) error {
	if err := d.cli.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
		if client.IsErrNotFound(err) {
			return ErrContainerNotFound
		}
		return fmt.Errorf("failed to stop container %s: %w", name, err)
	}
	return nil
}

func (d *DockerRuntime) RemoveContainer(ctx context.Context, name string) error {
	err := d.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return ErrContainerNotFound
		}
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

func (d *DockerRuntime) IsRunning(ctx context.Context, name string) (bool, error) {
	info, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, ErrContainerNotFound
		}
		return false, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	return info.State != nil && info.State.Running, nil
}

func (d *DockerRuntime) Exec(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	execCfg := container.ExecOptions{
		Cmd:          req.Cmd,
		Env:          req.Env,
		AttachStdout: true,
		AttachStderr: true,
	}
	created, err := d.cli.ContainerExecCreate(ctx, req.ContainerName, execCfg)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, ErrContainerNotFound
		}
		return nil, fmt.Errorf("failed to create exec in %s: %w", req.ContainerName, err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec in %s: %w", req.ContainerName, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return nil, fmt.Errorf("failed to read exec output from %s: %w", req.ContainerName, err)
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec in %s: %w", req.ContainerName, err)
	}

	output := stdout.String()
	if inspect.ExitCode != 0 && stderr.Len() > 0 {
		output = stderr.String()
	}
	return &ExecResult{Output: output, ExitCode: inspect.ExitCode}, nil
}
