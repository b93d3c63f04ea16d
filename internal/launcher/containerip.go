package launcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/client"
)

// IPResolver looks up a container's true overlay-network IP directly
// from the Docker daemon, the same ContainerInspect -> NetworkSettings
// path agents/shared/docker/client.go's HostPortFor walks for port
// bindings. RegisterWithResolvedIP uses this instead of trusting a
// caller-supplied container_ip, so a compromised container cannot
// assert an arbitrary IP at registration time.
type IPResolver struct {
	api *client.Client
}

func NewIPResolver() (*IPResolver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, err
	}
	return &IPResolver{api: cli}, nil
}

func (r *IPResolver) Close() error {
	return r.api.Close()
}

// ResolveIP returns the first non-empty IP address attached to
// containerID across its joined networks. It does not accept a network
// name parameter: the gateway's bridge network is expected to be the
// container's only network, and the first address found is returned.
func (r *IPResolver) ResolveIP(ctx context.Context, containerID string) (string, error) {
	if strings.TrimSpace(containerID) == "" {
		return "", errors.New("container id required")
	}
	info, err := r.api.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", err
	}
	if info.NetworkSettings == nil {
		return "", fmt.Errorf("container %s has no network settings", containerID)
	}
	for _, net := range info.NetworkSettings.Networks {
		if strings.TrimSpace(net.IPAddress) != "" {
			return net.IPAddress, nil
		}
	}
	return "", fmt.Errorf("container %s has no bound IP address", containerID)
}

// RegisterWithResolvedIP registers a session using the container's
// Docker-reported IP rather than any client-supplied value.
func (c *Client) RegisterWithResolvedIP(ctx context.Context, resolver *IPResolver, containerID, mode string) (RegisterResponse, error) {
	ip, err := resolver.ResolveIP(ctx, containerID)
	if err != nil {
		return RegisterResponse{}, fmt.Errorf("resolve container IP: %w", err)
	}
	return c.Register(ctx, containerID, ip, mode)
}
