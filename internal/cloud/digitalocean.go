package cloud

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/digitalocean/godo"
)

const defaultImageSlug = "ubuntu-24-04-x64"

// DigitalOceanProvisioner implements Provisioner on top of the DigitalOcean
// droplet API.
type DigitalOceanProvisioner struct {
	client *godo.Client
}

// NewDigitalOceanProvisioner creates a provisioner authenticated with the
// given API token.
func NewDigitalOceanProvisioner(token string) *DigitalOceanProvisioner {
	return &DigitalOceanProvisioner{client: godo.NewFromToken(token)}
}

func (p *DigitalOceanProvisioner) CreateHost(ctx context.Context, req HostRequest) (*Host, error) {
	image := req.Image
	if image == "" {
		image = defaultImageSlug
	}

	createReq := &godo.DropletCreateRequest{
		Name:     req.Name,
		Region:   req.Region,
		Size:     req.Size,
		Image:    godo.DropletCreateImage{Slug: image},
		UserData: req.UserData,
	}
	droplet, _, err := p.client.Droplets.Create(ctx, createReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create droplet: %w", err)
	}

	return &Host{ProviderID: strconv.Itoa(droplet.ID)}, nil
}

func (p *DigitalOceanProvisioner) GetHost(ctx context.Context, providerID string) (*Host, error) {
	id, err := strconv.Atoi(providerID)
	if err != nil {
		return nil, fmt.Errorf("invalid droplet id %q: %w", providerID, err)
	}

	droplet, resp, err := p.client.Droplets.Get(ctx, id)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrHostNotFound
		}
		return nil, fmt.Errorf("failed to get droplet %d: %w", id, err)
	}

	// The public IPv4 address appears a short while after creation.
	addr, err := droplet.PublicIPv4()
	if err != nil {
		return nil, fmt.Errorf("failed to read droplet %d address: %w", id, err)
	}

	return &Host{ProviderID: providerID, Address: addr}, nil
}

func (p *DigitalOceanProvisioner) DeleteHost(ctx context.Context, providerID string) error {
	id, err := strconv.Atoi(providerID)
	if err != nil {
		return fmt.Errorf("invalid droplet id %q: %w", providerID, err)
	}

	resp, err := p.client.Droplets.Delete(ctx, id)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return ErrHostNotFound
		}
		return fmt.Errorf("failed to delete droplet %d: %w", id, err)
	}
	return nil
}
