package platform

import (
	"context"
	"fmt"
)

// currentTenant mirrors the platform's current-tenant representation.
type currentTenant struct {
	Name       string `json:"name"`
	DomainName string `json:"domainName"`
}

// currentApplication mirrors the platform's current-application
// representation, reduced to the id.
type currentApplication struct {
	ID string `json:"id"`
}

// TenantHost resolves the tenant's domain name, which is the host the
// websocket consumer endpoint lives on. Without it no notification
// subscription can be consumed for the tenant.
func (c *Client) TenantHost(ctx context.Context) (string, error) {
	var tenant currentTenant
	if err := c.do(ctx, "GET", "/tenant/currentTenant", nil, nil, &tenant); err != nil {
		return "", fmt.Errorf("resolving tenant host: %w", err)
	}
	if tenant.DomainName == "" {
		return "", fmt.Errorf("%w: current tenant has no domain name", ErrBadResponse)
	}
	return tenant.DomainName, nil
}

// ServiceSourceID resolves the managed object id that represents this
// service in the tenant's inventory. Disconnect alarms are posted against
// it so operators see them attached to the service, not to a device.
func (c *Client) ServiceSourceID(ctx context.Context) (string, error) {
	var app currentApplication
	if err := c.do(ctx, "GET", "/application/currentApplication", nil, nil, &app); err != nil {
		return "", fmt.Errorf("resolving current application: %w", err)
	}

	id, err := c.sourceIDByType(ctx, "c8y_Application_"+app.ID)
	if err != nil {
		return "", fmt.Errorf("resolving service managed object: %w", err)
	}
	return id, nil
}
