package platform

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// deviceFragment marks inventory managed objects that represent devices.
const deviceFragment = "c8y_IsDevice"

// managedObject mirrors the platform inventory representation, reduced to
// the fields the reconciler needs.
type managedObject struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ChildDevices struct {
		References []struct {
			ManagedObject struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"managedObject"`
		} `json:"references"`
	} `json:"childDevices"`
}

type managedObjectPage struct {
	ManagedObjects []managedObject `json:"managedObjects"`
}

// ListDevices enumerates every device managed object for the tenant.
//
// When includeChildren is true, each DeviceNode carries the ids of its
// direct child devices; the platform does not return children by default,
// so the withChildren query parameter must be set explicitly.
//
// Results are fetched page by page until a short page is returned.
func (c *Client) ListDevices(ctx context.Context, pageSize int, includeChildren bool) ([]DeviceNode, error) {
	if pageSize <= 0 {
		pageSize = 2000
	}

	var devices []DeviceNode
	for page := 1; ; page++ {
		query := url.Values{
			"fragmentType": {deviceFragment},
			"pageSize":     {strconv.Itoa(pageSize)},
			"currentPage":  {strconv.Itoa(page)},
		}
		if includeChildren {
			query.Set("withChildren", "true")
		}

		var result managedObjectPage
		if err := c.do(ctx, "GET", "/inventory/managedObjects", query, nil, &result); err != nil {
			return nil, fmt.Errorf("listing devices page %d: %w", page, err)
		}

		for _, mo := range result.ManagedObjects {
			node := DeviceNode{ID: mo.ID, Name: mo.Name}
			for _, ref := range mo.ChildDevices.References {
				node.ChildIDs = append(node.ChildIDs, ref.ManagedObject.ID)
			}
			devices = append(devices, node)
		}

		if len(result.ManagedObjects) < pageSize {
			return devices, nil
		}
	}
}

// sourceIDByType returns the id of the first managed object with the given
// type, or ErrNotFound when none exists.
func (c *Client) sourceIDByType(ctx context.Context, moType string) (string, error) {
	query := url.Values{
		"type":     {moType},
		"pageSize": {"1"},
	}

	var result managedObjectPage
	if err := c.do(ctx, "GET", "/inventory/managedObjects", query, nil, &result); err != nil {
		return "", err
	}
	if len(result.ManagedObjects) == 0 {
		return "", fmt.Errorf("%w: no managed object of type %q", ErrNotFound, moType)
	}
	return result.ManagedObjects[0].ID, nil
}
