package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/iotstream/notify-core/internal/infrastructure/logging"
	"github.com/iotstream/notify-core/internal/platform"
)

// Reconciler converges the remote subscription set towards the declared
// intent. Ensure is idempotent on subscription identity (context, source,
// name): an existing match is reused, never duplicated.
type Reconciler struct {
	subs   Subscriptions
	inv    Inventory
	logger *logging.Logger
}

func NewReconciler(subs Subscriptions, inv Inventory, logger *logging.Logger) *Reconciler {
	return &Reconciler{subs: subs, inv: inv, logger: logger}
}

// EnsureSubscription creates the subscription unless one with the same
// identity already exists, in which case the existing one is returned.
// A create that loses a race to a concurrent creator is resolved by
// re-reading the remote set.
func (r *Reconciler) EnsureSubscription(ctx context.Context, sub platform.Subscription) (platform.Subscription, error) {
	filter := platform.SubscriptionFilter{
		SourceID: sub.SourceID,
		Context:  sub.Context,
		Name:     sub.Name,
	}
	existing, err := r.subs.FindSubscriptions(ctx, filter)
	if err != nil {
		return platform.Subscription{}, fmt.Errorf("checking subscription %q: %w", sub.Name, err)
	}
	if len(existing) > 0 {
		r.logger.Debug("subscription already present, reusing",
			"name", sub.Name, "context", string(sub.Context), "source", sub.SourceID)
		return existing[0], nil
	}

	created, err := r.subs.CreateSubscription(ctx, sub)
	if err == nil {
		r.logger.Info("subscription created",
			"name", sub.Name, "context", string(sub.Context), "source", sub.SourceID)
		return created, nil
	}
	if errors.Is(err, platform.ErrConflict) {
		existing, ferr := r.subs.FindSubscriptions(ctx, filter)
		if ferr == nil && len(existing) > 0 {
			return existing[0], nil
		}
	}
	return platform.Subscription{}, fmt.Errorf("creating subscription %q: %w", sub.Name, err)
}

// RemoveSubscription deletes every remote subscription matching the
// filter and returns how many were deleted. Zero matches is a no-op,
// not an error: removal converges towards absence, and absent already
// is converged.
func (r *Reconciler) RemoveSubscription(ctx context.Context, filter platform.SubscriptionFilter) (int, error) {
	matches, err := r.subs.FindSubscriptions(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("finding subscription %q: %w", filter.Name, err)
	}
	deleted := 0
	for _, sub := range matches {
		if err := r.subs.DeleteSubscription(ctx, sub); err != nil {
			return deleted, fmt.Errorf("deleting subscription %s: %w", sub.ID, err)
		}
		deleted++
		r.logger.Info("subscription removed",
			"name", sub.Name, "context", string(sub.Context), "source", sub.SourceID)
	}
	return deleted, nil
}

// EnsureDeviceSubscriptions fans the named subscription out over every
// device and each device's direct children. A failure on one unit is
// logged and skipped; the batch always runs to completion. Returns the
// number of units successfully ensured.
func (r *Reconciler) EnsureDeviceSubscriptions(ctx context.Context, name string, apis []string, pageSize int) (int, error) {
	devices, err := r.inv.ListDevices(ctx, pageSize, true)
	if err != nil {
		return 0, fmt.Errorf("listing devices: %w", err)
	}

	ensured := 0
	for _, dev := range devices {
		for _, sourceID := range deviceUnits(dev) {
			sub := platform.Subscription{
				Name:     name,
				Context:  platform.ContextManagedObject,
				SourceID: sourceID,
				APIs:     apis,
			}
			if _, err := r.EnsureSubscription(ctx, sub); err != nil {
				r.logger.Warn("device subscription failed, continuing",
					"device", sourceID, "name", name, "error", err)
				continue
			}
			ensured++
		}
	}
	return ensured, nil
}

// RemoveDeviceSubscriptions removes the named subscription from every
// device and direct child, with the same failure isolation as ensure.
// Returns the number of units whose subscription was removed.
func (r *Reconciler) RemoveDeviceSubscriptions(ctx context.Context, name string, pageSize int) (int, error) {
	devices, err := r.inv.ListDevices(ctx, pageSize, true)
	if err != nil {
		return 0, fmt.Errorf("listing devices: %w", err)
	}

	removed := 0
	for _, dev := range devices {
		for _, sourceID := range deviceUnits(dev) {
			filter := platform.SubscriptionFilter{
				SourceID: sourceID,
				Context:  platform.ContextManagedObject,
				Name:     name,
			}
			n, err := r.RemoveSubscription(ctx, filter)
			if err != nil {
				r.logger.Warn("device unsubscribe failed, continuing",
					"device", sourceID, "name", name, "error", err)
				continue
			}
			if n > 0 {
				removed++
			}
		}
	}
	return removed, nil
}

// deviceUnits expands a device into itself plus its direct children.
// Grandchildren are out of scope for the fan-out.
func deviceUnits(dev platform.DeviceNode) []string {
	units := make([]string, 0, 1+len(dev.ChildIDs))
	units = append(units, dev.ID)
	units = append(units, dev.ChildIDs...)
	return units
}
