package platform

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// subscriptionPageSize is the page size for subscription lookups. Tenants
// rarely carry more than a handful of subscriptions per source.
const subscriptionPageSize = 100

// wire representation of a subscription, including the nested source and
// filter objects the REST API expects.
type subscriptionRepresentation struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"subscription"`
	Context string `json:"context"`
	Source  *struct {
		ID string `json:"id"`
	} `json:"source,omitempty"`
	Filter *struct {
		APIs []string `json:"apis"`
	} `json:"subscriptionFilter,omitempty"`
}

type subscriptionPage struct {
	Subscriptions []subscriptionRepresentation `json:"subscriptions"`
}

func (r subscriptionRepresentation) toSubscription() Subscription {
	sub := Subscription{
		ID:      r.ID,
		Name:    r.Name,
		Context: SubscriptionContext(r.Context),
	}
	if r.Source != nil {
		sub.SourceID = r.Source.ID
	}
	if r.Filter != nil {
		sub.APIs = r.Filter.APIs
	}
	return sub
}

func toRepresentation(sub Subscription) subscriptionRepresentation {
	rep := subscriptionRepresentation{
		Name:    sub.Name,
		Context: string(sub.Context),
	}
	if sub.SourceID != "" {
		rep.Source = &struct {
			ID string `json:"id"`
		}{ID: sub.SourceID}
	}
	if len(sub.APIs) > 0 {
		rep.Filter = &struct {
			APIs []string `json:"apis"`
		}{APIs: sub.APIs}
	}
	return rep
}

// FindSubscriptions returns all subscriptions matching the filter, fetching
// every page. Name filtering is applied server-side when supported and
// re-checked client-side; the platform treats the name filter as optional.
func (c *Client) FindSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]Subscription, error) {
	var subs []Subscription
	for page := 1; ; page++ {
		query := url.Values{
			"pageSize":    {strconv.Itoa(subscriptionPageSize)},
			"currentPage": {strconv.Itoa(page)},
		}
		if filter.SourceID != "" {
			query.Set("source", filter.SourceID)
		}
		if filter.Context != "" {
			query.Set("context", string(filter.Context))
		}
		if filter.Name != "" {
			query.Set("subscription", filter.Name)
		}

		var result subscriptionPage
		if err := c.do(ctx, "GET", "/notification2/subscriptions", query, nil, &result); err != nil {
			return nil, fmt.Errorf("finding subscriptions page %d: %w", page, err)
		}

		for _, rep := range result.Subscriptions {
			if filter.Name != "" && rep.Name != filter.Name {
				continue
			}
			subs = append(subs, rep.toSubscription())
		}

		if len(result.Subscriptions) < subscriptionPageSize {
			return subs, nil
		}
	}
}

// CreateSubscription creates a new notification subscription and returns the
// platform's view of it (with the assigned id).
func (c *Client) CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	rep := toRepresentation(sub)

	var created subscriptionRepresentation
	if err := c.do(ctx, "POST", "/notification2/subscriptions", nil, rep, &created); err != nil {
		return Subscription{}, fmt.Errorf("creating subscription %q: %w", sub.Name, err)
	}
	return created.toSubscription(), nil
}

// DeleteSubscription removes a subscription by id.
func (c *Client) DeleteSubscription(ctx context.Context, sub Subscription) error {
	if sub.ID == "" {
		return fmt.Errorf("deleting subscription %q: missing id", sub.Name)
	}
	if err := c.do(ctx, "DELETE", "/notification2/subscriptions/"+url.PathEscape(sub.ID), nil, nil, nil); err != nil {
		return fmt.Errorf("deleting subscription %q: %w", sub.Name, err)
	}
	return nil
}
