package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tutoring-payment-service/internal/domain"
	"tutoring-payment-service/internal/usecase"
)

var _ usecase.DashboardInvalidator = (*DashboardCache)(nil)

// Query keys mirroring the dashboard views that depend on payment state.
var dashboardViews = []string{"dashboard", "children", "payments", "subscriptions"}

// DashboardCache caches rendered dashboard views per user and drops them all
// when a payment lands, so the next fetch sees the fresh state.
type DashboardCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewDashboardCache(client RedisClient, ttl time.Duration) *DashboardCache {
	return &DashboardCache{client: client, ttl: ttl}
}

func (c *DashboardCache) key(view, userID string) string {
	return fmt.Sprintf("view:%s:%s", view, userID)
}

func (c *DashboardCache) SetView(ctx context.Context, view, userID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(view, userID), data, c.ttl)
}

func (c *DashboardCache) GetView(ctx context.Context, view, userID string, out any) error {
	data, err := c.client.Get(ctx, c.key(view, userID))
	if IsNil(err) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), out)
}

// InvalidateUser drops every cached view for the user. Called once per
// succeeded outcome; misses are fine, the views rebuild lazily.
func (c *DashboardCache) InvalidateUser(ctx context.Context, userID string) error {
	keys := make([]string, 0, len(dashboardViews))
	for _, v := range dashboardViews {
		keys = append(keys, c.key(v, userID))
	}
	return c.client.Del(ctx, keys...)
}
