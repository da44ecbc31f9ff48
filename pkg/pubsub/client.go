package pubsub

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/gcp"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

// Need lists the resources a process depends on. NewClient verifies each one
// exists so a misconfigured worker fails at boot instead of on first message.
type Need uint8

const (
	NeedLedgerTopic Need = 1 << iota
	NeedAnalyticsSubscription
)

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	need      Need
}

func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.PubSubConfig, need Need, logg *logger.Logger) (*Client, error) {
	projectID, err := gcp.ProjectID(gcpCfg)
	if err != nil {
		return nil, err
	}
	psClient, err := pubsub.NewClient(ctx, projectID, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: psClient, projectID: projectID, cfg: cfg, need: need}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"ledger_topic":           cfg.LedgerTopic,
			"analytics_subscription": cfg.AnalyticsSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

// Ping re-checks every resource named in need.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	if c.need&NeedLedgerTopic != 0 {
		name := c.topicName(c.cfg.LedgerTopic)
		if name == "" {
			return errors.New("ledger topic is required")
		}
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
		if err := classify("topic", name, err); err != nil {
			return err
		}
	}
	if c.need&NeedAnalyticsSubscription != 0 {
		name := c.subscriptionName(c.cfg.AnalyticsSubscription)
		if name == "" {
			return errors.New("analytics subscription is required")
		}
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
		if err := classify("subscription", name, err); err != nil {
			return err
		}
	}
	return nil
}

func classify(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// Publisher returns a handle for topic, which may be a short id or a full
// resource name. The caller stops it.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	name := c.topicName(topic)
	if name == "" {
		return nil
	}
	return c.client.Publisher(name)
}

// AnalyticsSubscription returns the subscriber feeding the ledger analytics
// worker, with flow control applied.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	name := c.subscriptionName(c.cfg.AnalyticsSubscription)
	if name == "" {
		return nil
	}
	sub := c.client.Subscriber(name)
	if c.cfg.AnalyticsMaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.AnalyticsMaxOutstanding
	}
	return sub
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) topicName(name string) string {
	return gcp.ResourceName(c.projectID, "topics", name)
}

func (c *Client) subscriptionName(name string) string {
	return gcp.ResourceName(c.projectID, "subscriptions", name)
}
