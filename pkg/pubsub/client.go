package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/printdesk-backend/pkg/config"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotConnected      = errors.New("pubsub client not initialized")
)

// Client connects the outbox publisher to the dispatch topic. Every
// assignment and attendance event goes to that one topic.
type Client struct {
	ps    *pubsub.Client
	topic string
}

// NewClient dials Pub/Sub and refuses to start when the dispatch topic is
// missing. PUBSUB_EMULATOR_HOST is honoured by the underlying library.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topic, err := qualify(project, cfg.DispatchTopic)
	if err != nil {
		return nil, err
	}

	ps, err := pubsub.NewClient(ctx, project, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("dial pubsub: %w", err)
	}
	c := &Client{ps: ps, topic: topic}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	logg.Info(logg.WithField(ctx, "topic", topic), "pubsub client initialized")
	return c, nil
}

func credentials(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	default:
		return nil
	}
}

// DispatchPublisher returns the dispatch topic handle with ordering enabled,
// so the events of one assignment arrive in the order they were written.
// The caller stops it before Close.
func (c *Client) DispatchPublisher() *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	p := c.ps.Publisher(c.topic)
	p.EnableMessageOrdering = true
	p.PublishSettings.DelayThreshold = 50 * time.Millisecond
	return p
}

// Ping checks that the dispatch topic still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errNotConnected
	}
	_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic})
	switch {
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("dispatch topic %s does not exist", c.topic)
	case err != nil:
		return fmt.Errorf("get topic %s: %w", c.topic, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	return c.ps.Close()
}

// qualify expands a bare topic id to projects/<project>/topics/<id>.
func qualify(project, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	switch {
	case topic == "":
		return "", errors.New("PRINTDESK_PUBSUB_DISPATCH_TOPIC is required")
	case strings.HasPrefix(topic, "projects/"):
		if !strings.Contains(topic, "/topics/") {
			return "", fmt.Errorf("malformed topic name %q", topic)
		}
		return topic, nil
	default:
		return "projects/" + project + "/topics/" + topic, nil
	}
}
