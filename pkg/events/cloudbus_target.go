package events

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/hashicorp/go-hclog"
)

// TargetCloudBus is the registered name of the cloud event-bus target.
const TargetCloudBus = "CLOUD_BUS"

// CloudBusTarget publishes CloudEvents to an AWS EventBridge bus using
// structured content mode: the entire envelope is the detail payload.
//
// Grounded on the teacher's AWS SDK v2 usage pattern in pkg/ai/bedrock
// (client-from-config, structured request builder); new to this repo
// since hermes has no cloud-bus concern of its own.
type CloudBusTarget struct {
	client   *eventbridge.Client
	busName  string
	source   string
	logger   hclog.Logger
}

// CloudBusConfig configures a CloudBusTarget.
type CloudBusConfig struct {
	Client  *eventbridge.Client
	BusName string
	Source  string
	Logger  hclog.Logger
}

// NewCloudBusTarget constructs an EventBridge-backed Target over an
// already-configured client (aws.Config loading is the caller's
// concern, typically internal/config).
func NewCloudBusTarget(cfg CloudBusConfig) (*CloudBusTarget, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("events: eventbridge client is required")
	}
	if cfg.BusName == "" {
		cfg.BusName = "default"
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &CloudBusTarget{client: cfg.Client, busName: cfg.BusName, source: cfg.Source, logger: cfg.Logger.Named("cloudbus-target")}, nil
}

func (t *CloudBusTarget) Name() string { return TargetCloudBus }

// Publish sends ce as a structured-mode CloudEvent detail entry.
func (t *CloudBusTarget) Publish(ctx context.Context, ce *CloudEvent, resourceID string) error {
	body, err := ce.ToStructuredJSON()
	if err != nil {
		return err
	}

	_, err = t.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				EventBusName: aws.String(t.busName),
				Source:       aws.String(t.source),
				DetailType:   aws.String(ce.Type),
				Detail:       aws.String(string(body)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("events: publishing %s to event bridge: %w", ce.ID, err)
	}
	t.logger.Debug("published event", "id", ce.ID, "type", ce.Type, "bus", t.busName)
	return nil
}

// Healthy calls DescribeEventBus as a cheap liveness probe; implements
// HealthChecker.
func (t *CloudBusTarget) Healthy(ctx context.Context) bool {
	_, err := t.client.DescribeEventBus(ctx, &eventbridge.DescribeEventBusInput{Name: aws.String(t.busName)})
	return err == nil
}
