/*
Copyright 2021 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	gaws "github.com/gravitational/gamefleet/lib/cloudprovider/aws"
	"github.com/gravitational/gamefleet/lib/constants"
	"github.com/gravitational/gamefleet/lib/defaults"
	"github.com/gravitational/gamefleet/lib/lifecycle"
	"github.com/gravitational/gamefleet/lib/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config is the backup handler configuration
type Config struct {
	// Cloud is the EC2 API client
	Cloud gaws.EC2
	// Responder delivers completion responses
	Responder lifecycle.Responder
	// Clock provides the backup time
	Clock clockwork.Clock
	// DataDevice is the device the game data volume is attached at
	DataDevice string
	// InstanceStopTimeout limits the wait for a single instance to stop
	InstanceStopTimeout time.Duration
	// SnapshotCompleteTimeout limits the wait for all snapshots to complete
	SnapshotCompleteTimeout time.Duration
	// FieldLogger is the handler logger
	log.FieldLogger
}

// CheckAndSetDefaults checks and sets default values
func (c *Config) CheckAndSetDefaults() error {
	if c.Cloud == nil {
		return trace.BadParameter("missing parameter Cloud")
	}
	if c.Responder == nil {
		return trace.BadParameter("missing parameter Responder")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.DataDevice == "" {
		c.DataDevice = defaults.DataDevice
	}
	if c.InstanceStopTimeout == 0 {
		c.InstanceStopTimeout = defaults.InstanceStopTimeout
	}
	if c.SnapshotCompleteTimeout == 0 {
		c.SnapshotCompleteTimeout = defaults.SnapshotCompleteTimeout
	}
	if c.FieldLogger == nil {
		c.FieldLogger = log.WithField(trace.Component, constants.ComponentBackups)
	}
	return nil
}

// Handler backs up the game servers of a VPC on the lifecycle event
// it is armed for.
//
// The same handler serves several custom resources, each armed for a
// single event type with the OnEvent property: events of any other type
// are acknowledged without touching the game servers.
type Handler struct {
	Config
}

// New returns a new backup handler
func New(config Config) (*Handler, error) {
	if err := config.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Handler{Config: config}, nil
}

// Handle handles the lifecycle event and sends the completion response.
// The returned error is only ever a response delivery error
func (h *Handler) Handle(ctx context.Context, event lifecycle.Event, lctx lifecycle.Context) error {
	return lifecycle.Invocation{
		Event:     event,
		Context:   lctx,
		Responder: h.Responder,
		NewPhysicalID: func() string {
			return PhysicalResourceID(event.ResourceProperties)
		},
		FieldLogger: h.FieldLogger,
	}.Run(ctx, func(ctx context.Context) error {
		return h.handle(ctx, event)
	})
}

func (h *Handler) handle(ctx context.Context, event lifecycle.Event) error {
	props, err := parseProperties(event.ResourceProperties)
	if err != nil {
		return trace.Wrap(err)
	}
	if event.RequestType != props.onEvent {
		h.Infof("No action taken: received %q instead of %q request type.",
			event.RequestType, props.onEvent)
		return nil
	}
	return h.BackupGameServers(ctx, props.onEvent, props.vpcID)
}

// BackupGameServers stops all instances in the specified VPC and snapshots
// their game data volumes. It returns once all snapshots have completed
func (h *Handler) BackupGameServers(ctx context.Context, event lifecycle.RequestType, vpcID string) error {
	logger := h.WithField(constants.FieldVPC, vpcID)
	instances, err := gaws.DescribeInstancesInVPC(ctx, h.Cloud, vpcID)
	if err != nil {
		return trace.Wrap(err)
	}

	// Stop instances before taking snapshots to make sure all pending
	// writes have been flushed to the data volume
	instanceIDs := gaws.InstanceIDs(instances)
	logger.Infof("Stopping instances %v.", instanceIDs)
	_, err = h.Cloud.StopInstancesWithContext(ctx, &ec2.StopInstancesInput{
		Force:       aws.Bool(true),
		InstanceIds: aws.StringSlice(instanceIDs),
	})
	if err != nil {
		return utils.ConvertEC2Error(err)
	}

	var mu sync.Mutex
	var snapshotIDs []string
	group, groupCtx := errgroup.WithContext(ctx)
	for _, instance := range instances {
		instance := instance
		group.Go(func() (err error) {
			// panics in group goroutines are not recovered by the caller
			defer func() {
				if r := recover(); r != nil {
					err = trace.Wrap(utils.ToError(r))
				}
			}()
			snapshotID, err := h.snapshotInstance(groupCtx, event, instance)
			if err != nil {
				return trace.Wrap(err)
			}
			if snapshotID == "" {
				return nil
			}
			mu.Lock()
			snapshotIDs = append(snapshotIDs, snapshotID)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return trace.Wrap(err)
	}
	logger.Infof("Created snapshots %v.", snapshotIDs)
	if len(snapshotIDs) == 0 {
		return nil
	}

	// Block until the snapshots are done so that the next lifecycle event
	// does not contend with this backup for the same volumes
	logger.Info("Waiting for snapshots to complete.")
	err = gaws.WaitUntilSnapshotsCompleted(ctx, h.Cloud, snapshotIDs, h.SnapshotCompleteTimeout)
	return trace.Wrap(err)
}

// snapshotInstance waits for the instance to stop and creates a snapshot
// of its game data volume. Returns an empty snapshot ID if the instance
// has no volume attached at the data device
func (h *Handler) snapshotInstance(ctx context.Context, event lifecycle.RequestType, instance *ec2.Instance) (string, error) {
	instanceID := aws.StringValue(instance.InstanceId)
	logger := h.WithField(constants.FieldInstance, instanceID)
	logger.Info("Waiting for instance to stop.")
	err := gaws.WaitUntilInstanceStopped(ctx, h.Cloud, instanceID, h.InstanceStopTimeout)
	if err != nil {
		return "", trace.Wrap(err)
	}
	volumeID, err := gaws.VolumeAt(instance, h.DataDevice)
	if err != nil {
		if trace.IsNotFound(err) {
			logger.Warnf("No game data volume at %v, skipping.", h.DataDevice)
			return "", nil
		}
		return "", trace.Wrap(err)
	}
	spec := NewSnapshotSpec(instance.Tags, event, h.Clock.Now())
	logger.WithField(constants.FieldVolume, volumeID).Infof("Creating snapshot %v.", spec.Name())
	snapshot, err := h.Cloud.CreateSnapshotWithContext(ctx, spec.CreateInput(volumeID))
	if err != nil {
		return "", utils.ConvertEC2Error(err)
	}
	return aws.StringValue(snapshot.SnapshotId), nil
}

// PhysicalResourceID returns the physical id of a backup resource:
// backups-on<event>-<vpc id>
func PhysicalResourceID(props lifecycle.Properties) string {
	return fmt.Sprintf("backups-on%v-%v",
		props.Get(constants.PropertyOnEvent), props.Get(constants.PropertyVPCID))
}

type properties struct {
	onEvent lifecycle.RequestType
	vpcID   string
}

func parseProperties(props lifecycle.Properties) (*properties, error) {
	if err := props.Require(constants.PropertyOnEvent, constants.PropertyVPCID); err != nil {
		return nil, trace.Wrap(err)
	}
	onEvent, err := lifecycle.ParseRequestType(props.Get(constants.PropertyOnEvent))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &properties{
		onEvent: onEvent,
		vpcID:   props.Get(constants.PropertyVPCID),
	}, nil
}
