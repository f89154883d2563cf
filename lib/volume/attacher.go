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

// Package volume implements the lifecycle handler that keeps a persistent
// game data volume attached to the game server instance across instance
// replacements.
package volume

import (
	"context"
	"fmt"
	"time"

	gaws "github.com/gravitational/gamefleet/lib/cloudprovider/aws"
	"github.com/gravitational/gamefleet/lib/constants"
	"github.com/gravitational/gamefleet/lib/defaults"
	"github.com/gravitational/gamefleet/lib/lifecycle"
	"github.com/gravitational/gamefleet/lib/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// Config is the volume attacher configuration
type Config struct {
	// Cloud is the EC2 API client
	Cloud gaws.EC2
	// Responder delivers completion responses
	Responder lifecycle.Responder
	// DataDevice is the device to attach the volume at
	DataDevice string
	// VolumeAvailableTimeout limits the wait for the volume to detach
	VolumeAvailableTimeout time.Duration
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
	if c.DataDevice == "" {
		c.DataDevice = defaults.DataDevice
	}
	if c.VolumeAvailableTimeout == 0 {
		c.VolumeAvailableTimeout = defaults.VolumeAvailableTimeout
	}
	if c.FieldLogger == nil {
		c.FieldLogger = log.WithField(trace.Component, constants.ComponentVolume)
	}
	return nil
}

// Attacher attaches the volume on Create, detaches it on Delete and
// moves it to the (possibly replaced) instance on Update
type Attacher struct {
	Config
}

// New returns a new volume attacher
func New(config Config) (*Attacher, error) {
	if err := config.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Attacher{Config: config}, nil
}

// Handle handles the lifecycle event and sends the completion response.
// The returned error is only ever a response delivery error
func (a *Attacher) Handle(ctx context.Context, event lifecycle.Event, lctx lifecycle.Context) error {
	return lifecycle.Invocation{
		Event:     event,
		Context:   lctx,
		Responder: a.Responder,
		NewPhysicalID: func() string {
			return PhysicalResourceID(event.ResourceProperties)
		},
		FieldLogger: a.FieldLogger,
	}.Run(ctx, func(ctx context.Context) error {
		return a.handle(ctx, event)
	})
}

func (a *Attacher) handle(ctx context.Context, event lifecycle.Event) error {
	props := event.ResourceProperties
	if err := props.Require(constants.PropertyInstanceID, constants.PropertyVolumeID); err != nil {
		return trace.Wrap(err)
	}
	instanceID := props.Get(constants.PropertyInstanceID)
	volumeID := props.Get(constants.PropertyVolumeID)
	switch event.RequestType {
	case lifecycle.RequestCreate:
		return a.Attach(ctx, instanceID, volumeID)
	case lifecycle.RequestDelete:
		return a.Detach(ctx, volumeID)
	case lifecycle.RequestUpdate:
		return a.Reattach(ctx, instanceID, volumeID)
	default:
		return trace.BadParameter("unsupported request type %q", event.RequestType)
	}
}

// Attach attaches the volume to the instance at the data device
func (a *Attacher) Attach(ctx context.Context, instanceID, volumeID string) error {
	a.WithFields(log.Fields{
		constants.FieldInstance: instanceID,
		constants.FieldVolume:   volumeID,
	}).Infof("Attaching volume at %v.", a.DataDevice)
	_, err := a.Cloud.AttachVolumeWithContext(ctx, &ec2.AttachVolumeInput{
		Device:     aws.String(a.DataDevice),
		InstanceId: aws.String(instanceID),
		VolumeId:   aws.String(volumeID),
	})
	return utils.ConvertEC2Error(err)
}

// Detach detaches the volume from whatever instance it is attached to
func (a *Attacher) Detach(ctx context.Context, volumeID string) error {
	a.WithField(constants.FieldVolume, volumeID).Info("Detaching volume.")
	_, err := a.Cloud.DetachVolumeWithContext(ctx, &ec2.DetachVolumeInput{
		VolumeId: aws.String(volumeID),
	})
	return utils.ConvertEC2Error(err)
}

// Reattach detaches the volume, waits for it to become available and
// attaches it to the specified instance
func (a *Attacher) Reattach(ctx context.Context, instanceID, volumeID string) error {
	if err := a.Detach(ctx, volumeID); err != nil {
		return trace.Wrap(err)
	}
	a.WithField(constants.FieldVolume, volumeID).Info("Waiting for volume to become available.")
	err := gaws.WaitUntilVolumeAvailable(ctx, a.Cloud, volumeID, a.VolumeAvailableTimeout)
	if err != nil {
		return trace.Wrap(err)
	}
	return a.Attach(ctx, instanceID, volumeID)
}

// PhysicalResourceID returns the physical id of a volume attachment.
// It only depends on the volume so that moving the volume to a replaced
// instance keeps the resource identity
func PhysicalResourceID(props lifecycle.Properties) string {
	return fmt.Sprintf("attachment-%v", props.Get(constants.PropertyVolumeID))
}
