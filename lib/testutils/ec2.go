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

package testutils

import (
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
)

const (
	// OpDescribeInstances names the DescribeInstances call
	OpDescribeInstances = "DescribeInstances"
	// OpStopInstances names the StopInstances call
	OpStopInstances = "StopInstances"
	// OpWaitInstanceStopped names the instance stopped waiter
	OpWaitInstanceStopped = "WaitUntilInstanceStopped"
	// OpCreateSnapshot names the CreateSnapshot call
	OpCreateSnapshot = "CreateSnapshot"
	// OpWaitSnapshotCompleted names the snapshot completed waiter
	OpWaitSnapshotCompleted = "WaitUntilSnapshotCompleted"
	// OpAttachVolume names the AttachVolume call
	OpAttachVolume = "AttachVolume"
	// OpDetachVolume names the DetachVolume call
	OpDetachVolume = "DetachVolume"
	// OpWaitVolumeAvailable names the volume available waiter
	OpWaitVolumeAvailable = "WaitUntilVolumeAvailable"
)

// EC2 is the mocked EC2 API client.
// It records every call and can be configured to fail any of them
type EC2 struct {
	ec2iface.EC2API
	mu sync.Mutex
	// Describe is the response returned from DescribeInstances.
	// An empty response is returned if unset
	Describe *ec2.DescribeInstancesOutput
	// Errors maps an operation name to the error it fails with
	Errors map[string]error
	// Panics maps an operation name to the value it panics with
	Panics map[string]interface{}
	// calls records all calls in order
	calls     []Call
	snapshots int
}

// Call describes a single recorded API call
type Call struct {
	// Op is the operation name
	Op string
	// Input is the operation input
	Input interface{}
}

// NewEC2 returns a new fake EC2 returning the specified instances
// in a single reservation
func NewEC2(instances ...*ec2.Instance) *EC2 {
	return &EC2{
		Describe: &ec2.DescribeInstancesOutput{
			Reservations: []*ec2.Reservation{{Instances: instances}},
		},
		Errors: make(map[string]error),
	}
}

// FailOn configures the operation to fail with the specified error
func (e *EC2) FailOn(op string, err error) *EC2 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Errors == nil {
		e.Errors = make(map[string]error)
	}
	e.Errors[op] = err
	return e
}

// PanicOn configures the operation to panic with the specified value
func (e *EC2) PanicOn(op string, value interface{}) *EC2 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Panics == nil {
		e.Panics = make(map[string]interface{})
	}
	e.Panics[op] = value
	return e
}

// Calls returns all recorded calls
func (e *EC2) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Ops returns the names of all recorded calls in order
func (e *EC2) Ops() []string {
	var ops []string
	for _, call := range e.Calls() {
		ops = append(ops, call.Op)
	}
	return ops
}

// CallsTo returns the recorded calls of the specified operation
func (e *EC2) CallsTo(op string) (calls []Call) {
	for _, call := range e.Calls() {
		if call.Op == op {
			calls = append(calls, call)
		}
	}
	return calls
}

// Mutated returns true if any state-changing call has been made
func (e *EC2) Mutated() bool {
	for _, call := range e.Calls() {
		switch call.Op {
		case OpStopInstances, OpCreateSnapshot, OpAttachVolume, OpDetachVolume:
			return true
		}
	}
	return false
}

func (e *EC2) record(op string, input interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Op: op, Input: input})
	if value, ok := e.Panics[op]; ok {
		panic(value)
	}
	return e.Errors[op]
}

func (e *EC2) DescribeInstancesWithContext(ctx aws.Context, input *ec2.DescribeInstancesInput, opts ...request.Option) (*ec2.DescribeInstancesOutput, error) {
	if err := e.record(OpDescribeInstances, input); err != nil {
		return nil, err
	}
	if e.Describe == nil {
		return &ec2.DescribeInstancesOutput{}, nil
	}
	return e.Describe, nil
}

func (e *EC2) StopInstancesWithContext(ctx aws.Context, input *ec2.StopInstancesInput, opts ...request.Option) (*ec2.StopInstancesOutput, error) {
	if err := e.record(OpStopInstances, input); err != nil {
		return nil, err
	}
	return &ec2.StopInstancesOutput{}, nil
}

func (e *EC2) WaitUntilInstanceStoppedWithContext(ctx aws.Context, input *ec2.DescribeInstancesInput, opts ...request.WaiterOption) error {
	return e.record(OpWaitInstanceStopped, input)
}

func (e *EC2) CreateSnapshotWithContext(ctx aws.Context, input *ec2.CreateSnapshotInput, opts ...request.Option) (*ec2.Snapshot, error) {
	if err := e.record(OpCreateSnapshot, input); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshots++
	return &ec2.Snapshot{
		SnapshotId: aws.String(fmt.Sprintf("snap-%v", e.snapshots)),
		VolumeId:   input.VolumeId,
	}, nil
}

func (e *EC2) WaitUntilSnapshotCompletedWithContext(ctx aws.Context, input *ec2.DescribeSnapshotsInput, opts ...request.WaiterOption) error {
	return e.record(OpWaitSnapshotCompleted, input)
}

func (e *EC2) AttachVolumeWithContext(ctx aws.Context, input *ec2.AttachVolumeInput, opts ...request.Option) (*ec2.VolumeAttachment, error) {
	if err := e.record(OpAttachVolume, input); err != nil {
		return nil, err
	}
	return &ec2.VolumeAttachment{
		Device:     input.Device,
		InstanceId: input.InstanceId,
		VolumeId:   input.VolumeId,
		State:      aws.String(ec2.VolumeAttachmentStateAttaching),
	}, nil
}

func (e *EC2) DetachVolumeWithContext(ctx aws.Context, input *ec2.DetachVolumeInput, opts ...request.Option) (*ec2.VolumeAttachment, error) {
	if err := e.record(OpDetachVolume, input); err != nil {
		return nil, err
	}
	return &ec2.VolumeAttachment{
		VolumeId: input.VolumeId,
		State:    aws.String(ec2.VolumeAttachmentStateDetaching),
	}, nil
}

func (e *EC2) WaitUntilVolumeAvailableWithContext(ctx aws.Context, input *ec2.DescribeVolumesInput, opts ...request.WaiterOption) error {
	return e.record(OpWaitVolumeAvailable, input)
}

// NewInstance returns a new instance description with the specified
// tags and the EBS volumes attached at the specified devices
func NewInstance(id string, tags map[string]string, volumes map[string]string) *ec2.Instance {
	instance := &ec2.Instance{InstanceId: aws.String(id)}
	for key, value := range tags {
		instance.Tags = append(instance.Tags, &ec2.Tag{
			Key:   aws.String(key),
			Value: aws.String(value),
		})
	}
	for device, volumeID := range volumes {
		instance.BlockDeviceMappings = append(instance.BlockDeviceMappings, &ec2.InstanceBlockDeviceMapping{
			DeviceName: aws.String(device),
			Ebs:        &ec2.EbsInstanceBlockDevice{VolumeId: aws.String(volumeID)},
		})
	}
	return instance
}
