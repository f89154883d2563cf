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

package aws

import (
	"context"
	"time"

	"github.com/gravitational/gamefleet/lib/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
)

// WaitUntilInstanceStopped blocks until the instance with the specified ID
// is stopped or the timeout expires.
//
// The waiter polls the instance state with the SDK's own retry policy,
// so this is a single suspension point for the caller.
func WaitUntilInstanceStopped(ctx context.Context, client EC2, instanceID string, timeout time.Duration) error {
	localCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := client.WaitUntilInstanceStoppedWithContext(localCtx, &ec2.DescribeInstancesInput{
		InstanceIds: aws.StringSlice([]string{instanceID}),
	})
	return utils.ConvertEC2Error(err)
}

// WaitUntilSnapshotsCompleted blocks until all of the specified snapshots
// are completed or the timeout expires
func WaitUntilSnapshotsCompleted(ctx context.Context, client EC2, snapshotIDs []string, timeout time.Duration) error {
	localCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := client.WaitUntilSnapshotCompletedWithContext(localCtx, &ec2.DescribeSnapshotsInput{
		SnapshotIds: aws.StringSlice(snapshotIDs),
	})
	return utils.ConvertEC2Error(err)
}

// WaitUntilVolumeAvailable blocks until the volume with the specified ID
// becomes available (i.e. is detached) or the timeout expires
func WaitUntilVolumeAvailable(ctx context.Context, client EC2, volumeID string, timeout time.Duration) error {
	localCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := client.WaitUntilVolumeAvailableWithContext(localCtx, &ec2.DescribeVolumesInput{
		VolumeIds: aws.StringSlice([]string{volumeID}),
	})
	return utils.ConvertEC2Error(err)
}
