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

	"github.com/gravitational/gamefleet/lib/constants"
	"github.com/gravitational/gamefleet/lib/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/gravitational/trace"
)

// EC2 is the subset of the Elastic Compute Cloud API used by the handlers
type EC2 interface {
	DescribeInstancesWithContext(aws.Context, *ec2.DescribeInstancesInput, ...request.Option) (*ec2.DescribeInstancesOutput, error)
	StopInstancesWithContext(aws.Context, *ec2.StopInstancesInput, ...request.Option) (*ec2.StopInstancesOutput, error)
	WaitUntilInstanceStoppedWithContext(aws.Context, *ec2.DescribeInstancesInput, ...request.WaiterOption) error
	CreateSnapshotWithContext(aws.Context, *ec2.CreateSnapshotInput, ...request.Option) (*ec2.Snapshot, error)
	WaitUntilSnapshotCompletedWithContext(aws.Context, *ec2.DescribeSnapshotsInput, ...request.WaiterOption) error
	AttachVolumeWithContext(aws.Context, *ec2.AttachVolumeInput, ...request.Option) (*ec2.VolumeAttachment, error)
	DetachVolumeWithContext(aws.Context, *ec2.DetachVolumeInput, ...request.Option) (*ec2.VolumeAttachment, error)
	WaitUntilVolumeAvailableWithContext(aws.Context, *ec2.DescribeVolumesInput, ...request.WaiterOption) error
}

// NewEC2 returns a new EC2 client for the specified region.
// Credentials are resolved with the default provider chain.
// An empty region defers to the environment (AWS_REGION)
func NewEC2(region string) (*ec2.EC2, error) {
	config := aws.NewConfig()
	if region != "" {
		config = config.WithRegion(region)
	}
	sess, err := session.NewSession(config)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return ec2.New(sess), nil
}

// DescribeInstancesInVPC returns all instances in the specified VPC.
//
// Reservations or instance lists missing from the response are
// treated as empty
func DescribeInstancesInVPC(ctx context.Context, client EC2, vpcID string) (results []*ec2.Instance, err error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{
			{
				Name:   aws.String(constants.FilterVPCID),
				Values: aws.StringSlice([]string{vpcID}),
			},
		},
	}
	for {
		resp, err := client.DescribeInstancesWithContext(ctx, input)
		if err != nil {
			return nil, utils.ConvertEC2Error(err)
		}
		if resp == nil {
			break
		}
		for _, reservation := range resp.Reservations {
			if reservation == nil {
				continue
			}
			for _, instance := range reservation.Instances {
				if instance != nil {
					results = append(results, instance)
				}
			}
		}
		if isNilOrEmpty(resp.NextToken) {
			break
		}
		input.NextToken = resp.NextToken
	}
	return results, nil
}

// InstanceIDs returns IDs of the specified instances
func InstanceIDs(instances []*ec2.Instance) []string {
	ids := make([]string, 0, len(instances))
	for _, instance := range instances {
		ids = append(ids, aws.StringValue(instance.InstanceId))
	}
	return ids
}

// Tag returns the value of the tag specified with name
// If the tag is not found, an empty string is returned
func Tag(tags []*ec2.Tag, name string) string {
	for _, tag := range tags {
		if tag != nil && aws.StringValue(tag.Key) == name {
			return aws.StringValue(tag.Value)
		}
	}
	return ""
}

// VolumeAt returns the ID of the EBS volume attached to the instance
// at the specified device. Returns NotFound if there is no such volume
func VolumeAt(instance *ec2.Instance, device string) (string, error) {
	for _, mapping := range instance.BlockDeviceMappings {
		if mapping == nil || mapping.Ebs == nil {
			continue
		}
		if aws.StringValue(mapping.DeviceName) == device {
			return aws.StringValue(mapping.Ebs.VolumeId), nil
		}
	}
	return "", trace.NotFound("no volume attached to %v at %v",
		aws.StringValue(instance.InstanceId), device)
}

func isNilOrEmpty(s *string) bool {
	return s == nil || *s == ""
}
