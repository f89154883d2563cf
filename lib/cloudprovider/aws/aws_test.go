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
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/gravitational/trace"
	"gopkg.in/check.v1"
)

func TestAWS(t *testing.T) { check.TestingT(t) }

type AWSSuite struct{}

var _ = check.Suite(&AWSSuite{})

func (s *AWSSuite) TestDescribeInstancesInVPCPaginates(c *check.C) {
	client := &pagedEC2{pages: []*ec2.DescribeInstancesOutput{
		{
			Reservations: []*ec2.Reservation{
				{Instances: []*ec2.Instance{{InstanceId: aws.String("i-1")}, nil}},
				nil,
			},
			NextToken: aws.String("page-2"),
		},
		{
			Reservations: []*ec2.Reservation{
				{},
				{Instances: []*ec2.Instance{{InstanceId: aws.String("i-2")}}},
			},
		},
	}}
	instances, err := DescribeInstancesInVPC(context.TODO(), client, "vpc-1")
	c.Assert(err, check.IsNil)
	c.Assert(InstanceIDs(instances), check.DeepEquals, []string{"i-1", "i-2"})
	c.Assert(client.tokens, check.DeepEquals, []string{"", "page-2"})
	c.Assert(aws.StringValue(client.filter.Name), check.Equals, "vpc-id")
	c.Assert(aws.StringValueSlice(client.filter.Values), check.DeepEquals, []string{"vpc-1"})
}

func (s *AWSSuite) TestDescribeInstancesInVPCEmpty(c *check.C) {
	client := &pagedEC2{pages: []*ec2.DescribeInstancesOutput{nil}}
	instances, err := DescribeInstancesInVPC(context.TODO(), client, "vpc-1")
	c.Assert(err, check.IsNil)
	c.Assert(instances, check.HasLen, 0)
	c.Assert(InstanceIDs(instances), check.DeepEquals, []string{})
}

func (s *AWSSuite) TestDescribeInstancesInVPCFails(c *check.C) {
	client := &pagedEC2{err: awserr.New("InvalidVpcID.NotFound", "vpc-1 does not exist", nil)}
	_, err := DescribeInstancesInVPC(context.TODO(), client, "vpc-1")
	c.Assert(trace.IsNotFound(err), check.Equals, true)
}

func (s *AWSSuite) TestVolumeAt(c *check.C) {
	instance := &ec2.Instance{
		InstanceId: aws.String("i-1"),
		BlockDeviceMappings: []*ec2.InstanceBlockDeviceMapping{
			nil,
			{DeviceName: aws.String("/dev/sdf")},
			{DeviceName: aws.String("/dev/xvda"), Ebs: &ec2.EbsInstanceBlockDevice{VolumeId: aws.String("vol-root")}},
			{DeviceName: aws.String("/dev/sdm"), Ebs: &ec2.EbsInstanceBlockDevice{VolumeId: aws.String("vol-data")}},
		},
	}
	volumeID, err := VolumeAt(instance, "/dev/sdm")
	c.Assert(err, check.IsNil)
	c.Assert(volumeID, check.Equals, "vol-data")

	_, err = VolumeAt(instance, "/dev/sdf")
	c.Assert(trace.IsNotFound(err), check.Equals, true)
}

func (s *AWSSuite) TestTag(c *check.C) {
	tags := []*ec2.Tag{
		nil,
		{Key: aws.String("Name"), Value: aws.String("stack/serverA")},
	}
	c.Assert(Tag(tags, "Name"), check.Equals, "stack/serverA")
	c.Assert(Tag(tags, "Server"), check.Equals, "")
}

// pagedEC2 returns the configured pages of instances in order
type pagedEC2 struct {
	EC2
	pages  []*ec2.DescribeInstancesOutput
	err    error
	tokens []string
	filter *ec2.Filter
}

func (e *pagedEC2) DescribeInstancesWithContext(ctx aws.Context, input *ec2.DescribeInstancesInput, opts ...request.Option) (*ec2.DescribeInstancesOutput, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tokens = append(e.tokens, aws.StringValue(input.NextToken))
	e.filter = input.Filters[0]
	page := e.pages[0]
	e.pages = e.pages[1:]
	return page, nil
}
