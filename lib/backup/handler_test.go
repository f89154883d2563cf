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
	"time"

	"github.com/gravitational/gamefleet/lib/lifecycle"
	"github.com/gravitational/gamefleet/lib/testutils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"gopkg.in/check.v1"
)

type HandlerSuite struct {
	clock clockwork.FakeClock
}

var _ = check.Suite(&HandlerSuite{})

func (s *HandlerSuite) SetUpTest(c *check.C) {
	s.clock = clockwork.NewFakeClockAt(time.Date(2021, time.May, 3, 0, 0, 0, 0, time.UTC))
}

func (s *HandlerSuite) newHandler(c *check.C, cloud *testutils.EC2) (*Handler, *testutils.Responder) {
	responder := &testutils.Responder{}
	handler, err := New(Config{
		Cloud:     cloud,
		Responder: responder,
		Clock:     s.clock,
	})
	c.Assert(err, check.IsNil)
	return handler, responder
}

func (s *HandlerSuite) TestValidatesProperties(c *check.C) {
	var testCases = []struct {
		comment    string
		properties lifecycle.Properties
	}{
		{comment: "no properties"},
		{comment: "missing vpc", properties: lifecycle.Properties{"OnEvent": "Update"}},
		{comment: "missing event", properties: lifecycle.Properties{"VpcId": "vpc-1"}},
		{comment: "invalid event", properties: lifecycle.Properties{"OnEvent": "Replace", "VpcId": "vpc-1"}},
	}
	for _, tc := range testCases {
		comment := check.Commentf(tc.comment)
		cloud := testutils.NewEC2(newGameServer("i-1", "vol-1"))
		handler, responder := s.newHandler(c, cloud)
		event := newEvent(lifecycle.RequestUpdate, tc.properties)

		err := handler.Handle(context.TODO(), event, lifecycle.Context{LogStreamName: "stream"})
		c.Assert(err, check.IsNil, comment)
		responses := responder.Responses()
		c.Assert(responses, check.HasLen, 1, comment)
		c.Assert(responses[0].Status, check.Equals, lifecycle.StatusFailed, comment)
		c.Assert(responses[0].Reason, check.Not(check.Equals), "", comment)
		c.Assert(cloud.Calls(), check.HasLen, 0, comment)
	}
}

func (s *HandlerSuite) TestIgnoresUnarmedEvents(c *check.C) {
	for _, requestType := range []lifecycle.RequestType{lifecycle.RequestCreate, lifecycle.RequestDelete} {
		comment := check.Commentf(string(requestType))
		cloud := testutils.NewEC2(newGameServer("i-1", "vol-1"))
		handler, responder := s.newHandler(c, cloud)
		event := newEvent(requestType, lifecycle.Properties{"OnEvent": "Update", "VpcId": "vpc-1"})

		err := handler.Handle(context.TODO(), event, lifecycle.Context{LogStreamName: "stream"})
		c.Assert(err, check.IsNil, comment)
		responses := responder.Responses()
		c.Assert(responses, check.HasLen, 1, comment)
		c.Assert(responses[0].Status, check.Equals, lifecycle.StatusSuccess, comment)
		c.Assert(cloud.Mutated(), check.Equals, false, comment)
	}
}

func (s *HandlerSuite) TestToleratesEmptyFleet(c *check.C) {
	var testCases = []struct {
		comment  string
		describe *ec2.DescribeInstancesOutput
	}{
		{comment: "no output"},
		{comment: "no reservations", describe: &ec2.DescribeInstancesOutput{}},
		{
			comment: "no instances",
			describe: &ec2.DescribeInstancesOutput{
				Reservations: []*ec2.Reservation{{}, {Instances: []*ec2.Instance{}}},
			},
		},
	}
	for _, tc := range testCases {
		comment := check.Commentf(tc.comment)
		cloud := testutils.NewEC2()
		cloud.Describe = tc.describe
		handler, responder := s.newHandler(c, cloud)

		err := handler.Handle(context.TODO(), newArmedEvent(lifecycle.RequestUpdate), lifecycle.Context{})
		c.Assert(err, check.IsNil, comment)
		responses := responder.Responses()
		c.Assert(responses, check.HasLen, 1, comment)
		c.Assert(responses[0].Status, check.Equals, lifecycle.StatusSuccess, comment)
		c.Assert(cloud.Ops(), check.DeepEquals, []string{
			testutils.OpDescribeInstances,
			testutils.OpStopInstances,
		}, comment)
		stop := cloud.CallsTo(testutils.OpStopInstances)[0].Input.(*ec2.StopInstancesInput)
		c.Assert(stop.InstanceIds, check.HasLen, 0, comment)
	}
}

func (s *HandlerSuite) TestBacksUpSingleInstance(c *check.C) {
	cloud := testutils.NewEC2(newGameServer("i-1", "vol-1"))
	handler, responder := s.newHandler(c, cloud)

	err := handler.Handle(context.TODO(), newArmedEvent(lifecycle.RequestUpdate), lifecycle.Context{})
	c.Assert(err, check.IsNil)
	responses := responder.Responses()
	c.Assert(responses, check.HasLen, 1)
	c.Assert(responses[0].Status, check.Equals, lifecycle.StatusSuccess)
	c.Assert(responses[0].PhysicalResourceID, check.Equals, "backups-onUpdate-vpc-1")
	c.Assert(cloud.Ops(), check.DeepEquals, []string{
		testutils.OpDescribeInstances,
		testutils.OpStopInstances,
		testutils.OpWaitInstanceStopped,
		testutils.OpCreateSnapshot,
		testutils.OpWaitSnapshotCompleted,
	})

	describe := cloud.CallsTo(testutils.OpDescribeInstances)[0].Input.(*ec2.DescribeInstancesInput)
	c.Assert(describe.Filters, check.HasLen, 1)
	c.Assert(aws.StringValueSlice(describe.Filters[0].Values), check.DeepEquals, []string{"vpc-1"})

	stop := cloud.CallsTo(testutils.OpStopInstances)[0].Input.(*ec2.StopInstancesInput)
	c.Assert(aws.StringValueSlice(stop.InstanceIds), check.DeepEquals, []string{"i-1"})
	c.Assert(aws.BoolValue(stop.Force), check.Equals, true)

	wait := cloud.CallsTo(testutils.OpWaitInstanceStopped)[0].Input.(*ec2.DescribeInstancesInput)
	c.Assert(aws.StringValueSlice(wait.InstanceIds), check.DeepEquals, []string{"i-1"})

	snapshot := cloud.CallsTo(testutils.OpCreateSnapshot)[0].Input.(*ec2.CreateSnapshotInput)
	c.Assert(aws.StringValue(snapshot.VolumeId), check.Equals, "vol-1")
	c.Assert(aws.StringValue(snapshot.Description), check.Equals,
		"Snapshot of 'serverA' game server on 2021-05-03T00:00:00.000Z")

	completed := cloud.CallsTo(testutils.OpWaitSnapshotCompleted)[0].Input.(*ec2.DescribeSnapshotsInput)
	c.Assert(aws.StringValueSlice(completed.SnapshotIds), check.DeepEquals, []string{"snap-1"})
}

func (s *HandlerSuite) TestBacksUpFleet(c *check.C) {
	cloud := testutils.NewEC2(
		newGameServer("i-1", "vol-1"),
		newGameServer("i-2", "vol-2"),
		// no game data volume
		testutils.NewInstance("i-3", nil, map[string]string{"/dev/xvda": "vol-root"}),
	)
	handler, responder := s.newHandler(c, cloud)

	err := handler.Handle(context.TODO(), newArmedEvent(lifecycle.RequestDelete), lifecycle.Context{})
	c.Assert(err, check.IsNil)
	responses := responder.Responses()
	c.Assert(responses, check.HasLen, 1)
	c.Assert(responses[0].Status, check.Equals, lifecycle.StatusSuccess)

	c.Assert(cloud.CallsTo(testutils.OpStopInstances), check.HasLen, 1)
	c.Assert(cloud.CallsTo(testutils.OpWaitInstanceStopped), check.HasLen, 3)
	volumes := make(map[string]bool)
	for _, call := range cloud.CallsTo(testutils.OpCreateSnapshot) {
		volumes[aws.StringValue(call.Input.(*ec2.CreateSnapshotInput).VolumeId)] = true
	}
	c.Assert(volumes, check.DeepEquals, map[string]bool{"vol-1": true, "vol-2": true})
	completed := cloud.CallsTo(testutils.OpWaitSnapshotCompleted)
	c.Assert(completed, check.HasLen, 1)
	c.Assert(completed[0].Input.(*ec2.DescribeSnapshotsInput).SnapshotIds, check.HasLen, 2)
}

func (s *HandlerSuite) TestFailsOnCloudErrors(c *check.C) {
	ops := []string{
		testutils.OpDescribeInstances,
		testutils.OpStopInstances,
		testutils.OpWaitInstanceStopped,
		testutils.OpCreateSnapshot,
		testutils.OpWaitSnapshotCompleted,
	}
	for _, op := range ops {
		comment := check.Commentf(op)
		cloud := testutils.NewEC2(newGameServer("i-1", "vol-1"))
		cloud.FailOn(op, awserr.New("UnauthorizedOperation", "not allowed to "+op, nil))
		handler, responder := s.newHandler(c, cloud)

		err := handler.Handle(context.TODO(), newArmedEvent(lifecycle.RequestUpdate), lifecycle.Context{})
		c.Assert(err, check.IsNil, comment)
		responses := responder.Responses()
		c.Assert(responses, check.HasLen, 1, comment)
		c.Assert(responses[0].Status, check.Equals, lifecycle.StatusFailed, comment)
		c.Assert(responses[0].Reason, check.Matches, ".*not allowed to "+op+".*", comment)
	}
}

func (s *HandlerSuite) TestReportsPanicInSnapshot(c *check.C) {
	cloud := testutils.NewEC2(
		newGameServer("i-1", "vol-1"),
		newGameServer("i-2", "vol-2"),
	)
	cloud.PanicOn(testutils.OpCreateSnapshot, "snapshot quota table corrupted")
	handler, responder := s.newHandler(c, cloud)

	err := handler.Handle(context.TODO(), newArmedEvent(lifecycle.RequestUpdate), lifecycle.Context{})
	c.Assert(err, check.IsNil)
	responses := responder.Responses()
	c.Assert(responses, check.HasLen, 1)
	c.Assert(responses[0].Status, check.Equals, lifecycle.StatusFailed)
	c.Assert(responses[0].Reason, check.Matches, ".*snapshot quota table corrupted.*")
	c.Assert(cloud.CallsTo(testutils.OpWaitSnapshotCompleted), check.HasLen, 0)
}

func (s *HandlerSuite) TestReturnsDeliveryError(c *check.C) {
	cloud := testutils.NewEC2()
	responder := &testutils.Responder{Err: trace.ConnectionProblem(nil, "connection refused")}
	handler, err := New(Config{Cloud: cloud, Responder: responder, Clock: s.clock})
	c.Assert(err, check.IsNil)

	err = handler.Handle(context.TODO(), newArmedEvent(lifecycle.RequestUpdate), lifecycle.Context{})
	c.Assert(trace.IsConnectionProblem(err), check.Equals, true)
	c.Assert(responder.Responses(), check.HasLen, 1)
}

func newGameServer(id, volumeID string) *ec2.Instance {
	return testutils.NewInstance(id, map[string]string{
		"Application": "app1",
		"Environment": "env1",
		"Name":        "stack/serverA",
	}, map[string]string{
		"/dev/xvda": "vol-root-" + id,
		"/dev/sdm":  volumeID,
	})
}

func newArmedEvent(requestType lifecycle.RequestType) lifecycle.Event {
	return newEvent(requestType, lifecycle.Properties{
		"OnEvent": string(requestType),
		"VpcId":   "vpc-1",
	})
}

func newEvent(requestType lifecycle.RequestType, properties lifecycle.Properties) lifecycle.Event {
	event := lifecycle.Event{
		RequestType:        requestType,
		RequestID:          "request-1",
		StackID:            "stack-1",
		LogicalResourceID:  "OnUpdates",
		ResponseURL:        "https://example.com/response",
		ResourceProperties: properties,
	}
	if requestType != lifecycle.RequestCreate {
		event.PhysicalResourceID = "backups-onUpdate-vpc-1"
	}
	return event
}
