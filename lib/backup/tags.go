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
	"fmt"
	"strings"
	"time"

	gaws "github.com/gravitational/gamefleet/lib/cloudprovider/aws"
	"github.com/gravitational/gamefleet/lib/constants"
	"github.com/gravitational/gamefleet/lib/lifecycle"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
)

// SnapshotSpec describes the snapshot to create for a game server
type SnapshotSpec struct {
	// Application is the application qualifier copied from the instance
	Application string
	// Environment is the environment copied from the instance
	Environment string
	// Server is the game server name
	Server string
	// Event is the lifecycle event the backup is taken on
	Event lifecycle.RequestType
	// Time is the backup time
	Time time.Time
}

// NewSnapshotSpec derives the snapshot attributes from the instance tags.
//
// The game server name is the second segment of the instance Name tag,
// which has the form <stack>/<server>/...; it is empty if the tag has
// no such segment.
func NewSnapshotSpec(instanceTags []*ec2.Tag, event lifecycle.RequestType, now time.Time) SnapshotSpec {
	return SnapshotSpec{
		Application: gaws.Tag(instanceTags, constants.TagApplication),
		Environment: gaws.Tag(instanceTags, constants.TagEnvironment),
		Server:      serverName(gaws.Tag(instanceTags, constants.TagName)),
		Event:       event,
		Time:        now.UTC(),
	}
}

// Name returns the snapshot name:
// <application>-<environment>-<server>-<epoch milliseconds>
func (s SnapshotSpec) Name() string {
	return fmt.Sprintf("%v-%v-%v-%v", s.Application, s.Environment, s.Server,
		s.Time.UnixNano()/int64(time.Millisecond))
}

// Timestamp returns the backup time formatted for tags and descriptions
func (s SnapshotSpec) Timestamp() string {
	return s.Time.Format(timestampFormat)
}

// Description returns the human-readable snapshot description
func (s SnapshotSpec) Description() string {
	return fmt.Sprintf("Snapshot of '%v' game server on %v", s.Server, s.Timestamp())
}

// Tags returns the tag specification to create the snapshot with
func (s SnapshotSpec) Tags() *ec2.TagSpecification {
	return &ec2.TagSpecification{
		ResourceType: aws.String(ec2.ResourceTypeSnapshot),
		Tags: []*ec2.Tag{
			newTag(constants.TagApplication, s.Application),
			newTag(constants.TagEnvironment, s.Environment),
			newTag(constants.TagName, s.Name()),
			newTag(constants.TagServer, s.Server),
			newTag(constants.TagEvent, fmt.Sprintf("stack.%v", strings.ToLower(string(s.Event)))),
			newTag(constants.TagTimestamp, s.Timestamp()),
		},
	}
}

// CreateInput returns the request to snapshot the specified volume
func (s SnapshotSpec) CreateInput(volumeID string) *ec2.CreateSnapshotInput {
	return &ec2.CreateSnapshotInput{
		VolumeId:          aws.String(volumeID),
		Description:       aws.String(s.Description()),
		TagSpecifications: []*ec2.TagSpecification{s.Tags()},
	}
}

func serverName(instanceName string) string {
	parts := strings.Split(instanceName, "/")
	if len(parts) > 1 {
		return parts[1]
	}
	return ""
}

func newTag(key, value string) *ec2.Tag {
	return &ec2.Tag{Key: aws.String(key), Value: aws.String(value)}
}

// timestampFormat is ISO 8601 with millisecond precision in UTC
const timestampFormat = "2006-01-02T15:04:05.000Z"
