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

// package constants contains global constants
// shared between packages
package constants

import "github.com/gravitational/trace"

const (
	// ComponentBackups is the name of the game backups handler component
	ComponentBackups = "backups"
	// ComponentVolume is the name of the volume attacher handler component
	ComponentVolume = "volume"
	// ComponentLifecycle is the name of the lifecycle response component
	ComponentLifecycle = "lifecycle"
	// ComponentPaperMC is the name of the PaperMC API client component
	ComponentPaperMC = "papermc"
	// ComponentDeployment is the name of the deployment plan component
	ComponentDeployment = "deploy"

	// FieldRequestID is a logging field for the lifecycle request id
	FieldRequestID = "request_id"
	// FieldRequestType is a logging field for the lifecycle request type
	FieldRequestType = "request_type"
	// FieldLogicalID is a logging field for the logical resource id
	FieldLogicalID = "logical_id"
	// FieldInstance is a logging field for an EC2 instance id
	FieldInstance = "instance"
	// FieldVolume is a logging field for an EBS volume id
	FieldVolume = "volume"
	// FieldVPC is a logging field for a VPC id
	FieldVPC = "vpc"

	// TagApplication is the tag with the application qualifier
	TagApplication = "Application"
	// TagEnvironment is the tag with the deployment environment
	TagEnvironment = "Environment"
	// TagName is the resource name tag
	TagName = "Name"
	// TagServer is the snapshot tag with the game server name
	TagServer = "Server"
	// TagEvent is the snapshot tag with the event that triggered the backup
	TagEvent = "Event"
	// TagTimestamp is the snapshot tag with the backup time
	TagTimestamp = "Timestamp"

	// FilterVPCID is the EC2 describe filter matching instances by VPC
	FilterVPCID = "vpc-id"

	// PropertyOnEvent is the resource property with the armed event type
	PropertyOnEvent = "OnEvent"
	// PropertyVPCID is the resource property with the VPC to back up
	PropertyVPCID = "VpcId"
	// PropertyInstanceID is the resource property with the instance to attach to
	PropertyInstanceID = "InstanceId"
	// PropertyVolumeID is the resource property with the volume to attach
	PropertyVolumeID = "VolumeId"
	// PropertyTimestamp is the resource property used to force the
	// orchestrator to send an event on every deployment
	PropertyTimestamp = "Timestamp"
	// PropertyServiceToken is the resource property with the handler ARN
	PropertyServiceToken = "ServiceToken"

	// ResourceTypeGameBackups is the custom resource type of the backup handler
	ResourceTypeGameBackups = "Custom::GameBackups"
	// ResourceTypeVolumeAttachment is the custom resource type of the volume attacher
	ResourceTypeVolumeAttachment = "Custom::VolumeAttachment"

	// EncodingText is a text output format
	EncodingText Format = "text"
	// EncodingJSON is a JSON output format
	EncodingJSON Format = "json"
	// EncodingYAML is a YAML output format
	EncodingYAML Format = "yaml"
)

// OutputFormats lists supported command output formats
var OutputFormats = []Format{EncodingText, EncodingJSON, EncodingYAML}

// Format is the type for supported output formats
type Format string

// Set sets the format value
func (f *Format) Set(v string) error {
	for _, format := range OutputFormats {
		if Format(v) == format {
			*f = format
			return nil
		}
	}
	return trace.BadParameter("unsupported output format %q, supported are: %v", v, OutputFormats)
}

// String returns the format string representation
func (f *Format) String() string {
	return string(*f)
}
