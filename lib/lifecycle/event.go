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

/*
Package lifecycle implements the request/response protocol shared by the
custom resource handlers.

The orchestrator delivers a lifecycle event (Create, Update or Delete) for a
custom resource and then waits for exactly one completion response, PUT to a
presigned URL carried in the event. Handlers never return results directly:
whatever happens during an invocation, including invalid input and cloud API
failures, is reported through that single response. Only a failure to deliver
the response itself is returned to the execution platform.
*/
package lifecycle

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/gravitational/trace"
)

// RequestType identifies the lifecycle transition of a custom resource
type RequestType string

const (
	// RequestCreate is sent when the resource is created
	RequestCreate RequestType = "Create"
	// RequestUpdate is sent when the resource properties change
	RequestUpdate RequestType = "Update"
	// RequestDelete is sent when the resource is deleted
	RequestDelete RequestType = "Delete"
)

// RequestTypes lists all supported request types
var RequestTypes = []RequestType{RequestCreate, RequestUpdate, RequestDelete}

// ParseRequestType parses the request type from its string representation
func ParseRequestType(value string) (RequestType, error) {
	switch RequestType(value) {
	case RequestCreate, RequestUpdate, RequestDelete:
		return RequestType(value), nil
	default:
		return "", trace.BadParameter("unsupported request type %q, expected one of %v",
			value, RequestTypes)
	}
}

// Check makes sure the request type is one of the supported types
func (r RequestType) Check() error {
	_, err := ParseRequestType(string(r))
	return trace.Wrap(err)
}

// String returns the request type name
func (r RequestType) String() string {
	return string(r)
}

// Event is a custom resource lifecycle event sent by the orchestrator
type Event struct {
	// RequestType is the lifecycle transition
	RequestType RequestType `json:"RequestType"`
	// RequestID uniquely identifies this request
	RequestID string `json:"RequestId"`
	// StackID identifies the stack the resource belongs to
	StackID string `json:"StackId"`
	// LogicalResourceID is the resource name in the stack template
	LogicalResourceID string `json:"LogicalResourceId"`
	// PhysicalResourceID is the id assigned to the resource on creation.
	// It is empty for Create requests
	PhysicalResourceID string `json:"PhysicalResourceId,omitempty"`
	// ResourceType is the custom resource type, e.g. Custom::GameBackups
	ResourceType string `json:"ResourceType,omitempty"`
	// ResponseURL is the presigned URL the completion response is sent to
	ResponseURL string `json:"ResponseURL"`
	// ResourceProperties are the resource properties from the template
	ResourceProperties Properties `json:"ResourceProperties"`
}

// Check validates the parts of the event required to handle it
func (e Event) Check() error {
	if err := e.RequestType.Check(); err != nil {
		return trace.Wrap(err)
	}
	if e.ResponseURL == "" {
		return trace.BadParameter("missing ResponseURL")
	}
	return nil
}

// String returns a short description of the event for logging
func (e Event) String() string {
	return fmt.Sprintf("%v(request=%v, logical=%v, physical=%v, properties=%v)",
		e.RequestType, e.RequestID, e.LogicalResourceID, e.PhysicalResourceID, e.ResourceProperties)
}

// FromCloudFormation converts the custom resource request as delivered
// to the function runtime into an Event.
//
// Property values that are not strings (e.g. a numeric timestamp used to force
// an update on every deployment) are formatted as strings. The request type
// is not validated here: an invalid event still has to be answered so
// validation happens inside the handler boundary.
func FromCloudFormation(req cfn.Event) Event {
	properties := make(Properties, len(req.ResourceProperties))
	for key, value := range req.ResourceProperties {
		switch v := value.(type) {
		case nil:
		case string:
			properties[key] = v
		case float64:
			properties[key] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			properties[key] = fmt.Sprint(v)
		}
	}
	return Event{
		RequestType:        RequestType(req.RequestType),
		RequestID:          req.RequestID,
		StackID:            req.StackID,
		LogicalResourceID:  req.LogicalResourceID,
		PhysicalResourceID: req.PhysicalResourceID,
		ResourceType:       req.ResourceType,
		ResponseURL:        req.ResponseURL,
		ResourceProperties: properties,
	}
}

// Properties are the custom resource properties
type Properties map[string]string

// Get returns the value of the property with the specified key
func (p Properties) Get(key string) string {
	return p[key]
}

// Require makes sure that all of the specified properties are set
func (p Properties) Require(keys ...string) error {
	for _, key := range keys {
		if p[key] == "" {
			return trace.BadParameter("required resource property not defined: %v", key)
		}
	}
	return nil
}

// String returns the properties sorted by key
func (p Properties) String() string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%v=%v", key, p[key]))
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

// Context describes the execution environment of a single invocation
type Context struct {
	// LogStreamName is the name of the log stream of the function instance.
	// It is used as a physical resource id of last resort
	LogStreamName string
	// InvocationID identifies the invocation in the execution platform
	InvocationID string
}
