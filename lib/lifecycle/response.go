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

package lifecycle

import (
	"github.com/gravitational/trace"
)

// Status is the outcome of handling a lifecycle event
type Status string

const (
	// StatusSuccess reports that the event has been handled
	StatusSuccess Status = "SUCCESS"
	// StatusFailed reports that handling the event has failed
	StatusFailed Status = "FAILED"
)

// Response is the completion response sent back to the orchestrator
type Response struct {
	// Status is the outcome of the invocation
	Status Status `json:"Status"`
	// Reason explains the failure. Only set for failed invocations
	Reason string `json:"Reason,omitempty"`
	// RequestID echoes the request id of the event
	RequestID string `json:"RequestId"`
	// StackID echoes the stack id of the event
	StackID string `json:"StackId"`
	// LogicalResourceID echoes the logical resource id of the event
	LogicalResourceID string `json:"LogicalResourceId"`
	// PhysicalResourceID identifies the resource across its lifetime
	PhysicalResourceID string `json:"PhysicalResourceId"`
}

// NewResponse creates the completion response for the event.
// A nil error produces a successful response, otherwise the
// response is failed with the error message as the reason
func NewResponse(event Event, physicalID string, err error) Response {
	response := Response{
		Status:             StatusSuccess,
		RequestID:          event.RequestID,
		StackID:            event.StackID,
		LogicalResourceID:  event.LogicalResourceID,
		PhysicalResourceID: physicalID,
	}
	if err != nil {
		response.Status = StatusFailed
		response.Reason = failureReason(err)
	}
	return response
}

// PhysicalResourceID returns the physical resource id to report for the event.
//
// A new id is synthesized with newID for Create requests. For any other
// request the id assigned on creation is echoed back unchanged so the
// orchestrator recognizes the same resource, falling back to the log stream
// name of the invocation if the event does not carry one.
func PhysicalResourceID(event Event, ctx Context, newID func() string) string {
	if event.RequestType == RequestCreate && newID != nil {
		return newID()
	}
	if event.PhysicalResourceID != "" {
		return event.PhysicalResourceID
	}
	return ctx.LogStreamName
}

func failureReason(err error) string {
	if reason := trace.UserMessage(err); reason != "" {
		return reason
	}
	if reason := err.Error(); reason != "" {
		return reason
	}
	return "unknown error"
}
