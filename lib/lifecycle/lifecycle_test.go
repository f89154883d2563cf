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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gravitational/gamefleet/lib/defaults"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
	"gopkg.in/check.v1"
)

func TestLifecycle(t *testing.T) { check.TestingT(t) }

type LifecycleSuite struct{}

var _ = check.Suite(&LifecycleSuite{})

func (s *LifecycleSuite) TestParseRequestType(c *check.C) {
	for _, requestType := range RequestTypes {
		parsed, err := ParseRequestType(string(requestType))
		c.Assert(err, check.IsNil)
		c.Assert(parsed, check.Equals, requestType)
	}
	for _, value := range []string{"", "create", "Replace"} {
		_, err := ParseRequestType(value)
		c.Assert(trace.IsBadParameter(err), check.Equals, true, check.Commentf(value))
	}
}

func (s *LifecycleSuite) TestFromCloudFormation(c *check.C) {
	event := FromCloudFormation(cfn.Event{
		RequestType:        "Update",
		RequestID:          "request-1",
		StackID:            "stack-1",
		LogicalResourceID:  "OnUpdates",
		PhysicalResourceID: "backups-onUpdate-vpc-1",
		ResponseURL:        "https://example.com/response",
		ResourceProperties: map[string]interface{}{
			"OnEvent":   "Update",
			"VpcId":     "vpc-1",
			"Timestamp": float64(1620000000000),
			"Empty":     nil,
		},
	})
	c.Assert(event, check.DeepEquals, Event{
		RequestType:        RequestUpdate,
		RequestID:          "request-1",
		StackID:            "stack-1",
		LogicalResourceID:  "OnUpdates",
		PhysicalResourceID: "backups-onUpdate-vpc-1",
		ResponseURL:        "https://example.com/response",
		ResourceProperties: Properties{
			"OnEvent":   "Update",
			"VpcId":     "vpc-1",
			"Timestamp": "1620000000000",
		},
	})
}

func (s *LifecycleSuite) TestRequireProperties(c *check.C) {
	props := Properties{"VpcId": "vpc-1", "OnEvent": ""}
	c.Assert(props.Require("VpcId"), check.IsNil)
	err := props.Require("VpcId", "OnEvent")
	c.Assert(trace.IsBadParameter(err), check.Equals, true)
	c.Assert(trace.UserMessage(err), check.Equals, "required resource property not defined: OnEvent")
}

func (s *LifecycleSuite) TestPhysicalResourceID(c *check.C) {
	newID := func() string { return "new-id" }
	ctx := Context{LogStreamName: "2021/05/01/[$LATEST]abcdef"}
	var testCases = []struct {
		event    Event
		expected string
		comment  string
	}{
		{
			event:    Event{RequestType: RequestCreate},
			expected: "new-id",
			comment:  "create synthesizes a new id",
		},
		{
			event:    Event{RequestType: RequestUpdate, PhysicalResourceID: "old-id"},
			expected: "old-id",
			comment:  "update echoes the existing id",
		},
		{
			event:    Event{RequestType: RequestDelete, PhysicalResourceID: "old-id"},
			expected: "old-id",
			comment:  "delete echoes the existing id",
		},
		{
			event:    Event{RequestType: RequestDelete},
			expected: ctx.LogStreamName,
			comment:  "missing id falls back to the log stream",
		},
	}
	for _, tc := range testCases {
		c.Assert(PhysicalResourceID(tc.event, ctx, newID), check.Equals, tc.expected, check.Commentf(tc.comment))
	}
}

func (s *LifecycleSuite) TestNewResponse(c *check.C) {
	event := Event{
		RequestType:       RequestDelete,
		RequestID:         "request-1",
		StackID:           "stack-1",
		LogicalResourceID: "Attachment",
	}
	c.Assert(NewResponse(event, "id-1", nil), check.DeepEquals, Response{
		Status:             StatusSuccess,
		RequestID:          "request-1",
		StackID:            "stack-1",
		LogicalResourceID:  "Attachment",
		PhysicalResourceID: "id-1",
	})
	response := NewResponse(event, "id-1", trace.NotFound("volume vol-1 not found"))
	c.Assert(response.Status, check.Equals, StatusFailed)
	c.Assert(response.Reason, check.Equals, "volume vol-1 not found")
}

func (s *LifecycleSuite) TestEmitterSendsPUT(c *check.C) {
	requestsC := make(chan capturedRequest, 1)
	server := httptest.NewServer(captureHandler(requestsC, http.StatusOK))
	defer server.Close()

	event := Event{ResponseURL: server.URL + "/cloudformation-custom-resource-response?X-Amz-Signature=abc"}
	response := Response{
		Status:             StatusFailed,
		Reason:             "instance i-1 not found",
		RequestID:          "request-1",
		StackID:            "stack-1",
		LogicalResourceID:  "OnUpdates",
		PhysicalResourceID: "backups-onUpdate-vpc-1",
	}
	err := NewEmitter(nil).Send(context.TODO(), event, response)
	c.Assert(err, check.IsNil)

	req := <-requestsC
	c.Assert(req.method, check.Equals, http.MethodPut)
	c.Assert(req.query, check.Equals, "X-Amz-Signature=abc")
	c.Assert(req.contentType, check.DeepEquals, []string{""})
	c.Assert(req.contentLength, check.Equals, int64(len(req.body)))
	var received Response
	c.Assert(json.Unmarshal(req.body, &received), check.IsNil)
	c.Assert(received, check.DeepEquals, response)
}

func (s *LifecycleSuite) TestEmitterIgnoresStatusCode(c *check.C) {
	requestsC := make(chan capturedRequest, 1)
	server := httptest.NewServer(captureHandler(requestsC, http.StatusForbidden))
	defer server.Close()

	err := NewEmitter(nil).Send(context.TODO(), Event{ResponseURL: server.URL}, Response{Status: StatusSuccess})
	c.Assert(err, check.IsNil)
	c.Assert(len(requestsC), check.Equals, 1)
}

func (s *LifecycleSuite) TestEmitterTransportError(c *check.C) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := NewEmitter(nil).Send(context.TODO(), Event{ResponseURL: url}, Response{Status: StatusSuccess})
	c.Assert(trace.IsConnectionProblem(err), check.Equals, true)
}

func (s *LifecycleSuite) TestRunReportsOutcome(c *check.C) {
	event := Event{
		RequestType:        RequestUpdate,
		RequestID:          "request-1",
		PhysicalResourceID: "id-1",
		ResponseURL:        "https://example.com",
	}
	var testCases = []struct {
		event   Event
		fn      func(context.Context) error
		status  Status
		reason  string
		called  bool
		comment string
	}{
		{
			event:   event,
			fn:      func(context.Context) error { return nil },
			status:  StatusSuccess,
			called:  true,
			comment: "success",
		},
		{
			event:   event,
			fn:      func(context.Context) error { return trace.BadParameter("bad thing") },
			status:  StatusFailed,
			reason:  "bad thing",
			called:  true,
			comment: "handler error",
		},
		{
			event:   event,
			fn:      func(context.Context) error { panic(errors.New("boom")) },
			status:  StatusFailed,
			reason:  "boom",
			called:  true,
			comment: "handler panic",
		},
		{
			event:   withRequestType(event, "Replace"),
			fn:      func(context.Context) error { return nil },
			status:  StatusFailed,
			reason:  `unsupported request type "Replace", expected one of [Create Update Delete]`,
			comment: "invalid request type",
		},
	}
	for _, tc := range testCases {
		responder := &recordingResponder{}
		called := false
		err := Invocation{
			Event:     tc.event,
			Responder: responder,
		}.Run(context.TODO(), func(ctx context.Context) error {
			called = true
			return tc.fn(ctx)
		})
		comment := check.Commentf(tc.comment)
		c.Assert(err, check.IsNil, comment)
		c.Assert(called, check.Equals, tc.called, comment)
		c.Assert(responder.responses, check.HasLen, 1, comment)
		c.Assert(responder.responses[0].Status, check.Equals, tc.status, comment)
		c.Assert(responder.responses[0].Reason, check.Equals, tc.reason, comment)
		c.Assert(responder.responses[0].PhysicalResourceID, check.Equals, "id-1", comment)
	}
}

func (s *LifecycleSuite) TestRunReturnsDeliveryError(c *check.C) {
	responder := &recordingResponder{err: trace.ConnectionProblem(nil, "connection refused")}
	err := Invocation{
		Event: Event{
			RequestType: RequestCreate,
			ResponseURL: "https://example.com",
		},
		Responder:     responder,
		NewPhysicalID: func() string { return "new-id" },
	}.Run(context.TODO(), func(context.Context) error { return nil })
	c.Assert(trace.IsConnectionProblem(err), check.Equals, true)
	c.Assert(responder.responses, check.HasLen, 1)
	c.Assert(responder.responses[0].PhysicalResourceID, check.Equals, "new-id")
}

func (s *LifecycleSuite) TestRunLogsStackTrace(c *check.C) {
	var out bytes.Buffer
	logger := log.New()
	logger.SetOutput(&out)
	logger.SetLevel(log.InfoLevel)
	err := Invocation{
		Event: Event{
			RequestType: RequestUpdate,
			ResponseURL: "https://example.com",
		},
		Responder:   &recordingResponder{},
		FieldLogger: logger,
	}.Run(context.TODO(), func(context.Context) error {
		return trace.NotFound("volume not found")
	})
	c.Assert(err, check.IsNil)
	c.Assert(out.String(), check.Matches, `(?s).*level=warning.*volume not found.*lifecycle_test\.go.*`)
}

func (s *LifecycleSuite) TestRunReservesResponseBudget(c *check.C) {
	deadline := time.Now().Add(time.Hour)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	var handlerDeadline time.Time
	var hasDeadline bool
	err := Invocation{
		Event: Event{
			RequestType: RequestUpdate,
			ResponseURL: "https://example.com",
		},
		Responder: &recordingResponder{},
	}.Run(ctx, func(ctx context.Context) error {
		handlerDeadline, hasDeadline = ctx.Deadline()
		return nil
	})
	c.Assert(err, check.IsNil)
	c.Assert(hasDeadline, check.Equals, true)
	c.Assert(handlerDeadline.Equal(deadline.Add(-defaults.ResponseTimeout)), check.Equals, true)
}

func (s *LifecycleSuite) TestRunReportsExpiredBudget(c *check.C) {
	ctx, cancel := context.WithTimeout(context.Background(), defaults.ResponseTimeout/2)
	defer cancel()
	responder := &recordingResponder{}
	err := Invocation{
		Event: Event{
			RequestType: RequestUpdate,
			ResponseURL: "https://example.com",
		},
		Responder: responder,
	}.Run(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return trace.ConnectionProblem(ctx.Err(), "waiter canceled")
	})
	c.Assert(err, check.IsNil)
	c.Assert(responder.responses, check.HasLen, 1)
	c.Assert(responder.responses[0].Status, check.Equals, StatusFailed)
}

func (s *LifecycleSuite) TestWaitsFitHandlerTimeout(c *check.C) {
	backup := defaults.InstanceStopTimeout + defaults.SnapshotCompleteTimeout + defaults.ResponseTimeout
	c.Assert(backup < defaults.HandlerTimeout, check.Equals, true)
	attach := defaults.VolumeAvailableTimeout + defaults.ResponseTimeout
	c.Assert(attach < defaults.HandlerTimeout, check.Equals, true)
}

func withRequestType(event Event, requestType RequestType) Event {
	event.RequestType = requestType
	return event
}

type recordingResponder struct {
	responses []Response
	err       error
}

func (r *recordingResponder) Send(ctx context.Context, event Event, response Response) error {
	r.responses = append(r.responses, response)
	return r.err
}

type capturedRequest struct {
	method        string
	query         string
	contentType   []string
	contentLength int64
	body          []byte
}

func captureHandler(requestsC chan<- capturedRequest, code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := ioutil.ReadAll(r.Body)
		requestsC <- capturedRequest{
			method:        r.Method,
			query:         r.URL.RawQuery,
			contentType:   r.Header["Content-Type"],
			contentLength: r.ContentLength,
			body:          body,
		}
		w.WriteHeader(code)
	}
}

func (s *LifecycleSuite) TestLambdaHandler(c *check.C) {
	var got Event
	handler := LambdaHandler(func(ctx context.Context, event Event, lctx Context) error {
		got = event
		return nil
	})
	err := handler(context.TODO(), cfn.Event{
		RequestType:       "Delete",
		RequestID:         "request-1",
		LogicalResourceID: "OnDeletes",
		ResponseURL:       "https://example.com/response",
		ResourceProperties: map[string]interface{}{
			"OnEvent": "Delete",
		},
	})
	c.Assert(err, check.IsNil)
	c.Assert(got.RequestType, check.Equals, RequestDelete)
	c.Assert(got.ResourceProperties.Get("OnEvent"), check.Equals, "Delete")
}
