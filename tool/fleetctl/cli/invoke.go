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

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"time"

	"github.com/gravitational/gamefleet/lib/backup"
	gaws "github.com/gravitational/gamefleet/lib/cloudprovider/aws"
	"github.com/gravitational/gamefleet/lib/constants"
	"github.com/gravitational/gamefleet/lib/defaults"
	"github.com/gravitational/gamefleet/lib/httplib"
	"github.com/gravitational/gamefleet/lib/lifecycle"
	"github.com/gravitational/gamefleet/lib/volume"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/ghodss/yaml"
	"github.com/gravitational/trace"
	"github.com/pborman/uuid"
)

type invokeParams struct {
	handler     string
	eventFile   string
	responseURL string
	region      string
	insecure    bool
}

func invoke(ctx context.Context, p invokeParams) error {
	event, err := readEvent(p.eventFile)
	if err != nil {
		return trace.Wrap(err)
	}
	if p.responseURL != "" {
		event.ResponseURL = p.responseURL
	}
	responder := &outcomeResponder{}
	if event.ResponseURL == "" {
		event.ResponseURL = stdoutURL
		responder.Responder = &printResponder{w: os.Stdout}
	} else {
		responder.Responder = lifecycle.NewEmitter(httpClient(p.insecure, defaults.ResponseTimeout))
	}
	prepareEvent(event)

	client, err := gaws.NewEC2(p.region)
	if err != nil {
		return trace.Wrap(err)
	}
	lctx := lifecycle.Context{
		LogStreamName: fmt.Sprintf("fleetctl/%v", event.RequestID),
		InvocationID:  uuid.New(),
	}
	var handle lifecycle.HandlerFunc
	switch p.handler {
	case constants.ComponentBackups:
		handler, err := backup.New(backup.Config{Cloud: client, Responder: responder})
		if err != nil {
			return trace.Wrap(err)
		}
		handle = handler.Handle
	case constants.ComponentVolume:
		attacher, err := volume.New(volume.Config{Cloud: client, Responder: responder})
		if err != nil {
			return trace.Wrap(err)
		}
		handle = attacher.Handle
	default:
		return trace.BadParameter("unknown handler %q, expected one of %v", p.handler, handlers)
	}
	if err := handle(ctx, *event, lctx); err != nil {
		return trace.Wrap(err)
	}
	return responder.outcome()
}

// readEvent reads the lifecycle event from the file in JSON or YAML format
func readEvent(path string) (*lifecycle.Event, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	var req cfn.Event
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, trace.BadParameter("failed to parse event from %v: %v", path, err)
	}
	event := lifecycle.FromCloudFormation(req)
	return &event, nil
}

// prepareEvent fills in the identifiers a hand-written event usually lacks
func prepareEvent(event *lifecycle.Event) {
	if event.RequestID == "" {
		event.RequestID = uuid.New()
	}
	if event.StackID == "" {
		event.StackID = "fleetctl"
	}
	if event.LogicalResourceID == "" {
		event.LogicalResourceID = "fleetctl"
	}
}

// outcomeResponder remembers the last delivered response
type outcomeResponder struct {
	lifecycle.Responder
	last *lifecycle.Response
}

func (r *outcomeResponder) Send(ctx context.Context, event lifecycle.Event, response lifecycle.Response) error {
	r.last = &response
	return r.Responder.Send(ctx, event, response)
}

// outcome converts the last response into an error if it reports a failure
func (r *outcomeResponder) outcome() error {
	switch {
	case r.last == nil:
		return trace.NotFound("handler sent no response")
	case r.last.Status == lifecycle.StatusFailed:
		return trace.BadParameter("handler failed: %v", r.last.Reason)
	}
	return nil
}

// printResponder writes responses to the console instead of delivering them
type printResponder struct {
	w io.Writer
}

func (r *printResponder) Send(ctx context.Context, event lifecycle.Event, response lifecycle.Response) error {
	bytes, err := json.MarshalIndent(response, "", "    ")
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = fmt.Fprintln(r.w, string(bytes))
	return trace.Wrap(err)
}

func httpClient(insecure bool, timeout time.Duration) *http.Client {
	options := []httplib.ClientOption{httplib.WithTimeout(timeout)}
	if insecure {
		options = append(options, httplib.WithInsecure())
	}
	return httplib.NewClient(options...)
}

// stdoutURL is the placeholder response URL of events answered on the console
const stdoutURL = "stdout:"
