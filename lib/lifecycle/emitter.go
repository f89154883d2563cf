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
	"io"
	"io/ioutil"
	"net/http"

	"github.com/gravitational/gamefleet/lib/constants"
	"github.com/gravitational/gamefleet/lib/defaults"
	"github.com/gravitational/gamefleet/lib/httplib"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// Responder delivers completion responses to the orchestrator
type Responder interface {
	// Send delivers the response to the URL of the specified event
	Send(ctx context.Context, event Event, response Response) error
}

// Emitter sends completion responses with a PUT request to the presigned
// response URL of the event.
//
// Implements Responder
type Emitter struct {
	// Client is the HTTP client used to deliver responses
	Client *http.Client
	log.FieldLogger
}

// NewEmitter returns a new emitter using the specified HTTP client.
// A default client is used if client is nil
func NewEmitter(client *http.Client) *Emitter {
	if client == nil {
		client = httplib.NewClient(httplib.WithTimeout(defaults.ResponseTimeout))
	}
	return &Emitter{
		Client:      client,
		FieldLogger: log.WithField(trace.Component, constants.ComponentLifecycle),
	}
}

// Send delivers the response.
//
// The presigned URL is the only credential: no other authentication is
// added and the content type is left empty as the URL signature covers it.
// Any HTTP response counts as a delivery regardless of its status code,
// only transport failures are returned.
func (r *Emitter) Send(ctx context.Context, event Event, response Response) error {
	body, err := json.Marshal(response)
	if err != nil {
		return trace.Wrap(err)
	}
	r.Infof("Response body: %s.", body)
	req, err := http.NewRequest(http.MethodPut, event.ResponseURL, bytes.NewReader(body))
	if err != nil {
		return trace.Wrap(err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "")
	req.ContentLength = int64(len(body))
	resp, err := r.Client.Do(req)
	if err != nil {
		return trace.ConnectionProblem(err, "failed to deliver response to %v", redactURL(req))
	}
	defer resp.Body.Close()
	io.Copy(ioutil.Discard, resp.Body) //nolint:errcheck
	r.WithFields(log.Fields{
		"status_code": resp.StatusCode,
		"status":      resp.Status,
	}).Info("Response delivered.")
	return nil
}

// redactURL strips the query (i.e. the signature) from the request URL
func redactURL(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}
