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

package testutils

import (
	"context"
	"sync"

	"github.com/gravitational/gamefleet/lib/lifecycle"
)

// Responder records the completion responses instead of delivering them
type Responder struct {
	mu        sync.Mutex
	responses []lifecycle.Response
	// Err is returned from every Send
	Err error
}

// Send records the response
func (r *Responder) Send(ctx context.Context, event lifecycle.Event, response lifecycle.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, response)
	return r.Err
}

// Responses returns all recorded responses
func (r *Responder) Responses() []lifecycle.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]lifecycle.Response(nil), r.responses...)
}
