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
	"context"

	"github.com/gravitational/gamefleet/lib/constants"
	"github.com/gravitational/gamefleet/lib/defaults"
	"github.com/gravitational/gamefleet/lib/utils"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// Invocation is a single handler invocation for a lifecycle event
type Invocation struct {
	// Event is the event being handled
	Event Event
	// Context describes the execution environment
	Context Context
	// Responder delivers the completion response
	Responder Responder
	// NewPhysicalID synthesizes the physical resource id on Create
	NewPhysicalID func() string
	// FieldLogger is the invocation logger
	log.FieldLogger
}

// Run executes fn and reports its outcome to the orchestrator.
//
// Exactly one response is sent per call: failed if the event is invalid,
// fn returns an error or panics; successful otherwise. The error returned
// is only ever a response delivery error.
func (r Invocation) Run(ctx context.Context, fn func(context.Context) error) error {
	logger := r.FieldLogger
	if logger == nil {
		logger = log.WithField(trace.Component, constants.ComponentLifecycle)
	}
	logger = logger.WithFields(log.Fields{
		constants.FieldRequestID:   r.Event.RequestID,
		constants.FieldRequestType: r.Event.RequestType,
		constants.FieldLogicalID:   r.Event.LogicalResourceID,
	})
	logger.Infof("Received event %v.", r.Event)

	err := r.Event.Check()
	if err == nil {
		handlerCtx, cancel := withResponseBudget(ctx)
		err = safeRun(handlerCtx, fn)
		cancel()
	}
	if err != nil {
		logger.WithError(err).Warnf("Handler failed: %v.", trace.DebugReport(err))
	}

	response := NewResponse(r.Event, PhysicalResourceID(r.Event, r.Context, r.NewPhysicalID), err)
	// The invocation context may be close to its deadline by now,
	// give the response its own budget
	sendCtx, cancel := context.WithTimeout(context.Background(), defaults.ResponseTimeout)
	defer cancel()
	if err := r.Responder.Send(sendCtx, r.Event, response); err != nil {
		logger.WithError(err).Error("Failed to deliver response.")
		return trace.Wrap(err)
	}
	return nil
}

// withResponseBudget returns a context that expires ResponseTimeout
// before the invocation deadline so the response can still be delivered
func withResponseBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline.Add(-defaults.ResponseTimeout))
}

func safeRun(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = trace.Wrap(utils.ToError(r))
		}
	}()
	return trace.Wrap(fn(ctx))
}
