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

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/lambdacontext"
)

// HandlerFunc handles a single lifecycle event
type HandlerFunc func(context.Context, Event, Context) error

// LambdaHandler adapts the handler to the function runtime signature
func LambdaHandler(handler HandlerFunc) func(context.Context, cfn.Event) error {
	return func(ctx context.Context, req cfn.Event) error {
		return handler(ctx, FromCloudFormation(req), ContextFromLambda(ctx))
	}
}

// ContextFromLambda returns the execution context of the current
// function invocation
func ContextFromLambda(ctx context.Context) Context {
	lctx := Context{LogStreamName: lambdacontext.LogStreamName}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		lctx.InvocationID = lc.AwsRequestID
	}
	return lctx
}
