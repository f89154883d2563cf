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

package common

import (
	"os"

	"github.com/gravitational/trace"
)

// ProcessRunError looks at the error that happened during a CLI command
// execution and converts it to a user-friendly format
func ProcessRunError(runErr error) error {
	if runErr == nil {
		return nil
	}
	switch err := trace.Unwrap(runErr).(type) {
	case *os.PathError:
		if os.IsNotExist(err) {
			return trace.NotFound("file %v does not exist", err.Path)
		}
	}
	if trace.IsAccessDenied(runErr) {
		return trace.AccessDenied("%v: check that AWS credentials are configured "+
			"and allow the operation", trace.UserMessage(runErr))
	}
	return runErr
}
