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

package utils

import (
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/gravitational/trace"
)

// ToError either returns error as is, or converts it to Errorf
// in case of unknown object
func ToError(i interface{}) error {
	err, ok := i.(error)
	if ok {
		return err
	}
	return trace.Errorf("unrecognized error: %#v", i)
}

// ConvertEC2Error converts errors returned by the EC2 API
// to trace-compatible errors. The original error message is preserved
// so it can be reported back to the orchestrator verbatim.
func ConvertEC2Error(err error) error {
	if err == nil {
		return nil
	}
	awsErr, ok := trace.Unwrap(err).(awserr.Error)
	if !ok {
		return trace.Wrap(err)
	}
	message := awsErr.Error()
	switch awsErr.Code() {
	case "InvalidInstanceID.NotFound",
		"InvalidVolume.NotFound",
		"InvalidSnapshot.NotFound",
		"InvalidVpcID.NotFound",
		"InvalidAttachment.NotFound":
		return trace.NotFound("%v", message)
	case "UnauthorizedOperation", "AuthFailure":
		return trace.AccessDenied("%v", message)
	case "IncorrectState", "IncorrectInstanceState", "VolumeInUse",
		request.WaiterResourceNotReadyErrorCode:
		return trace.CompareFailed("%v", message)
	case "RequestLimitExceeded", "SnapshotLimitExceeded":
		return trace.LimitExceeded("%v", message)
	case request.CanceledErrorCode, request.ErrCodeResponseTimeout, "RequestError":
		return trace.ConnectionProblem(awsErr, "%v", message)
	default:
		return trace.BadParameter("%v", message)
	}
}
