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
	"github.com/gravitational/gamefleet/lib/constants"

	"gopkg.in/alecthomas/kingpin.v2"
)

// Application represents the command-line "fleetctl" application and contains
// definitions of all its flags, arguments and subcommands
type Application struct {
	*kingpin.Application
	// Debug allows to run the command in debug mode
	Debug *bool
	// Insecure turns off TLS hostname validation
	Insecure *bool
	// EnvFile is the file with environment variables
	EnvFile *string
	// VersionCmd outputs the binary version
	VersionCmd VersionCmd
	// InvokeCmd runs a lifecycle handler locally
	InvokeCmd InvokeCmd
	// PlanCmd prints the deployment plan
	PlanCmd PlanCmd
	// PaperURLCmd resolves a server build download URL
	PaperURLCmd PaperURLCmd
}

// VersionCmd outputs the binary version
type VersionCmd struct {
	*kingpin.CmdClause
	// Output is output format
	Output *constants.Format
}

// InvokeCmd runs a lifecycle handler against the configured account
type InvokeCmd struct {
	*kingpin.CmdClause
	// Handler is the name of the handler to run
	Handler *string
	// EventFile is the file with the lifecycle event
	EventFile *string
	// ResponseURL overrides the response URL of the event.
	// The response is printed if the event has none
	ResponseURL *string
	// Region is the AWS region
	Region *string
}

// PlanCmd validates and prints the deployment plan
type PlanCmd struct {
	*kingpin.CmdClause
	// Output is output format
	Output *constants.Format
	// Resolve resolves download URLs of pinned server builds
	Resolve *bool
}

// PaperURLCmd resolves the download URL of a PaperMC server build
type PaperURLCmd struct {
	*kingpin.CmdClause
	// Version is the game version
	Version *string
	// Build is the build number, latest if 0
	Build *int
	// URL is the PaperMC API URL
	URL *string
}
