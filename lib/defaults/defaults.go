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

package defaults

import (
	"time"
)

const (
	// DataDevice is the device path the persistent game data volume
	// is attached at on every game server instance
	DataDevice = "/dev/sdm"

	// Qualifier is the default application qualifier used in stack names and tags
	Qualifier = "mcservers"

	// MCRconPasswordParameter is the default SSM parameter with the RCON password
	MCRconPasswordParameter = "/minecraft/mcrcon/password"

	// EnvFile is the default path of the file with environment variables
	EnvFile = ".env"

	// InstanceStopTimeout is the maximum amount of time to wait for
	// a single instance to stop
	InstanceStopTimeout = 90 * time.Second

	// SnapshotCompleteTimeout is the maximum amount of time to wait for
	// the snapshots of a backup to complete
	SnapshotCompleteTimeout = 2 * time.Minute

	// VolumeAvailableTimeout is the maximum amount of time to wait for a
	// detached volume to become available
	VolumeAvailableTimeout = 2 * time.Minute

	// ResponseTimeout is the maximum amount of time to deliver a
	// completion response to the orchestrator
	ResponseTimeout = 30 * time.Second

	// DialTimeout is the default TCP dial timeout
	DialTimeout = 30 * time.Second

	// ConnectionIdleTimeout is the amount of time an idle HTTP connection is kept open
	ConnectionIdleTimeout = 2 * time.Minute

	// HandlerTimeout is the execution budget configured for the handler functions.
	// The waits of a single invocation plus ResponseTimeout must fit into it
	HandlerTimeout = 5 * time.Minute

	// PaperMCURL is the base URL of the PaperMC downloads API
	PaperMCURL = "https://papermc.io/api"

	// PaperMCAPIVersion is the version of the PaperMC downloads API
	PaperMCAPIVersion = "v2"

	// PaperMCProject is the PaperMC project to download server builds for
	PaperMCProject = "paper"

	// PaperMCRequestTimeout is the timeout of a single PaperMC API request
	PaperMCRequestTimeout = 30 * time.Second

	// ServerDefinitionScheme is the only supported server definition source scheme
	ServerDefinitionScheme = "file"

	// NetworkComponent is the name of the network stack component
	NetworkComponent = "network"

	// HostsComponent is the name of the game server hosts stack component
	HostsComponent = "hosts"
)
