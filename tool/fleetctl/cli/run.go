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
	"os"

	"github.com/gravitational/gamefleet/lib/utils"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField(trace.Component, "cli")

// Run parses CLI arguments and executes an appropriate fleetctl command
func Run(fleetctl Application) error {
	cmd, err := fleetctl.Parse(os.Args[1:])
	if err != nil {
		return trace.Wrap(err)
	}

	trace.SetDebug(*fleetctl.Debug)
	if *fleetctl.Debug {
		utils.InitLogger(logrus.DebugLevel, false)
	} else {
		utils.InitLogger(logrus.WarnLevel, false)
	}
	log.Debugf("Executing: %v.", os.Args)

	ctx := context.Background()
	switch cmd {
	case fleetctl.VersionCmd.FullCommand():
		return printVersion(os.Stdout, *fleetctl.VersionCmd.Output)
	case fleetctl.InvokeCmd.FullCommand():
		return invoke(ctx, invokeParams{
			handler:     *fleetctl.InvokeCmd.Handler,
			eventFile:   *fleetctl.InvokeCmd.EventFile,
			responseURL: *fleetctl.InvokeCmd.ResponseURL,
			region:      *fleetctl.InvokeCmd.Region,
			insecure:    *fleetctl.Insecure,
		})
	case fleetctl.PlanCmd.FullCommand():
		return plan(ctx, planParams{
			envFile:  *fleetctl.EnvFile,
			format:   *fleetctl.PlanCmd.Output,
			resolve:  *fleetctl.PlanCmd.Resolve,
			insecure: *fleetctl.Insecure,
		})
	case fleetctl.PaperURLCmd.FullCommand():
		return paperURL(ctx, paperURLParams{
			version:  *fleetctl.PaperURLCmd.Version,
			build:    *fleetctl.PaperURLCmd.Build,
			url:      *fleetctl.PaperURLCmd.URL,
			insecure: *fleetctl.Insecure,
		})
	}

	return trace.NotFound("unknown command %v", cmd)
}
