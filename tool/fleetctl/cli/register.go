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
	"fmt"

	"github.com/gravitational/gamefleet/lib/constants"
	"github.com/gravitational/gamefleet/lib/defaults"
	"github.com/gravitational/gamefleet/tool/common"

	"gopkg.in/alecthomas/kingpin.v2"
)

// RegisterCommands registers all fleetctl tool flags, arguments and subcommands
func RegisterCommands(app *kingpin.Application) Application {
	fleetctl := Application{
		Application: app,
	}

	fleetctl.Debug = app.Flag("debug", "Enable debug mode.").Bool()
	fleetctl.Insecure = app.Flag("insecure", "Skip TLS verification when making HTTP requests.").Default("false").Bool()
	fleetctl.EnvFile = app.Flag("env-file", "File with environment variables. Variables set in the environment take precedence.").Default(defaults.EnvFile).String()

	fleetctl.VersionCmd.CmdClause = app.Command("version", "Print version information and exit.")
	fleetctl.VersionCmd.Output = common.Format(fleetctl.VersionCmd.Flag("output", "Output format: text or json.").Short('o').Default(string(constants.EncodingText)))

	fleetctl.InvokeCmd.CmdClause = app.Command("invoke", "Run a lifecycle handler locally against the configured AWS account.")
	fleetctl.InvokeCmd.Handler = fleetctl.InvokeCmd.Arg("handler", fmt.Sprintf("Handler to run: %v.", handlers)).Required().Enum(handlers...)
	fleetctl.InvokeCmd.EventFile = fleetctl.InvokeCmd.Flag("event", "File with the lifecycle event in JSON or YAML format.").Required().String()
	fleetctl.InvokeCmd.ResponseURL = fleetctl.InvokeCmd.Flag("response-url", "Deliver the completion response to this URL instead of the one in the event.").String()
	fleetctl.InvokeCmd.Region = fleetctl.InvokeCmd.Flag("region", "AWS region.").Envar("AWS_REGION").String()

	fleetctl.PlanCmd.CmdClause = app.Command("plan", "Validate the deployment plan and print resources in creation order.")
	fleetctl.PlanCmd.Output = common.Format(fleetctl.PlanCmd.Flag("output", fmt.Sprintf("Output format: %v.", constants.OutputFormats)).Short('o').Default(string(constants.EncodingText)))
	fleetctl.PlanCmd.Resolve = fleetctl.PlanCmd.Flag("resolve", "Resolve download URLs of the pinned server builds.").Bool()

	fleetctl.PaperURLCmd.CmdClause = app.Command("paper-url", "Resolve the download URL of a PaperMC server build.")
	fleetctl.PaperURLCmd.Version = fleetctl.PaperURLCmd.Arg("version", "Game version, e.g. 1.17.1.").Required().String()
	fleetctl.PaperURLCmd.Build = fleetctl.PaperURLCmd.Flag("build", "Build number. Defaults to the latest build.").Int()
	fleetctl.PaperURLCmd.URL = fleetctl.PaperURLCmd.Flag("url", "PaperMC API URL.").Default(defaults.PaperMCURL).Hidden().String()

	return fleetctl
}

// handlers lists the names of handlers that can be invoked
var handlers = []string{constants.ComponentBackups, constants.ComponentVolume}
