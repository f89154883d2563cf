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

package main

import (
	stdlog "log"
	"os"

	"github.com/gravitational/gamefleet/tool/common"
	"github.com/gravitational/gamefleet/tool/fleetctl/cli"

	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

func main() {
	stdlog.SetOutput(log.StandardLogger().Writer())
	app := kingpin.New("fleetctl", "Tool for planning game server fleet deployments and running lifecycle handlers locally.")
	if err := run(app); err != nil {
		log.WithError(err).Debug("Command failed.")
		common.PrintError(err)
		os.Exit(255)
	}
}

func run(app *kingpin.Application) error {
	fleetctl := cli.RegisterCommands(app)
	return common.ProcessRunError(cli.Run(fleetctl))
}
