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

// Command game-backups is the function that stops the game servers of a VPC
// and snapshots their data volumes on the lifecycle event it is armed for.
package main

import (
	"os"

	"github.com/gravitational/gamefleet/lib/backup"
	gaws "github.com/gravitational/gamefleet/lib/cloudprovider/aws"
	"github.com/gravitational/gamefleet/lib/config"
	"github.com/gravitational/gamefleet/lib/lifecycle"
	"github.com/gravitational/gamefleet/lib/utils"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

func main() {
	handler, err := newHandler()
	if err != nil {
		log.WithError(err).Error("Failed to initialize handler.")
		log.Debug(trace.DebugReport(err))
		os.Exit(255)
	}
	lambda.Start(lifecycle.LambdaHandler(handler.Handle))
}

func newHandler() (*backup.Handler, error) {
	cfg, err := config.HandlerFromEnvironment(os.LookupEnv)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	utils.InitLogger(cfg.LogLevel, true)
	client, err := gaws.NewEC2(cfg.Region)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return backup.New(backup.Config{
		Cloud:      client,
		Responder:  lifecycle.NewEmitter(nil),
		DataDevice: cfg.DataDevice,
	})
}
