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
	"os"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// InitLogger configures the standard logger with the specified level.
// Machine-consumed output (e.g. function logs shipped to CloudWatch)
// should set json to get one JSON document per line.
func InitLogger(level log.Level, json bool) {
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	if json {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

// ParseLevel parses the logging level, falling back to info level
// if the value is empty
func ParseLevel(value string) (log.Level, error) {
	if value == "" {
		return log.InfoLevel, nil
	}
	level, err := log.ParseLevel(value)
	if err != nil {
		return log.InfoLevel, trace.BadParameter("invalid log level %q", value)
	}
	return level, nil
}
