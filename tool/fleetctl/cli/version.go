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
	"encoding/json"
	"fmt"
	"io"

	"github.com/gravitational/gamefleet/lib/constants"

	"github.com/gravitational/trace"
)

var (
	// Version is the binary version, set at link time
	Version = "dev"
	// GitCommit is the commit the binary is built from, set at link time
	GitCommit = "unknown"
)

type versionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

func printVersion(w io.Writer, format constants.Format) error {
	ver := versionInfo{Version: Version, GitCommit: GitCommit}
	switch format {
	case constants.EncodingText:
		fmt.Fprintf(w, "Version:\t%v\nGit Commit:\t%v\n", ver.Version, ver.GitCommit)
	case constants.EncodingJSON:
		bytes, err := json.Marshal(ver)
		if err != nil {
			return trace.Wrap(err)
		}
		fmt.Fprintln(w, string(bytes))
	default:
		return trace.BadParameter("unsupported output format %q, supported are: text, json", format)
	}
	return nil
}
