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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/gravitational/gamefleet/lib/config"
	"github.com/gravitational/gamefleet/lib/constants"
	"github.com/gravitational/gamefleet/lib/defaults"
	"github.com/gravitational/gamefleet/lib/deployment"
	"github.com/gravitational/gamefleet/lib/papermc"

	"github.com/ghodss/yaml"
	"github.com/gravitational/trace"
	"github.com/olekukonko/tablewriter"
)

type planParams struct {
	envFile  string
	format   constants.Format
	resolve  bool
	insecure bool
}

func plan(ctx context.Context, p planParams) error {
	cfg, err := config.FromEnvironment(p.envFile)
	if err != nil {
		return trace.Wrap(err)
	}
	dir, err := cfg.DefinitionsDir()
	if err != nil {
		return trace.Wrap(err)
	}
	definitions, err := deployment.LoadDefinitions(dir)
	if err != nil {
		return trace.Wrap(err)
	}
	var urls map[string]string
	if p.resolve {
		client, err := papermc.NewClient(papermc.Config{
			HTTPClient: httpClient(p.insecure, defaults.PaperMCRequestTimeout),
		})
		if err != nil {
			return trace.Wrap(err)
		}
		urls, err = resolveDownloadURLs(ctx, client, definitions)
		if err != nil {
			return trace.Wrap(err)
		}
	}
	deployPlan, err := deployment.NewPlan(deployment.PlanConfig{
		Config:       *cfg,
		Definitions:  definitions,
		DownloadURLs: urls,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	if err := deployPlan.Validate(); err != nil {
		return trace.Wrap(err)
	}
	order, err := deployPlan.Order()
	if err != nil {
		return trace.Wrap(err)
	}
	return printPlan(os.Stdout, order, p.format)
}

// resolveDownloadURLs resolves download URLs of servers that pin a version
func resolveDownloadURLs(ctx context.Context, client *papermc.Client, definitions []deployment.Definition) (map[string]string, error) {
	urls := make(map[string]string)
	for _, definition := range definitions {
		if definition.PaperMC == nil || definition.PaperMC.Version == "" {
			continue
		}
		build, err := client.Resolve(ctx, definition.PaperMC.Version, definition.PaperMC.Build)
		if err != nil {
			return nil, trace.Wrap(err, "failed to resolve server build of %v", definition.Name)
		}
		log.Debugf("Resolved %v build %v of %v: %v.", definition.Name, build.Build, build.Version, build.URL)
		urls[definition.Name] = build.URL
	}
	return urls, nil
}

func printPlan(w io.Writer, order []deployment.Resource, format constants.Format) error {
	switch format {
	case constants.EncodingText:
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"#", "Resource", "Type", "Depends On"})
		table.SetAutoWrapText(false)
		var data [][]string
		for i, r := range order {
			data = append(data, []string{
				fmt.Sprint(i + 1),
				r.ID,
				r.Type,
				strings.Join(sorted(r.DependsOn), ", "),
			})
		}
		table.AppendBulk(data)
		table.Render()
	case constants.EncodingJSON:
		bytes, err := json.MarshalIndent(order, "", "    ")
		if err != nil {
			return trace.Wrap(err)
		}
		fmt.Fprintln(w, string(bytes))
	case constants.EncodingYAML:
		bytes, err := yaml.Marshal(order)
		if err != nil {
			return trace.Wrap(err)
		}
		fmt.Fprint(w, string(bytes))
	default:
		return trace.BadParameter("unknown output format %q, supported are: %v",
			format, constants.OutputFormats)
	}
	return nil
}

type paperURLParams struct {
	version  string
	build    int
	url      string
	insecure bool
}

func paperURL(ctx context.Context, p paperURLParams) error {
	client, err := papermc.NewClient(papermc.Config{
		URL:        p.url,
		HTTPClient: httpClient(p.insecure, defaults.PaperMCRequestTimeout),
	})
	if err != nil {
		return trace.Wrap(err)
	}
	build, err := client.Resolve(ctx, p.version, p.build)
	if err != nil {
		return trace.Wrap(err)
	}
	fmt.Println(build.URL)
	return nil
}

func sorted(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
