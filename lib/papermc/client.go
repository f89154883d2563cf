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

// Package papermc implements a client for the PaperMC downloads API used
// to resolve the server build installed on game server instances.
package papermc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gravitational/gamefleet/lib/constants"
	"github.com/gravitational/gamefleet/lib/defaults"
	"github.com/gravitational/gamefleet/lib/httplib"

	"github.com/gravitational/roundtrip"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// Config is the PaperMC API client configuration
type Config struct {
	// URL is the API base URL
	URL string
	// Project is the PaperMC project, e.g. paper
	Project string
	// HTTPClient is the HTTP client to use
	HTTPClient *http.Client
	// FieldLogger is the client logger
	log.FieldLogger
}

// CheckAndSetDefaults checks and sets default values
func (c *Config) CheckAndSetDefaults() error {
	if c.URL == "" {
		c.URL = defaults.PaperMCURL
	}
	if c.Project == "" {
		c.Project = defaults.PaperMCProject
	}
	if c.HTTPClient == nil {
		c.HTTPClient = httplib.NewClient(httplib.WithTimeout(defaults.PaperMCRequestTimeout))
	}
	if c.FieldLogger == nil {
		c.FieldLogger = log.WithField(trace.Component, constants.ComponentPaperMC)
	}
	return nil
}

// Client is the PaperMC downloads API client
type Client struct {
	Config
	client *roundtrip.Client
}

// NewClient returns a new API client
func NewClient(config Config) (*Client, error) {
	if err := config.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	client, err := roundtrip.NewClient(config.URL, defaults.PaperMCAPIVersion,
		roundtrip.HTTPClient(config.HTTPClient))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Client{Config: config, client: client}, nil
}

// Build is a resolved server build
type Build struct {
	// Version is the game version
	Version string `json:"version"`
	// Build is the build number
	Build int `json:"build"`
	// URL is the download URL of the build
	URL string `json:"url"`
}

// LatestBuild returns the latest build number of the specified version
func (c *Client) LatestBuild(ctx context.Context, version string) (int, error) {
	var info versionInfo
	if err := c.get(ctx, c.versionEndpoint(version), &info); err != nil {
		c.WithError(err).Warnf("Failed to gather builds of version %v.", version)
		return 0, trace.Wrap(err)
	}
	if len(info.Builds) == 0 {
		return 0, trace.NotFound("no builds found for version %v", version)
	}
	return info.Builds[len(info.Builds)-1], nil
}

// DownloadURL returns the URL to download the application of the specified build
func (c *Client) DownloadURL(ctx context.Context, version string, build int) (string, error) {
	var info buildInfo
	if err := c.get(ctx, c.buildEndpoint(version, build), &info); err != nil {
		c.WithError(err).Warnf("Failed to get build %v of version %v.", build, version)
		return "", trace.Wrap(err)
	}
	name := info.Downloads.Application.Name
	if name == "" {
		return "", trace.NotFound("build %v of version %v has no application download", build, version)
	}
	return c.buildEndpoint(version, build, "downloads", name), nil
}

// Resolve returns the download URL of the specified build.
// The latest build of the version is resolved if build is 0
func (c *Client) Resolve(ctx context.Context, version string, build int) (*Build, error) {
	if version == "" {
		return nil, trace.BadParameter("missing game version")
	}
	if build < 0 {
		return nil, trace.BadParameter("invalid build number %v", build)
	}
	if build == 0 {
		latest, err := c.LatestBuild(ctx, version)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		build = latest
	}
	downloadURL, err := c.DownloadURL(ctx, version, build)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Build{Version: version, Build: build, URL: downloadURL}, nil
}

func (c *Client) versionEndpoint(version string) string {
	return c.client.Endpoint("projects", c.Project, "versions", version)
}

func (c *Client) buildEndpoint(version string, build int, parts ...string) string {
	params := append([]string{"projects", c.Project, "versions", version,
		"builds", strconv.Itoa(build)}, parts...)
	return c.client.Endpoint(params...)
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	re, err := httplib.ConvertResponse(c.client.Get(ctx, endpoint, url.Values{}))
	if err != nil {
		return trace.Wrap(err)
	}
	if err := json.Unmarshal(re.Bytes(), out); err != nil {
		return trace.BadParameter("failed to decode response from %v: %v", endpoint, err)
	}
	return nil
}

type versionInfo struct {
	Builds []int `json:"builds"`
}

type buildInfo struct {
	Downloads struct {
		Application struct {
			Name string `json:"name"`
		} `json:"application"`
	} `json:"downloads"`
}
