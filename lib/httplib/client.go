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

package httplib

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gravitational/gamefleet/lib/defaults"

	"github.com/gravitational/roundtrip"
	"github.com/gravitational/trace"
)

// ClientOption sets custom HTTP client option
type ClientOption func(*http.Client)

// WithInsecure sets insecure TLS config
func WithInsecure() ClientOption {
	return func(c *http.Client) {
		// Make sure not to override existing TLS configuration.
		transport := c.Transport.(*http.Transport)
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{}
		}
		transport.TLSClientConfig.InsecureSkipVerify = true
	}
}

// WithTimeout sets timeout
func WithTimeout(t time.Duration) ClientOption {
	return func(c *http.Client) {
		c.Timeout = t
	}
}

// WithDialTimeout sets dial timeout
func WithDialTimeout(t time.Duration) ClientOption {
	return func(c *http.Client) {
		c.Transport.(*http.Transport).DialContext = (&net.Dialer{Timeout: t}).DialContext
	}
}

// NewClient creates a new HTTP client with the specified list of configuration
// options
func NewClient(options ...ClientOption) *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{},
		Proxy:           http.ProxyFromEnvironment,
		DialContext:     (&net.Dialer{Timeout: defaults.DialTimeout}).DialContext,
	}
	client := &http.Client{Transport: transport}
	for _, o := range options {
		o(client)
	}
	if transport.IdleConnTimeout == 0 {
		transport.IdleConnTimeout = defaults.ConnectionIdleTimeout
	}
	return client
}

// ConvertResponse converts a roundtrip response into a trace error
// if the response carries an error status code
func ConvertResponse(re *roundtrip.Response, err error) (*roundtrip.Response, error) {
	if err != nil {
		if uerr, ok := trace.Unwrap(err).(*url.Error); ok && uerr != nil && uerr.Err != nil {
			return nil, trace.ConnectionProblem(uerr.Err, "%v", uerr.Error())
		}
		return nil, trace.ConvertSystemError(err)
	}
	return re, trace.ReadError(re.Code(), re.Bytes())
}
