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

package deployment

import (
	"io/ioutil"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/gravitational/trace"
)

// Definition describes a single game server
type Definition struct {
	// Name is the game server name, unique within the fleet
	Name string `json:"name"`
	// InitSnapshot is the snapshot the game data volume is created from
	InitSnapshot string `json:"initSnapshot"`
	// PaperMC optionally pins the server build
	PaperMC *PaperMC `json:"papermc,omitempty"`
}

// PaperMC selects the PaperMC server build
type PaperMC struct {
	// Version is the game version
	Version string `json:"version,omitempty"`
	// Build is the build number, 0 means the latest build
	Build int `json:"build,omitempty"`
}

// Check validates the definition
func (d Definition) Check() error {
	if !serverNameRe.MatchString(d.Name) {
		return trace.BadParameter("invalid game server name %q: expected letters, digits and dashes", d.Name)
	}
	if d.InitSnapshot == "" {
		return trace.BadParameter("game server %v: missing initSnapshot", d.Name)
	}
	if !strings.HasPrefix(d.InitSnapshot, "snap-") {
		return trace.BadParameter("game server %v: invalid snapshot id %q", d.Name, d.InitSnapshot)
	}
	if d.PaperMC != nil && d.PaperMC.Build < 0 {
		return trace.BadParameter("game server %v: invalid build number %v", d.Name, d.PaperMC.Build)
	}
	return nil
}

// definitionFile is a file with several definitions
type definitionFile struct {
	Definitions []Definition `json:"definitions"`
}

// LoadDefinitions loads game server definitions from all JSON and YAML
// files in the specified directory.
//
// A file holds either a single definition or a list of them under
// the definitions key. Files are read in lexical order
func LoadDefinitions(dir string) ([]Definition, error) {
	files, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	var paths []string
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(file.Name())) {
		case ".json", ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, file.Name()))
		}
	}
	sort.Strings(paths)
	var definitions []Definition
	for _, path := range paths {
		parsed, err := ReadDefinitions(path)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		definitions = append(definitions, parsed...)
	}
	if err := CheckDefinitions(definitions); err != nil {
		return nil, trace.Wrap(err)
	}
	return definitions, nil
}

// ReadDefinitions reads game server definitions from the specified file
func ReadDefinitions(path string) ([]Definition, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, trace.BadParameter("failed to parse %v: %v", path, err)
	}
	if len(file.Definitions) != 0 {
		return file.Definitions, nil
	}
	var definition Definition
	if err := yaml.Unmarshal(data, &definition); err != nil {
		return nil, trace.BadParameter("failed to parse %v: %v", path, err)
	}
	return []Definition{definition}, nil
}

// CheckDefinitions validates the definitions and makes sure
// server names are unique
func CheckDefinitions(definitions []Definition) error {
	if len(definitions) == 0 {
		return trace.NotFound("no game server definitions found")
	}
	names := make(map[string]struct{}, len(definitions))
	for _, definition := range definitions {
		if err := definition.Check(); err != nil {
			return trace.Wrap(err)
		}
		if _, ok := names[definition.Name]; ok {
			return trace.AlreadyExists("duplicate game server name %v", definition.Name)
		}
		names[definition.Name] = struct{}{}
	}
	return nil
}

var serverNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)
