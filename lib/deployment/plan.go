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

// Package deployment models the resources of a game server fleet
// deployment and the order the orchestrator has to process them in.
//
// The backup handler only protects game data if the orchestrator runs it
// at the right time: the Update backup has to complete before any game
// server resource is updated, and the Delete backup has to complete before
// any game server resource is deleted. The handlers cannot enforce this
// themselves, so the plan declares it with dependency edges and Validate
// verifies the edges are in place.
package deployment

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/gravitational/gamefleet/lib/config"
	"github.com/gravitational/gamefleet/lib/constants"
	"github.com/gravitational/gamefleet/lib/defaults"
	"github.com/gravitational/gamefleet/lib/lifecycle"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

const (
	// TypeStack is a (nested) stack
	TypeStack = "AWS::CloudFormation::Stack"
	// TypeVPC is a virtual private cloud
	TypeVPC = "AWS::EC2::VPC"
	// TypeSubnet is a subnet
	TypeSubnet = "AWS::EC2::Subnet"
	// TypeSecurityGroup is a security group
	TypeSecurityGroup = "AWS::EC2::SecurityGroup"
	// TypeInstance is a compute instance
	TypeInstance = "AWS::EC2::Instance"
	// TypeEIP is an elastic IP address
	TypeEIP = "AWS::EC2::EIP"
	// TypeVolume is a block storage volume
	TypeVolume = "AWS::EC2::Volume"
	// TypeFunction is a handler function
	TypeFunction = "AWS::Lambda::Function"
)

// Resource is a single deployed resource
type Resource struct {
	// ID is the resource path, unique within the plan
	ID string `json:"id"`
	// Type is the resource type
	Type string `json:"type"`
	// Parent is the ID of the stack the resource belongs to
	Parent string `json:"parent,omitempty"`
	// Server is the game server the resource belongs to
	Server string `json:"server,omitempty"`
	// DependsOn lists IDs of the resources that have to be created
	// before this one and deleted after it
	DependsOn []string `json:"dependsOn,omitempty"`
	// Properties are the resource properties
	Properties map[string]string `json:"properties,omitempty"`
	// Tags are the resource tags
	Tags map[string]string `json:"tags,omitempty"`
}

// String returns a short resource description
func (r Resource) String() string {
	return fmt.Sprintf("%v(%v)", r.Type, r.ID)
}

// IsBackup returns true if this is a backup resource armed for the event
func (r Resource) IsBackup(event lifecycle.RequestType) bool {
	return r.Type == constants.ResourceTypeGameBackups &&
		r.Properties[constants.PropertyOnEvent] == string(event)
}

// edges returns all resources this one has to be created after
func (r Resource) edges() []string {
	if r.Parent == "" {
		return r.DependsOn
	}
	return append([]string{r.Parent}, r.DependsOn...)
}

// PlanConfig is the deployment plan configuration
type PlanConfig struct {
	// Config is the deployment configuration
	config.Config
	// Definitions lists the game servers to deploy
	Definitions []Definition
	// DownloadURLs optionally maps a game server name to the resolved
	// server build download URL
	DownloadURLs map[string]string
	// Clock sets the backup resource timestamps
	Clock clockwork.Clock
}

// CheckAndSetDefaults checks and sets default values
func (c *PlanConfig) CheckAndSetDefaults() error {
	if err := CheckDefinitions(c.Definitions); err != nil {
		return trace.Wrap(err)
	}
	if c.Environment == "" {
		return trace.BadParameter("missing parameter Environment")
	}
	if c.Qualifier == "" {
		c.Qualifier = defaults.Qualifier
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Plan is the set of resources of a fleet deployment
type Plan struct {
	// Resources lists resources in declaration order
	Resources []Resource `json:"resources"`
}

// NewPlan returns the deployment plan for the specified game servers
func NewPlan(config PlanConfig) (*Plan, error) {
	if err := config.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	b := planBuilder{
		PlanConfig: config,
		network:    config.StackID(defaults.NetworkComponent),
		hosts:      config.StackID(defaults.HostsComponent),
		// Changes on every deployment so that the backup resources
		// receive an Update event every time
		timestamp: strconv.FormatInt(config.Clock.Now().UnixNano()/int64(time.Millisecond), 10),
	}
	b.addNetwork()
	b.addHosts()
	log.WithField(trace.Component, constants.ComponentDeployment).
		Debugf("Planned %v resources for %v game servers.", len(b.resources), len(config.Definitions))
	return &Plan{Resources: b.resources}, nil
}

type planBuilder struct {
	PlanConfig
	network   string
	hosts     string
	timestamp string
	resources []Resource
}

func (b *planBuilder) add(r Resource) string {
	b.resources = append(b.resources, r)
	return r.ID
}

func (b *planBuilder) addNetwork() {
	b.add(Resource{ID: b.network, Type: TypeStack, Tags: b.Tags()})
	vpc := b.add(Resource{ID: path.Join(b.network, "vpc"), Type: TypeVPC, Parent: b.network})
	b.add(Resource{
		ID:        path.Join(b.network, "subnet"),
		Type:      TypeSubnet,
		Parent:    b.network,
		DependsOn: []string{vpc},
	})
	b.add(Resource{
		ID:        path.Join(b.network, "sg"),
		Type:      TypeSecurityGroup,
		Parent:    b.network,
		DependsOn: []string{vpc},
	})
}

func (b *planBuilder) addHosts() {
	b.add(Resource{ID: b.hosts, Type: TypeStack, DependsOn: []string{b.network}, Tags: b.Tags()})

	backups := path.Join(b.hosts, "GameBackups")
	handler := b.add(Resource{ID: path.Join(backups, "handler"), Type: TypeFunction, Parent: b.hosts})
	onUpdates := b.add(b.backupResource(path.Join(backups, "OnUpdates"), lifecycle.RequestUpdate, handler))

	var servers []string
	for _, definition := range b.Definitions {
		servers = append(servers, b.addServer(definition, onUpdates))
	}

	onDeletes := b.backupResource(path.Join(backups, "OnDeletes"), lifecycle.RequestDelete, handler)
	onDeletes.DependsOn = append(onDeletes.DependsOn, servers...)
	b.add(onDeletes)
}

func (b *planBuilder) backupResource(id string, event lifecycle.RequestType, handler string) Resource {
	vpc := path.Join(b.network, "vpc")
	return Resource{
		ID:        id,
		Type:      constants.ResourceTypeGameBackups,
		Parent:    b.hosts,
		DependsOn: []string{handler, vpc},
		Properties: map[string]string{
			constants.PropertyServiceToken: handler,
			constants.PropertyOnEvent:      string(event),
			constants.PropertyVPCID:        vpc,
			constants.PropertyTimestamp:    b.timestamp,
		},
	}
}

// addServer adds the nested stack of a single game server and
// returns its ID
func (b *planBuilder) addServer(definition Definition, onUpdates string) string {
	stack := b.add(Resource{
		ID:        path.Join(b.hosts, definition.Name),
		Type:      TypeStack,
		Parent:    b.hosts,
		Server:    definition.Name,
		DependsOn: []string{onUpdates},
	})
	tags := b.Tags()
	tags[constants.TagName] = path.Join(stack, "instance")
	instanceProps := map[string]string{
		"DataDevice": defaults.DataDevice,
	}
	if url := b.DownloadURLs[definition.Name]; url != "" {
		instanceProps["DownloadURL"] = url
	}
	instance := b.add(Resource{
		ID:     path.Join(stack, "instance"),
		Type:   TypeInstance,
		Parent: stack,
		Server: definition.Name,
		DependsOn: []string{
			path.Join(b.network, "subnet"),
			path.Join(b.network, "sg"),
		},
		Properties: instanceProps,
		Tags:       tags,
	})
	b.add(Resource{
		ID:        path.Join(stack, "eip"),
		Type:      TypeEIP,
		Parent:    stack,
		Server:    definition.Name,
		DependsOn: []string{instance},
	})
	volume := b.add(Resource{
		ID:        path.Join(stack, "volume"),
		Type:      TypeVolume,
		Parent:    stack,
		Server:    definition.Name,
		DependsOn: []string{instance},
		Properties: map[string]string{
			"SnapshotId": definition.InitSnapshot,
		},
		Tags: b.Tags(),
	})
	handler := b.add(Resource{
		ID:     path.Join(stack, "VolumeAttacher", "handler"),
		Type:   TypeFunction,
		Parent: stack,
		Server: definition.Name,
	})
	b.add(Resource{
		ID:        path.Join(stack, "volumeAttachment"),
		Type:      constants.ResourceTypeVolumeAttachment,
		Parent:    stack,
		Server:    definition.Name,
		DependsOn: []string{handler, instance, volume},
		Properties: map[string]string{
			constants.PropertyServiceToken: handler,
			constants.PropertyInstanceID:   instance,
			constants.PropertyVolumeID:     volume,
		},
	})
	return stack
}

// Get returns the resource with the specified ID
func (p Plan) Get(id string) (*Resource, error) {
	for i := range p.Resources {
		if p.Resources[i].ID == id {
			return &p.Resources[i], nil
		}
	}
	return nil, trace.NotFound("resource %v not found", id)
}

// Validate makes sure the plan is well-formed and that the backups
// are ordered around the game server resources:
//
//   * every game server resource is created (and so updated) after
//     each Update backup
//   * every Delete backup is created after (and so deleted before)
//     each game server resource
func (p Plan) Validate() error {
	index := make(map[string]Resource, len(p.Resources))
	for _, r := range p.Resources {
		if r.ID == "" {
			return trace.BadParameter("resource of type %v has no ID", r.Type)
		}
		if _, ok := index[r.ID]; ok {
			return trace.AlreadyExists("duplicate resource %v", r.ID)
		}
		index[r.ID] = r
	}
	for _, r := range p.Resources {
		for _, dep := range r.edges() {
			if _, ok := index[dep]; !ok {
				return trace.NotFound("%v depends on unknown resource %v", r, dep)
			}
		}
		if r.Type == constants.ResourceTypeGameBackups {
			if err := checkBackup(r); err != nil {
				return trace.Wrap(err)
			}
		}
	}
	if _, err := p.Order(); err != nil {
		return trace.Wrap(err)
	}
	reach := newReachability(index)
	for _, backup := range p.Resources {
		for _, r := range p.Resources {
			if r.Server == "" {
				continue
			}
			switch {
			case backup.IsBackup(lifecycle.RequestUpdate):
				if !reach.dependsOn(r.ID, backup.ID) {
					return trace.BadParameter("%v must depend on %v to be backed up before update", r, backup)
				}
			case backup.IsBackup(lifecycle.RequestDelete):
				if !reach.dependsOnServer(backup.ID, r.ID) {
					return trace.BadParameter("%v must depend on %v to back it up before deletion", backup, r)
				}
			}
		}
	}
	return nil
}

// Order returns the resources in the order they are created in.
// Resources are deleted in the reverse order.
// Independent resources keep their declaration order
func (p Plan) Order() ([]Resource, error) {
	position := make(map[string]int, len(p.Resources))
	for i, r := range p.Resources {
		position[r.ID] = i
	}
	inDegree := make([]int, len(p.Resources))
	dependents := make([][]int, len(p.Resources))
	for i, r := range p.Resources {
		for _, dep := range r.edges() {
			j, ok := position[dep]
			if !ok {
				return nil, trace.NotFound("%v depends on unknown resource %v", r, dep)
			}
			inDegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}
	var ready []int
	for i := range p.Resources {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]Resource, 0, len(p.Resources))
	for len(ready) != 0 {
		sort.Ints(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, p.Resources[next])
		for _, i := range dependents[next] {
			inDegree[i]--
			if inDegree[i] == 0 {
				ready = append(ready, i)
			}
		}
	}
	if len(order) != len(p.Resources) {
		var cycle []string
		for i, degree := range inDegree {
			if degree > 0 {
				cycle = append(cycle, p.Resources[i].ID)
			}
		}
		return nil, trace.BadParameter("dependency cycle between resources %v", cycle)
	}
	return order, nil
}

func checkBackup(r Resource) error {
	event, err := lifecycle.ParseRequestType(r.Properties[constants.PropertyOnEvent])
	if err != nil {
		return trace.BadParameter("%v: %v", r, err)
	}
	switch event {
	case lifecycle.RequestUpdate, lifecycle.RequestDelete:
	case lifecycle.RequestCreate:
		return trace.BadParameter("%v: backups on Create have nothing to back up", r)
	default:
		return trace.BadParameter("%v: unsupported event %v", r, event)
	}
	for _, key := range []string{constants.PropertyVPCID, constants.PropertyTimestamp} {
		if r.Properties[key] == "" {
			return trace.BadParameter("%v: missing property %v", r, key)
		}
	}
	return nil
}

type reachability struct {
	index map[string]Resource
	memo  map[string]map[string]bool
}

func newReachability(index map[string]Resource) *reachability {
	return &reachability{index: index, memo: make(map[string]map[string]bool)}
}

// dependsOn returns true if from transitively depends on to
func (r *reachability) dependsOn(from, to string) bool {
	return r.closure(from)[to]
}

// dependsOnServer returns true if from transitively depends on the game
// server resource or on any game server stack containing it. A stack is
// only deleted once all of its resources are
func (r *reachability) dependsOnServer(from, to string) bool {
	for id := to; id != ""; id = r.index[id].Parent {
		if r.index[id].Server == "" {
			break
		}
		if r.dependsOn(from, id) {
			return true
		}
	}
	return false
}

// closure returns all resources the specified one transitively depends on.
// The graph is known to be acyclic
func (r *reachability) closure(id string) map[string]bool {
	if deps, ok := r.memo[id]; ok {
		return deps
	}
	deps := make(map[string]bool)
	for _, dep := range r.index[id].edges() {
		deps[dep] = true
		for transitive := range r.closure(dep) {
			deps[transitive] = true
		}
	}
	r.memo[id] = deps
	return deps
}
