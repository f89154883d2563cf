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

// Package config loads the deployment and handler configuration from the
// environment.
//
// Values are looked up in the process environment first and then in an
// optional env file, so variables exported on a CI platform always take
// precedence over a developer's local file. The configuration is loaded
// once by the binary and passed explicitly to every component.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/gravitational/gamefleet/lib/constants"
	"github.com/gravitational/gamefleet/lib/defaults"
	"github.com/gravitational/gamefleet/lib/utils"

	"github.com/gravitational/trace"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	// EnvQualifier is the application qualifier
	EnvQualifier = "CDK_QUALIFIER"
	// EnvEnvironment is the deployment environment name
	EnvEnvironment = "ENVIRONMENT"
	// EnvBucketName is the bucket with the deployment assets
	EnvBucketName = "S3_BUCKET_NAME"
	// EnvDeployRoleARN is the role assumed to deploy stacks
	EnvDeployRoleARN = "DEPLOY_ROLE_ARN"
	// EnvPublishRoleARN is the role assumed to publish assets
	EnvPublishRoleARN = "PUBLISH_ROLE_ARN"
	// EnvCloudFormationRoleARN is the role the orchestrator executes with
	EnvCloudFormationRoleARN = "CLOUDFORMATION_ROLE_ARN"
	// EnvLambdaRoleARN is the execution role of the handler functions
	EnvLambdaRoleARN = "LAMBDA_ROLE_ARN"
	// EnvEC2RoleARN is the role of the game server instances
	EnvEC2RoleARN = "EC2_ROLE_ARN"
	// EnvSSHKeyName is the key pair installed on game server instances
	EnvSSHKeyName = "SSH_KEY_NAME"
	// EnvMCRconPasswordParameter is the parameter with the RCON password
	EnvMCRconPasswordParameter = "MCRCON_PASSWORD_PARAMETER"
	// EnvServerDefinitionSource is the location of game server definitions
	EnvServerDefinitionSource = "SERVER_DEFINITION_SOURCE"
	// EnvRegion is the AWS region
	EnvRegion = "AWS_REGION"
	// EnvLogLevel is the logging level of the handler functions
	EnvLogLevel = "LOG_LEVEL"
	// EnvDataDevice overrides the game data device path
	EnvDataDevice = "DATA_DEVICE"
)

// LookupFunc looks up the value of the named variable
type LookupFunc func(name string) (string, bool)

// Environment returns a lookup function over the process environment
// and the specified env file. The file is optional: if it does not
// exist, only the process environment is consulted
func Environment(envFile string) (LookupFunc, error) {
	fileEnv := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		if err != nil && !os.IsNotExist(err) {
			return nil, trace.ConvertSystemError(err)
		}
		if err == nil {
			log.WithField(trace.Component, constants.ComponentDeployment).
				Debugf("Loaded %v variables from %v.", len(values), envFile)
			fileEnv = values
		}
	}
	return func(name string) (string, bool) {
		if value, ok := os.LookupEnv(name); ok {
			return value, true
		}
		value, ok := fileEnv[name]
		return value, ok
	}, nil
}

// Config is the deployment configuration
type Config struct {
	// Qualifier is the application qualifier used in stack names and tags
	Qualifier string `json:"qualifier"`
	// Environment is the deployment environment name
	Environment string `json:"environment"`
	// BucketName is the name of the bucket with deployment assets
	BucketName string `json:"bucket_name"`
	// DeployRoleARN is the role assumed to deploy stacks
	DeployRoleARN string `json:"deploy_role_arn"`
	// PublishRoleARN is the role assumed to publish assets
	PublishRoleARN string `json:"publish_role_arn"`
	// CloudFormationRoleARN is the role the orchestrator executes with
	CloudFormationRoleARN string `json:"cloudformation_role_arn"`
	// LambdaRoleARN is the execution role of the handler functions
	LambdaRoleARN string `json:"lambda_role_arn"`
	// EC2RoleARN is the role of the game server instances
	EC2RoleARN string `json:"ec2_role_arn"`
	// SSHKeyName is the key pair installed on game server instances
	SSHKeyName string `json:"ssh_key_name"`
	// MCRconPasswordParameter is the parameter with the RCON password
	MCRconPasswordParameter string `json:"mcrcon_password_parameter"`
	// ServerDefinitionSource is the location of game server definitions,
	// file://<dir>
	ServerDefinitionSource string `json:"server_definition_source"`
	// Region is the AWS region
	Region string `json:"region,omitempty"`
}

// FromEnvironment loads the deployment configuration from the process
// environment and the env file
func FromEnvironment(envFile string) (*Config, error) {
	lookup, err := Environment(envFile)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return New(lookup)
}

// New loads the deployment configuration with the specified lookup function
func New(lookup LookupFunc) (*Config, error) {
	config := Config{
		Qualifier:               get(lookup, EnvQualifier),
		Environment:             get(lookup, EnvEnvironment),
		BucketName:              get(lookup, EnvBucketName),
		DeployRoleARN:           get(lookup, EnvDeployRoleARN),
		PublishRoleARN:          get(lookup, EnvPublishRoleARN),
		CloudFormationRoleARN:   get(lookup, EnvCloudFormationRoleARN),
		LambdaRoleARN:           get(lookup, EnvLambdaRoleARN),
		EC2RoleARN:              get(lookup, EnvEC2RoleARN),
		SSHKeyName:              get(lookup, EnvSSHKeyName),
		MCRconPasswordParameter: get(lookup, EnvMCRconPasswordParameter),
		ServerDefinitionSource:  get(lookup, EnvServerDefinitionSource),
		Region:                  get(lookup, EnvRegion),
	}
	if err := config.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &config, nil
}

// CheckAndSetDefaults checks and sets default values
func (c *Config) CheckAndSetDefaults() error {
	if c.Qualifier == "" {
		c.Qualifier = defaults.Qualifier
	}
	if c.MCRconPasswordParameter == "" {
		c.MCRconPasswordParameter = defaults.MCRconPasswordParameter
	}
	for _, param := range []struct {
		name  string
		value string
	}{
		{EnvEnvironment, c.Environment},
		{EnvBucketName, c.BucketName},
		{EnvDeployRoleARN, c.DeployRoleARN},
		{EnvPublishRoleARN, c.PublishRoleARN},
		{EnvCloudFormationRoleARN, c.CloudFormationRoleARN},
		{EnvLambdaRoleARN, c.LambdaRoleARN},
		{EnvEC2RoleARN, c.EC2RoleARN},
		{EnvSSHKeyName, c.SSHKeyName},
		{EnvServerDefinitionSource, c.ServerDefinitionSource},
	} {
		if param.value == "" {
			return trace.BadParameter("missing parameter %v", param.name)
		}
	}
	return nil
}

// StackID returns the id of the stack for the specified component:
// <qualifier>-<environment>-<component>
func (c Config) StackID(component string) string {
	return fmt.Sprintf("%v-%v-%v", c.Qualifier, c.Environment, component)
}

// Tags returns the tags applied to every deployed resource
func (c Config) Tags() map[string]string {
	return map[string]string{
		constants.TagApplication: c.Qualifier,
		constants.TagEnvironment: c.Environment,
	}
}

// DefinitionsDir returns the directory with game server definitions
func (c Config) DefinitionsDir() (string, error) {
	prefix := defaults.ServerDefinitionScheme + "://"
	if !strings.HasPrefix(c.ServerDefinitionSource, prefix) {
		return "", trace.BadParameter("unsupported server definition source %q, expected %v<dir>",
			c.ServerDefinitionSource, prefix)
	}
	dir := strings.TrimPrefix(c.ServerDefinitionSource, prefix)
	if dir == "" {
		return "", trace.BadParameter("server definition source %q has no directory",
			c.ServerDefinitionSource)
	}
	return dir, nil
}

// HandlerConfig is the configuration of the handler functions
type HandlerConfig struct {
	// Region is the AWS region. Empty means the region is taken
	// from the function environment by the SDK
	Region string
	// DataDevice is the game data device path
	DataDevice string
	// LogLevel is the logging level
	LogLevel log.Level
}

// HandlerFromEnvironment loads the handler configuration
func HandlerFromEnvironment(lookup LookupFunc) (*HandlerConfig, error) {
	level, err := utils.ParseLevel(get(lookup, EnvLogLevel))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	config := HandlerConfig{
		Region:     get(lookup, EnvRegion),
		DataDevice: get(lookup, EnvDataDevice),
		LogLevel:   level,
	}
	if config.DataDevice == "" {
		config.DataDevice = defaults.DataDevice
	}
	if !strings.HasPrefix(config.DataDevice, "/dev/") {
		return nil, trace.BadParameter("invalid data device %q", config.DataDevice)
	}
	return &config, nil
}

func get(lookup LookupFunc, name string) string {
	value, _ := lookup(name)
	return strings.TrimSpace(value)
}
