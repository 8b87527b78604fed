// Package datasetcfg loads and resolves the datasets configuration file: the
// declarative description of which datasets exist, their properties, and
// their replication topology. Settings cascade defaults -> group -> dataset
// with the most specific value winning.
package datasetcfg

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/warehouselabs/replica-gateway/replication"
)

// ReplicationConfig declares the replication topology for a dataset. A nil
// Enabled counts as enabled; explicitly disabling replication makes the
// whole block inert.
type ReplicationConfig struct {
	Enabled  *bool    `yaml:"enabled" json:"enabled,omitempty"`
	Replicas []string `yaml:"replicas" json:"replicas,omitempty"`
	Primary  string   `yaml:"primary_location" json:"primary_location,omitempty"`
}

// IsEnabled reports whether this block requests replication at all.
func (r *ReplicationConfig) IsEnabled() bool {
	if r == nil {
		return false
	}
	if r.Enabled != nil {
		return *r.Enabled
	}
	return true
}

func (r *ReplicationConfig) clone() *ReplicationConfig {
	if r == nil {
		return nil
	}
	out := &ReplicationConfig{Primary: r.Primary}
	if r.Enabled != nil {
		enabled := *r.Enabled
		out.Enabled = &enabled
	}
	out.Replicas = append([]string(nil), r.Replicas...)
	return out
}

// overlay merges a more specific replication block over this one, field by
// field.
func (r *ReplicationConfig) overlay(over *ReplicationConfig) *ReplicationConfig {
	if r == nil {
		return over.clone()
	}
	if over == nil {
		return r.clone()
	}

	out := r.clone()
	if over.Enabled != nil {
		enabled := *over.Enabled
		out.Enabled = &enabled
	}
	if over.Replicas != nil {
		out.Replicas = append([]string(nil), over.Replicas...)
	}
	if over.Primary != "" {
		out.Primary = over.Primary
	}
	return out
}

// DatasetConfig is one level of dataset settings. The same shape serves as
// project defaults, group settings, and per-dataset settings.
type DatasetConfig struct {
	Project                      string             `yaml:"project" json:"project,omitempty"`
	Group                        string             `yaml:"group" json:"group,omitempty"`
	Location                     string             `yaml:"location" json:"location,omitempty"`
	Description                  string             `yaml:"description" json:"description,omitempty"`
	Labels                       map[string]string  `yaml:"labels" json:"labels,omitempty"`
	DefaultTableExpirationMS     int64              `yaml:"default_table_expiration_ms" json:"default_table_expiration_ms,omitempty"`
	DefaultPartitionExpirationMS int64              `yaml:"default_partition_expiration_ms" json:"default_partition_expiration_ms,omitempty"`
	Replication                  *ReplicationConfig `yaml:"replication" json:"replication,omitempty"`
}

// overlay merges a more specific settings level over this one. Scalars
// replace when set, labels merge per key, replication merges field by field.
func (c DatasetConfig) overlay(over DatasetConfig) DatasetConfig {
	out := c
	out.Labels = nil
	if c.Labels != nil {
		out.Labels = make(map[string]string, len(c.Labels))
		for k, v := range c.Labels {
			out.Labels[k] = v
		}
	}

	if over.Project != "" {
		out.Project = over.Project
	}
	if over.Group != "" {
		out.Group = over.Group
	}
	if over.Location != "" {
		out.Location = over.Location
	}
	if over.Description != "" {
		out.Description = over.Description
	}
	if over.Labels != nil {
		if out.Labels == nil {
			out.Labels = make(map[string]string, len(over.Labels))
		}
		for k, v := range over.Labels {
			out.Labels[k] = v
		}
	}
	if over.DefaultTableExpirationMS != 0 {
		out.DefaultTableExpirationMS = over.DefaultTableExpirationMS
	}
	if over.DefaultPartitionExpirationMS != 0 {
		out.DefaultPartitionExpirationMS = over.DefaultPartitionExpirationMS
	}
	out.Replication = c.Replication.overlay(over.Replication)

	return out
}

// ReplicationDescriptor builds the desired topology from the resolved
// settings. The second return is false when replication is not requested
// (no block, or explicitly disabled).
func (c DatasetConfig) ReplicationDescriptor() (replication.TopologyDescriptor, bool, error) {
	if !c.Replication.IsEnabled() {
		return replication.TopologyDescriptor{}, false, nil
	}
	desc, err := replication.NewTopologyDescriptor(c.Replication.Replicas, c.Replication.Primary)
	if err != nil {
		return replication.TopologyDescriptor{}, true, err
	}
	return desc, true, nil
}

// Config is the root of the datasets configuration file.
type Config struct {
	Project  string                    `yaml:"project" json:"project,omitempty"`
	Defaults *DatasetConfig            `yaml:"defaults" json:"defaults,omitempty"`
	Groups   map[string]*DatasetConfig `yaml:"groups" json:"groups,omitempty"`
	Datasets map[string]*DatasetConfig `yaml:"datasets" json:"datasets,omitempty"`
}

// DatasetNames returns the configured dataset names in sorted order.
func (c *Config) DatasetNames() []string {
	names := make([]string, 0, len(c.Datasets))
	for name := range c.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve produces the effective settings for one dataset by overlaying
// defaults, then the dataset's group, then the dataset itself.
func (c *Config) Resolve(name string) (DatasetConfig, error) {
	dsCfg, ok := c.Datasets[name]
	if !ok {
		return DatasetConfig{}, fmt.Errorf("dataset %q is not configured", name)
	}
	if dsCfg == nil {
		dsCfg = &DatasetConfig{}
	}

	var resolved DatasetConfig
	if c.Defaults != nil {
		resolved = resolved.overlay(*c.Defaults)
	}

	groupName := dsCfg.Group
	if groupName == "" && c.Defaults != nil {
		groupName = c.Defaults.Group
	}
	if groupName != "" {
		groupCfg, ok := c.Groups[groupName]
		if !ok {
			return DatasetConfig{}, fmt.Errorf("dataset %q names unknown group %q", name, groupName)
		}
		if groupCfg != nil {
			resolved = resolved.overlay(*groupCfg)
		}
	}

	resolved = resolved.overlay(*dsCfg)
	if resolved.Project == "" {
		resolved.Project = c.Project
	}
	return resolved, nil
}

// Identity returns the warehouse identity for a configured dataset.
func (c *Config) Identity(name string, resolved DatasetConfig) replication.DatasetID {
	project := resolved.Project
	if project == "" {
		project = c.Project
	}
	return replication.DatasetID{Project: project, Dataset: name}
}

// Validate resolves every dataset and collects everything wrong with the
// file. An empty result means the configuration is usable.
func (c *Config) Validate() []error {
	var errs []error

	for _, name := range c.DatasetNames() {
		if name == "" {
			errs = append(errs, fmt.Errorf("a dataset with an empty name is configured"))
			continue
		}

		resolved, err := c.Resolve(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if resolved.Project == "" {
			errs = append(errs, fmt.Errorf("dataset %q: no project configured", name))
		}
		if resolved.DefaultTableExpirationMS < 0 {
			errs = append(errs, fmt.Errorf("dataset %q: default_table_expiration_ms must not be negative", name))
		}
		if resolved.DefaultPartitionExpirationMS < 0 {
			errs = append(errs, fmt.Errorf("dataset %q: default_partition_expiration_ms must not be negative", name))
		}
		for k := range resolved.Labels {
			if k == "" {
				errs = append(errs, fmt.Errorf("dataset %q: labels must have non-empty keys", name))
			}
		}

		if resolved.Replication.IsEnabled() {
			if len(resolved.Replication.Replicas) == 0 {
				errs = append(errs, fmt.Errorf("dataset %q: replication enabled but no replicas specified", name))
				continue
			}
			_, _, err := resolved.ReplicationDescriptor()
			if err != nil {
				errs = append(errs, fmt.Errorf("dataset %q: %w", name, err))
			}
		}
	}

	return errs
}

// Hash is a stable fingerprint of the whole configuration, used to detect
// whether a reload actually changed anything.
func (c *Config) Hash() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}
