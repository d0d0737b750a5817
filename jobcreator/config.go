// Package jobcreator implements the Job Creator (C4): it validates a
// submitted job document, resolves its target accounts, builds one
// stage-specific sub-document per pipeline stage up to last_service, and
// publishes them in order.
package jobcreator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PartitionConfig is one EC2 partition's region table (spec §4.4: "regions
// come from a partition→regions table in config").
type PartitionConfig struct {
	// HomeRegion is the single region an account in this partition uploads
	// its helper image to.
	HomeRegion string `yaml:"home_region"`
	// HelperImages maps every region this partition knows a helper image
	// for to that image's id.
	HelperImages map[string]string `yaml:"helper_images"`
	// Regions is the full set of regions this partition replicates and
	// tests across (a superset of HomeRegion).
	Regions []string `yaml:"regions"`
}

// AccountConfig is one account's static configuration: which partition (for
// EC2) or region/resource-group/container/storage-account tuple (for Azure)
// it targets, plus any per-account overrides.
type AccountConfig struct {
	Name              string   `yaml:"name"`
	Cloud             string   `yaml:"cloud"`
	Partition         string   `yaml:"partition,omitempty"`
	AdditionalRegions []string `yaml:"additional_regions,omitempty"`
	RootSwapAMI       string   `yaml:"root_swap_ami,omitempty"`
	Region            string   `yaml:"region,omitempty"`
	ResourceGroup     string   `yaml:"resource_group,omitempty"`
	ContainerName     string   `yaml:"container_name,omitempty"`
	StorageAccount    string   `yaml:"storage_account,omitempty"`

	// resolvedPartition is attached by the job creator when it builds the
	// target-account list for a job, so EC2 CloudExpander implementations
	// never need their own AccountsConfig lookup.
	resolvedPartition *PartitionConfig
}

// WithPartition returns a copy of ac carrying its resolved EC2 partition
// table, or ac unchanged if partition is the zero value (non-EC2 accounts).
func (ac AccountConfig) WithPartition(partition *PartitionConfig) AccountConfig {
	ac.resolvedPartition = partition
	return ac
}

// AccountsConfig is the job creator's full static configuration: EC2
// partitions, known accounts, and group membership by requesting user.
type AccountsConfig struct {
	Partitions map[string]PartitionConfig `yaml:"partitions"`
	Accounts   map[string]AccountConfig   `yaml:"accounts"`
	// Groups maps requesting_user -> group name -> member account names
	// (spec §4.4 step 3: "expand to its member accounts under
	// requesting_user").
	Groups map[string]map[string][]string `yaml:"groups"`
}

// LoadAccountsConfig reads and parses the YAML accounts configuration file
// the job creator service is started with.
func LoadAccountsConfig(path string) (*AccountsConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jobcreator: read accounts config %s: %w", path, err)
	}
	cfg := &AccountsConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("jobcreator: parse accounts config %s: %w", path, err)
	}
	return cfg, nil
}

// AccountsInGroup returns the member account names of group under user,
// nil if either is unknown.
func (c *AccountsConfig) AccountsInGroup(user, group string) []string {
	byUser, ok := c.Groups[user]
	if !ok {
		return nil
	}
	return byUser[group]
}
