package jobcreator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccountsYAML = `
partitions:
  aws:
    home_region: ap-northeast-1
    helper_images:
      ap-northeast-1: ami-383c1956
    regions: [ap-northeast-1, ap-northeast-2]
  aws-us-gov:
    home_region: us-gov-west-1
    helper_images:
      us-gov-west-1: ami-c2b5d7e1
    regions: [us-gov-west-1]
accounts:
  test-aws:
    name: test-aws
    cloud: ec2
    partition: aws
    additional_regions: [ap-northeast-3]
  test-aws-gov:
    name: test-aws-gov
    cloud: ec2
    partition: aws-us-gov
groups:
  alice:
    test: [test-aws, test-aws-gov]
`

func writeTempAccountsConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAccountsConfig(t *testing.T) {
	path := writeTempAccountsConfig(t, testAccountsYAML)

	cfg, err := LoadAccountsConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "ap-northeast-1", cfg.Partitions["aws"].HomeRegion)
	assert.Equal(t, "ami-383c1956", cfg.Partitions["aws"].HelperImages["ap-northeast-1"])
	assert.Equal(t, []string{"ap-northeast-1", "ap-northeast-2"}, cfg.Partitions["aws"].Regions)
	assert.Equal(t, "aws", cfg.Accounts["test-aws"].Partition)
	assert.Equal(t, []string{"ap-northeast-3"}, cfg.Accounts["test-aws"].AdditionalRegions)
	assert.Equal(t, []string{"test-aws", "test-aws-gov"}, cfg.AccountsInGroup("alice", "test"))
}

func TestLoadAccountsConfig_MissingFile(t *testing.T) {
	_, err := LoadAccountsConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Error(t, err)
}

func TestAccountsInGroup_UnknownUserOrGroup(t *testing.T) {
	path := writeTempAccountsConfig(t, testAccountsYAML)
	cfg, err := LoadAccountsConfig(path)
	require.NoError(t, err)

	assert.Nil(t, cfg.AccountsInGroup("bob", "test"))
	assert.Nil(t, cfg.AccountsInGroup("alice", "missing-group"))
}

func TestAccountConfig_WithPartitionLeavesOriginalUnchanged(t *testing.T) {
	base := AccountConfig{Name: "test-aws", Partition: "aws"}
	partition := PartitionConfig{HomeRegion: "ap-northeast-1"}

	resolved := base.WithPartition(&partition)

	assert.Nil(t, base.resolvedPartition)
	assert.Same(t, &partition, resolved.resolvedPartition)
}
