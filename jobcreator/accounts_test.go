package jobcreator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"oss.mash.dev/mash/jobdoc"
	"oss.mash.dev/mash/pipeline"
)

func TestResolveTargetAccounts_GroupAndLiteralUnion(t *testing.T) {
	cfg := &AccountsConfig{
		Groups: map[string]map[string][]string{
			"alice": {"test": {"test-aws", "test-aws-gov"}},
		},
	}
	doc := &jobdoc.JobDocument{
		Cloud:          jobdoc.CloudEC2,
		LastService:    pipeline.StageCreate,
		RequestingUser: "alice",
		CloudGroups:    []string{"test"},
		CloudAccounts:  []jobdoc.CloudAccount{{Name: "extra-account"}, {Name: "test-aws"}},
	}

	names := ResolveTargetAccounts(doc, "alice", cfg)

	assert.Equal(t, []string{"extra-account", "test-aws", "test-aws-gov"}, names)
}

func TestResolveTargetAccounts_UnknownUserYieldsLiteralOnly(t *testing.T) {
	cfg := &AccountsConfig{}
	doc := &jobdoc.JobDocument{
		CloudGroups:   []string{"test"},
		CloudAccounts: []jobdoc.CloudAccount{{Name: "solo-account"}},
	}

	names := ResolveTargetAccounts(doc, "nobody", cfg)

	assert.Equal(t, []string{"solo-account"}, names)
}

func TestResolveTargetAccounts_EmptyNameIgnored(t *testing.T) {
	cfg := &AccountsConfig{}
	doc := &jobdoc.JobDocument{CloudAccounts: []jobdoc.CloudAccount{{Name: ""}, {Name: "real"}}}

	names := ResolveTargetAccounts(doc, "alice", cfg)

	assert.Equal(t, []string{"real"}, names)
}
