package jobcreator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oss.mash.dev/mash/jobdoc"
	"oss.mash.dev/mash/pipeline"
)

// scenario1Accounts reproduces spec.md §8 scenario 1: a group containing
// test-aws (partition aws, additional region ap-northeast-3) and
// test-aws-gov (partition aws-us-gov).
func scenario1Accounts() []AccountConfig {
	awsPartition := PartitionConfig{
		HomeRegion:   "ap-northeast-1",
		HelperImages: map[string]string{"ap-northeast-1": "ami-383c1956"},
		Regions:      []string{"ap-northeast-1", "ap-northeast-2"},
	}
	govPartition := PartitionConfig{
		HomeRegion:   "us-gov-west-1",
		HelperImages: map[string]string{"us-gov-west-1": "ami-c2b5d7e1"},
		Regions:      []string{"us-gov-west-1"},
	}
	testAws := AccountConfig{Name: "test-aws", Partition: "aws", AdditionalRegions: []string{"ap-northeast-3"}}
	testAwsGov := AccountConfig{Name: "test-aws-gov", Partition: "aws-us-gov"}
	return []AccountConfig{testAws.WithPartition(&awsPartition), testAwsGov.WithPartition(&govPartition)}
}

func TestEC2Expander_UploaderTargetRegions_Scenario1(t *testing.T) {
	accounts := scenario1Accounts()

	stageDoc, ok, err := ec2Expander{}.Expand(pipeline.StageUpload, &jobdoc.JobDocument{}, accounts)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pipeline.EnvelopeUploader, stageDoc.Envelope)
	targetRegions := stageDoc.Fields["target_regions"].(map[string]any)
	require.Contains(t, targetRegions, "ap-northeast-1")
	require.Contains(t, targetRegions, "us-gov-west-1")
	assert.Equal(t, "ami-383c1956", targetRegions["ap-northeast-1"].(map[string]any)["helper_image"])
	assert.Equal(t, "ami-c2b5d7e1", targetRegions["us-gov-west-1"].(map[string]any)["helper_image"])
}

func TestEC2Expander_ReplicationTargetRegions_Scenario1(t *testing.T) {
	accounts := scenario1Accounts()

	stageDoc, ok, err := ec2Expander{}.Expand(pipeline.StageReplicate, &jobdoc.JobDocument{}, accounts)

	require.NoError(t, err)
	require.True(t, ok)
	perAccount := stageDoc.Fields["replication_source_regions"].(map[string]any)
	assert.Equal(t, []string{"ap-northeast-1", "ap-northeast-2", "ap-northeast-3"}, perAccount["test-aws"])
	assert.Equal(t, []string{"us-gov-west-1"}, perAccount["test-aws-gov"])
}

func TestEC2Expander_UnknownPartitionErrors(t *testing.T) {
	accounts := []AccountConfig{{Name: "orphan", Partition: "missing"}}

	_, ok, err := ec2Expander{}.Expand(pipeline.StageUpload, &jobdoc.JobDocument{}, accounts)

	assert.False(t, ok)
	assert.Error(t, err)
}

func TestEC2Expander_RootSwapRequiresAMI(t *testing.T) {
	partition := PartitionConfig{HomeRegion: "ap-northeast-1", HelperImages: map[string]string{"ap-northeast-1": "ami-383c1956"}}
	acct := AccountConfig{Name: "test-aws", Partition: "aws"}.WithPartition(&partition)

	_, err := ec2HelperImage(acct, partition, true)

	assert.Error(t, err)
}

func TestEC2Expander_DeprecateAndCreatePassThrough(t *testing.T) {
	doc := &jobdoc.JobDocument{OldCloudImageName: "old-image"}

	deprecateDoc, ok, err := ec2Expander{}.Expand(pipeline.StageDeprecate, doc, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "old-image", deprecateDoc.Fields["old_cloud_image_name"])

	_, ok, err = ec2Expander{}.Expand(pipeline.StageOBS, doc, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}
