package jobcreator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oss.mash.dev/mash/jobdoc"
	"oss.mash.dev/mash/pipeline"
)

func TestGenericExpander_EveryStageUpToCreate(t *testing.T) {
	accounts := []AccountConfig{{Name: "gce-one"}, {Name: "gce-two"}}
	doc := &jobdoc.JobDocument{CloudImageName: "my-image", Tests: []string{"smoke"}}
	expander := genericExpander{cloud: jobdoc.CloudGCE}

	for _, stage := range pipeline.Ordering {
		if stage == pipeline.StageOBS {
			continue
		}
		stageDoc, ok, err := expander.Expand(stage, doc, accounts)
		require.NoError(t, err)
		require.Truef(t, ok, "expected stage document for %s", stage)
		assert.Equal(t, pipeline.EnvelopeFor(stage), stageDoc.Envelope)
	}
}

func TestGenericExpander_OBSHasNoStageDocument(t *testing.T) {
	expander := genericExpander{cloud: jobdoc.CloudOCI}

	_, ok, err := expander.Expand(pipeline.StageOBS, &jobdoc.JobDocument{}, nil)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpanderFor_UnregisteredCloudErrors(t *testing.T) {
	_, err := ExpanderFor(jobdoc.Cloud("unknown"))

	assert.Error(t, err)
}

func TestExpanderFor_AllRegisteredClouds(t *testing.T) {
	for _, cloud := range []jobdoc.Cloud{jobdoc.CloudEC2, jobdoc.CloudAzure, jobdoc.CloudGCE, jobdoc.CloudOCI, jobdoc.CloudAliyun} {
		_, err := ExpanderFor(cloud)
		assert.NoError(t, err)
	}
}
