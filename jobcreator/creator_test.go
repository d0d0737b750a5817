package jobcreator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oss.mash.dev/mash/jobdoc"
	"oss.mash.dev/mash/messaging"
	"oss.mash.dev/mash/pipeline"
	"oss.mash.dev/mash/transport"
)

func receiveEnvelope(t *testing.T, manager messaging.Manager, queue transport.Queue) map[string]any {
	t.Helper()
	msg, err := manager.Receive(transport.URL(messaging.LocalMsgScheme, queue))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, msg.ReadJSON(&body))
	return body
}

func newTestAccountsConfig() *AccountsConfig {
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
	return &AccountsConfig{
		Partitions: map[string]PartitionConfig{"aws": awsPartition, "aws-us-gov": govPartition},
		Accounts: map[string]AccountConfig{
			"test-aws":     {Name: "test-aws", Partition: "aws", AdditionalRegions: []string{"ap-northeast-3"}},
			"test-aws-gov": {Name: "test-aws-gov", Partition: "aws-us-gov"},
		},
		Groups: map[string]map[string][]string{
			"alice": {"test": {"test-aws", "test-aws-gov"}},
		},
	}
}

// TestSubmit_StopsAtLastService reproduces spec.md §8 scenario 4: a job
// with last_service:"test" publishes the credentials bootstrap and the
// upload/test documents; the test does not check that later stages get none.
func TestSubmit_StopsAtLastService(t *testing.T) {
	manager := messaging.GetManager()
	svc := New(manager, messaging.LocalMsgScheme, newTestAccountsConfig())

	raw, err := json.Marshal(map[string]any{
		"id":              "J1",
		"cloud":           "ec2",
		"utctime":         "now",
		"last_service":    "test",
		"requesting_user": "alice",
		"cloud_groups":    []string{"test"},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Submit(raw))

	creds := receiveEnvelope(t, manager, transport.Queue(pipeline.ServiceQueue(pipeline.StageCredentials)))
	assert.Contains(t, creds, pipeline.EnvelopeCredentials)

	uploaderDoc := receiveEnvelope(t, manager, transport.Queue(pipeline.ServiceQueue(pipeline.StageUpload)))
	require.Contains(t, uploaderDoc, pipeline.EnvelopeUploader)

	testerDoc := receiveEnvelope(t, manager, transport.Queue(pipeline.ServiceQueue(pipeline.StageTest)))
	require.Contains(t, testerDoc, pipeline.EnvelopeTesting)
}

func TestSubmit_UnknownAccountIsValidationError(t *testing.T) {
	manager := messaging.GetManager()
	svc := New(manager, messaging.LocalMsgScheme, &AccountsConfig{})

	raw, err := json.Marshal(map[string]any{
		"id":              "J-unknown-account",
		"cloud":           "ec2",
		"utctime":         "now",
		"last_service":    "create",
		"requesting_user": "bob",
		"cloud_accounts":  []map[string]any{{"name": "ghost-account"}},
	})
	require.NoError(t, err)

	err = svc.Submit(raw)

	assert.Error(t, err)
}

func TestSubmit_InvalidMessagePublishesInvalidConfig(t *testing.T) {
	manager := messaging.GetManager()
	svc := New(manager, messaging.LocalMsgScheme, &AccountsConfig{})

	err := svc.Submit([]byte(`{"cloud":"ec2"}`))

	assert.Error(t, err)

	invalidDoc := receiveEnvelope(t, manager, jobCreatorInbox)
	assert.NotEmpty(t, invalidDoc["reason"])
}

func TestSubmit_AssignsIDWhenAbsent(t *testing.T) {
	manager := messaging.GetManager()
	svc := New(manager, messaging.LocalMsgScheme, newTestAccountsConfig())

	raw, err := json.Marshal(map[string]any{
		"cloud":           "ec2",
		"utctime":         "now",
		"last_service":    "obs",
		"requesting_user": "alice",
		"cloud_groups":    []string{"test"},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Submit(raw))

	creds := receiveEnvelope(t, manager, transport.Queue(pipeline.ServiceQueue(pipeline.StageCredentials)))
	payload := creds[pipeline.EnvelopeCredentials].(map[string]any)
	assert.NotEmpty(t, payload["id"])

	obsDoc := receiveEnvelope(t, manager, transport.Queue(pipeline.ServiceQueue(pipeline.StageOBS)))
	fields := obsDoc[pipeline.EnvelopeOBS].(map[string]any)
	assert.Equal(t, payload["id"], fields["id"])
}

func TestForwardAccountMessage_ForwardsVerbatim(t *testing.T) {
	manager := messaging.GetManager()
	svc := New(manager, messaging.LocalMsgScheme, &AccountsConfig{})

	raw, err := json.Marshal(map[string]any{"account_name": "test-aws", "provider": "ec2", "requesting_user": "alice"})
	require.NoError(t, err)

	require.NoError(t, svc.ForwardAccountMessage(pipeline.RoutingKeyAddAccount, raw))

	forwarded := receiveEnvelope(t, manager, transport.Queue(pipeline.ServiceQueue(pipeline.StageCredentials)))
	assert.Equal(t, "test-aws", forwarded["account_name"])
}

func TestForwardAccountMessage_MalformedIsDroppedNotForwarded(t *testing.T) {
	manager := messaging.GetManager()
	svc := New(manager, messaging.LocalMsgScheme, &AccountsConfig{})

	err := svc.ForwardAccountMessage(pipeline.RoutingKeyAddAccount, []byte(`not json`))

	assert.NoError(t, err)
}

func TestApplyOverride_OnlyNonZeroFieldsOverlay(t *testing.T) {
	base := AccountConfig{Name: "test-aws", Region: "ap-northeast-1", ResourceGroup: "keep-me"}
	override := applyOverride(base, jobdoc.CloudAccount{Name: "test-aws", Region: "ap-southeast-1"})

	assert.Equal(t, "ap-southeast-1", override.Region)
	assert.Equal(t, "keep-me", override.ResourceGroup)
}

// TestDispatch_JobDocumentRoutesToSubmit exercises Start/dispatch's
// job_document branch end to end: a message arriving on the job creator's
// own inbox reaches Submit and is fanned out across the pipeline exactly as
// a direct Submit call would.
func TestDispatch_JobDocumentRoutesToSubmit(t *testing.T) {
	manager := messaging.GetManager()
	svc := New(manager, messaging.LocalMsgScheme, newTestAccountsConfig())
	require.NoError(t, svc.Start())

	doc := map[string]any{
		"cloud": "ec2", "utctime": "now", "last_service": "obs",
		"requesting_user": "alice", "cloud_accounts": []map[string]any{{"name": "test-aws"}},
	}
	require.NoError(t, transport.Publish(manager, messaging.LocalMsgScheme, jobCreatorInbox, pipeline.RoutingKeyJobDocument, doc))

	receiveEnvelope(t, manager, transport.Queue(pipeline.ServiceQueue(pipeline.StageCredentials)))
	receiveEnvelope(t, manager, transport.Queue(pipeline.ServiceQueue(pipeline.StageOBS)))
}

// TestDispatch_InvalidConfigCancelsJob exercises the path a downstream
// stage's rejection takes back through the job creator: an invalid_config
// report fans a job_delete out to every stage, the same as an explicit
// Delete call.
func TestDispatch_InvalidConfigCancelsJob(t *testing.T) {
	manager := messaging.GetManager()
	svc := New(manager, messaging.LocalMsgScheme, &AccountsConfig{})
	require.NoError(t, svc.Start())

	report := map[string]any{"id": "job-rejected", "reason": "unauthorized account"}
	require.NoError(t, transport.Publish(manager, messaging.LocalMsgScheme, jobCreatorInbox, pipeline.RoutingKeyInvalidConfig, report))

	deleteMsg := receiveEnvelope(t, manager, transport.Queue(pipeline.ServiceQueue(pipeline.StageOBS)))
	assert.Equal(t, "job-rejected", deleteMsg["id"])
}
