package listener

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oss.mash.dev/mash/jobstore"
	"oss.mash.dev/mash/messaging"
	"oss.mash.dev/mash/pipeline"
	"oss.mash.dev/mash/pool"
	"oss.mash.dev/mash/stagejob"
	"oss.mash.dev/mash/transport"
)

func newTestService(t *testing.T, stage pipeline.Stage, factory JobFactory) *Service {
	t.Helper()
	store, err := jobstore.Open(t.TempDir())
	require.NoError(t, err)
	workers, err := pool.NewPool[struct{}](func() (struct{}, error) { return struct{}{}, nil }, func(struct{}) error { return nil }, 0, 4, 5)
	require.NoError(t, err)
	svc := New(stage, messaging.GetManager(), messaging.LocalMsgScheme, store, factory, workers)
	svc.CredentialsTimeout = 200 * time.Millisecond
	return svc
}

func receiveBody(t *testing.T, queue transport.Queue) map[string]any {
	t.Helper()
	msg, err := messaging.GetManager().Receive(transport.URL(messaging.LocalMsgScheme, queue))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, msg.ReadJSON(&body))
	return body
}

// recordingJob is a stagejob.StageJob that records every RunJob invocation
// and returns a fixed Result, standing in for a real per-cloud job.
type recordingJob struct {
	calls     *int
	result    stagejob.Result
	listener  []string
	statusReq []string
}

func (r recordingJob) RunJob(ctx context.Context) stagejob.Result {
	*r.calls++
	return r.result
}
func (r recordingJob) RequiredListenerArgs() []string { return r.listener }
func (r recordingJob) RequiredStatusArgs() []string   { return r.statusReq }

func admitJob(t *testing.T, svc *Service, id, cloud, lastService, utcTime string) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		pipeline.EnvelopeFor(svc.Stage): map[string]any{
			"id":           id,
			"cloud":        cloud,
			"utctime":      utcTime,
			"last_service": lastService,
		},
	})
	require.NoError(t, err)
	svc.admit(raw)
}

func sendListenerStatus(t *testing.T, jobID string, fields map[string]any) {
	t.Helper()
	payload := map[string]any{"upstream_result": fields}
	queue := transport.Queue(pipeline.ListenerQueue(pipeline.StageUpload, jobID))
	err := transport.Publish(messaging.GetManager(), messaging.LocalMsgScheme, queue, transport.RoutingKey(pipeline.ListenerRoutingKey(jobID)), payload)
	require.NoError(t, err)
}

func TestAdmit_DuplicateIDIsRejected(t *testing.T) {
	calls := 0
	factory := JobFactory{"aws": func(env Envelope) (stagejob.StageJob, error) {
		return recordingJob{calls: &calls, result: stagejob.Result{Status: stagejob.StatusSuccess}}, nil
	}}
	svc := newTestService(t, pipeline.StageUpload, factory)

	admitJob(t, svc, "job-dup", "aws", string(pipeline.StageUpload), "now")
	assert.True(t, svc.jobExists("job-dup"))

	admitJob(t, svc, "job-dup", "aws", string(pipeline.StageUpload), "now")
	svc.mu.Lock()
	count := len(svc.jobs)
	svc.mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestRunPass_SuccessPublishesResultAndRetires(t *testing.T) {
	calls := 0
	factory := JobFactory{"aws": func(env Envelope) (stagejob.StageJob, error) {
		return recordingJob{calls: &calls, result: stagejob.Result{Status: stagejob.StatusSuccess, CloudImageName: "ami-123"}}, nil
	}}
	svc := newTestService(t, pipeline.StageUpload, factory)
	admitJob(t, svc, "job-1", "aws", string(pipeline.StageTest), "now")

	sendListenerStatus(t, "job-1", map[string]any{"status": "success"})

	result := receiveBody(t, transport.Queue(pipeline.ListenerQueue(pipeline.StageTest, "job-1")))
	envelope := result["upload_result"].(map[string]any)
	assert.Equal(t, "success", envelope["status"])
	assert.Equal(t, "ami-123", envelope["cloud_image_name"])
	assert.Equal(t, 1, calls)

	waitUntil(t, func() bool { return !svc.jobExists("job-1") })
}

func TestRunPass_UpstreamFailureStatusCleansUpWithoutRunningJob(t *testing.T) {
	calls := 0
	factory := JobFactory{"aws": func(env Envelope) (stagejob.StageJob, error) {
		return recordingJob{calls: &calls, result: stagejob.Result{Status: stagejob.StatusSuccess}}, nil
	}}
	svc := newTestService(t, pipeline.StageUpload, factory)
	admitJob(t, svc, "job-2", "aws", string(pipeline.StageTest), "now")

	sendListenerStatus(t, "job-2", map[string]any{"status": "error"})

	result := receiveBody(t, transport.Queue(pipeline.ListenerQueue(pipeline.StageTest, "job-2")))
	envelope := result["upload_result"].(map[string]any)
	assert.Equal(t, "FAILED", envelope["status"])
	assert.Equal(t, 0, calls)

	waitUntil(t, func() bool { return !svc.jobExists("job-2") })
}

func TestRunPass_MissingRequiredFieldCleansUp(t *testing.T) {
	calls := 0
	factory := JobFactory{"aws": func(env Envelope) (stagejob.StageJob, error) {
		return recordingJob{calls: &calls, result: stagejob.Result{Status: stagejob.StatusSuccess}, listener: []string{"source_regions"}}, nil
	}}
	svc := newTestService(t, pipeline.StageUpload, factory)
	admitJob(t, svc, "job-3", "aws", string(pipeline.StageTest), "now")

	sendListenerStatus(t, "job-3", map[string]any{"status": "success"})

	waitUntil(t, func() bool { return !svc.jobExists("job-3") })
	assert.Equal(t, 0, calls)
}

func TestRunPass_NonstopJobStaysAdmittedAcrossPasses(t *testing.T) {
	calls := 0
	factory := JobFactory{"aws": func(env Envelope) (stagejob.StageJob, error) {
		return recordingJob{calls: &calls, result: stagejob.Result{Status: stagejob.StatusSuccess}}, nil
	}}
	svc := newTestService(t, pipeline.StageUpload, factory)
	admitJob(t, svc, "job-4", "aws", string(pipeline.StageTest), "always")

	sendListenerStatus(t, "job-4", map[string]any{"status": "success"})
	receiveBody(t, transport.Queue(pipeline.ListenerQueue(pipeline.StageTest, "job-4")))
	waitUntil(t, func() bool { return calls == 1 })
	assert.True(t, svc.jobExists("job-4"))

	sendListenerStatus(t, "job-4", map[string]any{"status": "success"})
	receiveBody(t, transport.Queue(pipeline.ListenerQueue(pipeline.StageTest, "job-4")))
	waitUntil(t, func() bool { return calls == 2 })
	assert.True(t, svc.jobExists("job-4"))
}

func TestJobDelete_RemovesJobAndDiscardsLateArrival(t *testing.T) {
	calls := 0
	factory := JobFactory{"aws": func(env Envelope) (stagejob.StageJob, error) {
		return recordingJob{calls: &calls, result: stagejob.Result{Status: stagejob.StatusSuccess}}, nil
	}}
	svc := newTestService(t, pipeline.StageUpload, factory)
	admitJob(t, svc, "job-5", "aws", string(pipeline.StageTest), "always")
	require.True(t, svc.jobExists("job-5"))

	svc.handleJobDelete([]byte(`{"id":"job-5"}`))
	assert.False(t, svc.jobExists("job-5"))

	sendListenerStatus(t, "job-5", map[string]any{"status": "success"})
	time.Sleep(20 * time.Millisecond)
	assert.False(t, svc.jobExists("job-5"))
	assert.Equal(t, 0, calls)
}

func TestLastService_SuppressesPublishPastFinalStage(t *testing.T) {
	calls := 0
	factory := JobFactory{"aws": func(env Envelope) (stagejob.StageJob, error) {
		return recordingJob{calls: &calls, result: stagejob.Result{Status: stagejob.StatusSuccess}}, nil
	}}
	svc := newTestService(t, pipeline.StageCreate, factory)
	raw, err := json.Marshal(map[string]any{
		pipeline.EnvelopeFor(pipeline.StageCreate): map[string]any{
			"id": "job-6", "cloud": "aws", "utctime": "now", "last_service": string(pipeline.StageCreate),
		},
	})
	require.NoError(t, err)
	svc.admit(raw)

	payload := map[string]any{"deprecate_result": map[string]any{"status": "success"}}
	queue := transport.Queue(pipeline.ListenerQueue(pipeline.StageCreate, "job-6"))
	require.NoError(t, transport.Publish(messaging.GetManager(), messaging.LocalMsgScheme, queue, transport.RoutingKey(pipeline.ListenerRoutingKey("job-6")), payload))

	waitUntil(t, func() bool { return calls == 1 })
	waitUntil(t, func() bool { return !svc.jobExists("job-6") })
}

func TestReAdmitFromDisk_RestoresJobsWithoutRunningAPass(t *testing.T) {
	calls := 0
	factory := JobFactory{"aws": func(env Envelope) (stagejob.StageJob, error) {
		return recordingJob{calls: &calls, result: stagejob.Result{Status: stagejob.StatusSuccess}}, nil
	}}
	dir := t.TempDir()
	store, err := jobstore.Open(dir)
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]any{
		pipeline.EnvelopeFor(pipeline.StageUpload): map[string]any{
			"id": "job-7", "cloud": "aws", "utctime": "now", "last_service": string(pipeline.StageTest),
		},
	})
	require.NoError(t, err)
	require.NoError(t, store.Admit("job-7", raw))

	workers, err := pool.NewPool[struct{}](func() (struct{}, error) { return struct{}{}, nil }, func(struct{}) error { return nil }, 0, 4, 5)
	require.NoError(t, err)
	svc := New(pipeline.StageUpload, messaging.GetManager(), messaging.LocalMsgScheme, store, factory, workers)
	require.NoError(t, svc.reAdmitFromDisk())

	assert.True(t, svc.jobExists("job-7"))
	assert.Equal(t, 0, calls)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within timeout")
	}
}
