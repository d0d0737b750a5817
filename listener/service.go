// Package listener implements the generic Listener Service Framework (C5):
// the admission → listener-bind → coalesced-run-pass → retention lifecycle
// every downstream stage (uploader, tester, replicator, publisher,
// deprecator, creator) embeds (spec §4.5).
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"oss.mash.dev/mash/jobstore"
	"oss.mash.dev/mash/l3"
	"oss.mash.dev/mash/lifecycle"
	"oss.mash.dev/mash/masherr"
	"oss.mash.dev/mash/messaging"
	"oss.mash.dev/mash/notify"
	"oss.mash.dev/mash/pipeline"
	"oss.mash.dev/mash/pool"
	"oss.mash.dev/mash/stagejob"
	"oss.mash.dev/mash/transport"
	"oss.mash.dev/mash/uuid"
)

var logger = l3.Get()

// jobCreatorInbox mirrors jobcreator.jobCreatorInbox and credentials.jobCreatorInbox:
// invalid_config notices from admission/factory failures land back on the
// job creator's own queue.
const jobCreatorInbox = transport.Queue("jobcreator.service")

const defaultCredentialsTimeout = 30 * time.Second

var credentialsServiceQueue = transport.Queue(pipeline.ServiceQueue(pipeline.StageCredentials))

// job is one admitted job's in-memory state. The arrival of a listener
// message triggers a coalesced run pass: trigger is buffered to exactly 1,
// so a pass already pending absorbs a second arrival instead of queuing a
// second run (spec §4.5 "Scheduling": max_instances=1, coalesce=true). done
// is closed exactly once, by removeJob, to stop the job's runLoop goroutine.
type job struct {
	mu            sync.Mutex
	base          *stagejob.Base
	stageJob      stagejob.StageJob
	env           Envelope
	pendingStatus map[string]any
	trigger       chan struct{}
	done          chan struct{}
}

// Service is the generic per-stage framework. One Service instance is
// embedded by each stage's cmd/ entry point, parameterized by its own
// Stage and JobFactory.
type Service struct {
	Stage              pipeline.Stage
	Manager            messaging.Manager
	Scheme             string
	Store              *jobstore.Store
	Factory            JobFactory
	Workers            pool.Pool[struct{}]
	CredentialsTimeout time.Duration
	Component          *lifecycle.SimpleComponent
	// Notifier sends the job's notification_email on terminal SUCCESS at
	// last_service and on FAILED/EXCEPTION at any stage (spec §7). Nil
	// disables notification entirely.
	Notifier *notify.Notifier

	mu   sync.Mutex
	jobs map[string]*job
}

// New wires a Service for stage, generalizing golly's lifecycle.SimpleComponent
// (Start/Stop/State, the same OS-signal-aware shutdown NewSimpleComponentManager
// already wires up) into the Start/Stop hooks the rest of this module's
// services expect to register with a lifecycle.ComponentManager.
func New(stage pipeline.Stage, manager messaging.Manager, scheme string, store *jobstore.Store, factory JobFactory, workers pool.Pool[struct{}]) *Service {
	s := &Service{
		Stage:              stage,
		Manager:            manager,
		Scheme:             scheme,
		Store:              store,
		Factory:            factory,
		Workers:            workers,
		CredentialsTimeout: defaultCredentialsTimeout,
		jobs:               make(map[string]*job),
	}
	s.Component = &lifecycle.SimpleComponent{
		CompId:    string(stage) + ".listener",
		StartFunc: s.start,
		StopFunc:  s.stop,
	}
	return s
}

func (s *Service) start() error {
	if err := s.reAdmitFromDisk(); err != nil {
		return err
	}
	queue := transport.Queue(pipeline.ServiceQueue(s.Stage))
	return transport.Subscribe(s.Manager, s.Scheme, queue, s.onServiceMessage)
}

// stop leaves in-flight passes to drain on their own: spec §5 says a
// running pass is never forcibly cancelled, only observed at the next pass
// boundary, so there is nothing this Service needs to tear down eagerly —
// state already lives in Store, not in this process.
func (s *Service) stop() error {
	return nil
}

// reAdmitFromDisk restores every job present in the job directory at start
// time (spec §8 invariant 2) without running a pass for any of them: a
// restored job simply waits for its next listener message, exactly as a
// freshly admitted one does before its first status arrives.
func (s *Service) reAdmitFromDisk() error {
	docs, err := s.Store.ReAdmit()
	if err != nil {
		return err
	}
	for id, raw := range docs {
		env, err := parseEnvelope(s.Stage, raw)
		if err != nil {
			logger.WarnF("listener(%s): failed to re-admit %s: %v", s.Stage, id, err)
			continue
		}
		stageJobImpl, err := s.Factory.Build(env)
		if err != nil {
			logger.WarnF("listener(%s): factory error re-admitting %s: %v", s.Stage, id, err)
			continue
		}
		j := s.newJob(env, stageJobImpl)
		s.mu.Lock()
		s.jobs[env.ID] = j
		s.mu.Unlock()
		s.bindListener(j)
	}
	return nil
}

func (s *Service) newJob(env Envelope, stageJobImpl stagejob.StageJob) *job {
	base := stagejob.NewBase(stageJobImpl)
	base.ID = env.ID
	base.Cloud = env.Cloud
	base.UtcTime = env.UtcTime
	base.LastService = env.LastService
	base.Stage = s.Stage
	return &job{
		base:     base,
		stageJob: stageJobImpl,
		env:      env,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (s *Service) onServiceMessage(msg messaging.Message) {
	routingKey := string(transport.RoutingKeyOf(msg))
	switch routingKey {
	case pipeline.RoutingKeyJobDocument:
		s.admit(msg.ReadBytes())
	case pipeline.JobDeleteRoutingKey(s.Stage):
		s.handleJobDelete(msg.ReadBytes())
	default:
		logger.WarnF("listener(%s): dropping message with unexpected routing key %q", s.Stage, routingKey)
	}
}

// admit implements spec §4.5 "Admission": decode, build the per-cloud
// StageJob, persist, then bind the job's listener queue.
func (s *Service) admit(raw []byte) {
	env, err := parseEnvelope(s.Stage, raw)
	if err != nil {
		logger.WarnF("listener(%s): invalid job document: %v", s.Stage, err)
		_ = transport.Publish(s.Manager, s.Scheme, jobCreatorInbox, pipeline.RoutingKeyInvalidConfig, map[string]any{"reason": err.Error()})
		return
	}

	s.mu.Lock()
	if _, exists := s.jobs[env.ID]; exists {
		s.mu.Unlock()
		logger.WarnF("listener(%s): %v", s.Stage, masherr.JobAlreadyExistsError(env.ID))
		return
	}
	stageJobImpl, err := s.Factory.Build(env)
	if err != nil {
		s.mu.Unlock()
		logger.WarnF("listener(%s): factory error for job %s: %v", s.Stage, env.ID, err)
		_ = transport.Publish(s.Manager, s.Scheme, jobCreatorInbox, pipeline.RoutingKeyInvalidConfig, map[string]any{"id": env.ID, "reason": err.Error()})
		return
	}
	j := s.newJob(env, stageJobImpl)
	s.jobs[env.ID] = j
	s.mu.Unlock()

	if err := s.Store.Admit(env.ID, raw); err != nil {
		logger.ErrorF("listener(%s): failed to persist job %s: %v", s.Stage, env.ID, err)
	}
	s.bindListener(j)
}

// bindListener starts the job's coalescing run-pass loop and binds its
// <service>.listener_<id> queue (spec §4.5 "Listener binding").
func (s *Service) bindListener(j *job) {
	go s.runLoop(j)

	queue := transport.Queue(pipeline.ListenerQueue(s.Stage, j.env.ID))
	if err := transport.Subscribe(s.Manager, s.Scheme, queue, func(msg messaging.Message) {
		s.onListenerMessage(j, msg)
	}); err != nil {
		logger.ErrorF("listener(%s): failed to bind listener queue for job %s: %v", s.Stage, j.env.ID, err)
	}
}

func (s *Service) onListenerMessage(j *job, msg messaging.Message) {
	if !s.jobExists(j.env.ID) {
		return
	}
	var body map[string]any
	if err := msg.ReadJSON(&body); err != nil {
		logger.WarnF("listener(%s): malformed listener message for job %s: %v", s.Stage, j.env.ID, err)
		return
	}

	j.mu.Lock()
	j.pendingStatus = body
	j.mu.Unlock()

	select {
	case j.trigger <- struct{}{}:
	default:
		// a pass is already pending or running; it reads pendingStatus live,
		// so this arrival is absorbed rather than queued (coalesce=true).
	}
}

func (s *Service) runLoop(j *job) {
	for {
		select {
		case <-j.trigger:
			s.runPass(j)
		case <-j.done:
			return
		}
	}
}

func (s *Service) jobExists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// runPass implements spec §4.5 "Run pass" steps 1-5. max_instances=1 is
// structural here: only one goroutine (this job's runLoop) ever calls
// runPass for a given job id.
func (s *Service) runPass(j *job) {
	token, err := s.Workers.Checkout()
	if err != nil {
		logger.ErrorF("listener(%s): worker pool checkout failed for job %s: %v", s.Stage, j.env.ID, err)
		return
	}
	defer s.Workers.Checkin(token)

	j.mu.Lock()
	status := j.pendingStatus
	j.mu.Unlock()

	fields, ok := unwrapEnvelope(status)
	if !ok {
		logger.WarnF("listener(%s): job %s triggered with no listener status, skipping pass", s.Stage, j.env.ID)
		return
	}

	required := append([]string{"id"}, j.stageJob.RequiredListenerArgs()...)
	if err := validateRequired(fields, required); err != nil {
		s.cleanup(j, err.Error())
		return
	}
	if upstreamStatus := stringField(fields, "status"); upstreamStatus != "success" {
		s.cleanup(j, fmt.Sprintf("upstream status %q", upstreamStatus))
		return
	}

	if needsCredentials(j.stageJob) {
		creds, err := s.requestCredentials(j)
		if err != nil {
			s.publishResult(j, stagejob.Result{Status: stagejob.StatusException, Msg: err.Error()})
			s.retain(j)
			return
		}
		j.base.Credentials = creds
	}

	j.base.StatusMsg = fields
	result := j.base.ProcessJob(context.Background())
	s.publishResult(j, result)
	s.retain(j)
}

// requestCredentials publishes a credentials_request and blocks on its
// own short-lived reply queue (spec §5: "a short-lived cooperative task")
// until a reply arrives or CredentialsTimeout elapses.
func (s *Service) requestCredentials(j *job) (map[string]string, error) {
	requestID, err := uuid.V4()
	if err != nil {
		return nil, fmt.Errorf("generate credentials request id: %w", err)
	}
	replyQueue := transport.Queue(pipeline.CredentialsQueue(j.env.ID, requestID.String()))

	replyCh := make(chan map[string]string, 1)
	errCh := make(chan error, 1)
	go func() {
		msg, err := s.Manager.Receive(transport.URL(s.Scheme, replyQueue))
		if err != nil {
			errCh <- err
			return
		}
		var body map[string]any
		if err := msg.ReadJSON(&body); err != nil {
			errCh <- err
			return
		}
		raw, _ := body["credentials"].(map[string]any)
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			if str, ok := v.(string); ok {
				out[k] = str
			}
		}
		replyCh <- out
	}()

	payload := map[string]any{
		"job_id":     j.env.ID,
		"request_id": requestID.String(),
		"provider":   j.env.Cloud,
		"accounts":   stringSliceField(j.env.Fields, "accounts"),
	}
	if err := transport.Publish(s.Manager, s.Scheme, credentialsServiceQueue, pipeline.RoutingKeyCredentialsRequest, payload); err != nil {
		return nil, err
	}

	timeout := s.CredentialsTimeout
	if timeout <= 0 {
		timeout = defaultCredentialsTimeout
	}
	select {
	case creds := <-replyCh:
		return creds, nil
	case err := <-errCh:
		return nil, err
	case <-time.After(timeout):
		return nil, masherr.CredentialsTimeoutError(j.env.ID, timeout.String())
	}
}

// publishResult builds this stage's status envelope ({<stage>_result:
// {id, status, …}}) and forwards it to the next stage's listener queue
// (spec §4.5 step 4), unless this stage is the job's last_service or a
// job_delete discarded this job mid-pass (spec §5: "its output is
// discarded").
func (s *Service) publishResult(j *job, result stagejob.Result) {
	if !s.jobExists(j.env.ID) {
		return
	}

	s.notifyTerminal(j, result)

	fields := map[string]any{
		"id":     j.env.ID,
		"status": result.Status.WireStatus(),
	}
	if result.Msg != "" {
		fields["msg"] = result.Msg
	}
	if result.CloudImageName != "" {
		fields["cloud_image_name"] = result.CloudImageName
	}
	if result.SourceRegions != nil {
		fields["source_regions"] = result.SourceRegions
	}
	for _, key := range j.stageJob.RequiredStatusArgs() {
		if v, ok := j.base.StatusMsg[key]; ok {
			fields[key] = v
		}
	}

	idx := pipeline.IndexOf(s.Stage)
	lastIdx := pipeline.IndexOf(j.env.LastService)
	if idx < 0 || lastIdx < 0 || idx >= lastIdx {
		return
	}
	next := pipeline.Ordering[idx+1]
	queue := transport.Queue(pipeline.ListenerQueue(next, j.env.ID))
	payload := map[string]any{string(s.Stage) + "_result": fields}
	if err := transport.PublishWithRetry(s.Manager, s.Scheme, queue, transport.RoutingKey(pipeline.ListenerRoutingKey(j.env.ID)), payload, nil); err != nil {
		logger.ErrorF("listener(%s): failed to publish result for job %s: %v", s.Stage, j.env.ID, err)
	}
}

// notifyTerminal dispatches the job's notification_email on a terminal
// outcome: SUCCESS reached at the job's own last_service, or FAILED/
// EXCEPTION at any stage (spec §7). Any other result (a non-terminal
// SUCCESS forwarded to a later stage) is silent.
func (s *Service) notifyTerminal(j *job, result stagejob.Result) {
	if s.Notifier == nil {
		return
	}
	to := stringField(j.env.Fields, "notification_email")
	if to == "" {
		return
	}
	terminalSuccess := result.Status == stagejob.StatusSuccess && s.Stage == j.env.LastService
	failure := result.Status == stagejob.StatusFailed || result.Status == stagejob.StatusException
	if !terminalSuccess && !failure {
		return
	}
	mode := stringField(j.env.Fields, "notification_type")
	note := notify.Notification{
		To:     to,
		JobID:  j.env.ID,
		Cloud:  j.env.Cloud,
		Stage:  string(s.Stage),
		Status: string(result.Status),
		Msg:    result.Msg,
	}
	if err := s.Notifier.Dispatch(note, mode); err != nil {
		logger.ErrorF("listener(%s): failed to notify job %s: %v", s.Stage, j.env.ID, err)
	}
}

// cleanup implements the "_cleanup_job" path of spec §4.5 step 1: publish
// the current (failed) status downstream, then retire the job.
func (s *Service) cleanup(j *job, reason string) {
	logger.WarnF("listener(%s): cleaning up job %s: %s", s.Stage, j.env.ID, reason)
	s.publishResult(j, stagejob.Result{Status: stagejob.StatusFailed, Msg: reason})
	s.removeJob(j.env.ID)
}

// retain implements spec §4.5 step 5: nonstop jobs (utctime=="always") stay
// admitted for the next upstream event; everything else is retired after
// one pass.
func (s *Service) retain(j *job) {
	if j.env.IsNonstop() {
		return
	}
	s.removeJob(j.env.ID)
}

// removeJob deletes the job's in-memory and on-disk state and stops its
// runLoop goroutine. It is safe to call more than once for the same id:
// only the caller that actually removes the map entry closes done, so a
// job_delete racing a pass's own retain/cleanup never double-closes it.
func (s *Service) removeJob(id string) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	close(j.done)
	if err := s.Store.Delete(id); err != nil {
		logger.ErrorF("listener(%s): failed to delete job %s from store: %v", s.Stage, id, err)
	}
}

// handleJobDelete implements spec §4.5 "Cancellation": a <stage>_job_delete
// document removes the job, tolerating an absent id (already completed or
// never admitted here).
func (s *Service) handleJobDelete(raw []byte) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.ID == "" {
		logger.WarnF("listener(%s): malformed job_delete: %v", s.Stage, err)
		return
	}
	if !s.jobExists(req.ID) {
		logger.WarnF("listener(%s): %v", s.Stage, masherr.JobNotFoundError(req.ID))
		return
	}
	s.removeJob(req.ID)
}
