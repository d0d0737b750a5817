// Package obswatcher implements the Build-Result Watcher (C3): a
// poll + lock + evaluate + notify state machine, one instance per admitted
// build-result job, scheduled on a shared chrono.Scheduler.
package obswatcher

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"time"

	"oss.mash.dev/mash/chrono"
	"oss.mash.dev/mash/jobdoc"
	"oss.mash.dev/mash/l3"
	"oss.mash.dev/mash/masherr"
)

var logger = l3.Get()

// Package describes one build artifact OBS tracks for a package set.
type Package struct {
	Name    string
	Version string
	Release string
	Arch    string
	MTime   time.Time
}

// nameVersionRelease formats a package the way packages_checksum's source
// list does: "name-version-release.arch".
func (p Package) nameVersionRelease() string {
	return p.Name + "-" + p.Version + "-" + p.Release + "." + p.Arch
}

// Artifact is a downloadable build result file (the image itself, or its
// companion .sha256).
type Artifact struct {
	RemoteName string
	MTime      time.Time
}

// PackageLock is the cooperative remote lock over the build-service
// package metadata (spec §5: "no local mutex for it", the lock is remote
// state, not a goroutine-local primitive).
type PackageLock interface {
	// TryLock attempts to acquire the lock, returning false if another
	// actor already holds it.
	TryLock(ctx context.Context, packageID string) (bool, error)
	Unlock(ctx context.Context, packageID string) error
}

// BuildClient is the opaque interface to the external build service. Only
// its contract is specified; cloud/build-service SDK bodies are out of
// scope (spec §1).
type BuildClient interface {
	// FetchPackages returns the current package list and the derived image
	// version for packageID ("unknown" if the build has not produced an
	// image yet).
	FetchPackages(ctx context.Context, packageID string) (packages []Package, imageVersion string, err error)
	// Artifacts lists the downloadable files for a completed build.
	Artifacts(ctx context.Context, packageID string) ([]Artifact, error)
	// Download fetches one artifact into destDir, preserving its remote
	// mtime, and returns the local path.
	Download(ctx context.Context, packageID string, artifact Artifact, destDir string) (string, error)
}

// ConditionStatus pairs a submitted condition with its evaluated result.
type ConditionStatus struct {
	Condition jobdoc.Condition
	Status    bool
}

// JobStatus values for BuildResultState.
const (
	JobStatusPrepared = "prepared"
	JobStatusSuccess  = "success"
	JobStatusFailed   = "failed"
)

// BuildResultState is the external build-service object describing a
// newly built image (spec §3, "Build-Result State").
type BuildResultState struct {
	Version          string
	PackagesChecksum string
	Conditions       []ConditionStatus
	JobStatus        string
	ImageSource      []string
}

// compliant reports job_status=success iff version is known AND every
// condition's status is true (spec §4.3 step 4).
func (s *BuildResultState) compliant() bool {
	if s.Version == "" || s.Version == "unknown" {
		return false
	}
	for _, c := range s.Conditions {
		if !c.Status {
			return false
		}
	}
	return true
}

// ResultCallback is invoked once a watcher's conditions are complied with;
// it publishes the derived image descriptor to the next stage's listener
// queue.
type ResultCallback func(job *jobdoc.JobDocument, state BuildResultState)

// LogCallback is invoked when a pass does not comply (and is not nonstop),
// so the caller can still observe the last known status.
type LogCallback func(job *jobdoc.JobDocument, state BuildResultState)

// Watcher polls one admitted build-result job on an interval (nonstop jobs)
// or once at a fixed time (single-shot jobs).
type Watcher struct {
	Job          *jobdoc.JobDocument
	PackageID    string
	Lock         PackageLock
	Client       BuildClient
	DownloadDir  string
	DoneDir      string
	OnResult     ResultCallback
	OnLog        LogCallback
	PollInterval time.Duration
}

const defaultPollInterval = 5 * time.Second

// Register schedules this watcher's poll job. max_instances=1 is enforced
// by the scheduler's per-job-id single-flight execution (chrono.Scheduler
// never runs two invocations of the same job id concurrently); a skipped
// overlapping run still triggers OnLog via WithOnError so the consumer can
// observe the last known status (spec §4.3: "scheduling model").
func (w *Watcher) Register(scheduler chrono.Scheduler, retireJob func(id string)) error {
	interval := w.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	run := func(ctx context.Context) error {
		state, retired, err := w.Poll(ctx)
		if retired {
			retireJob(w.Job.ID)
			if err := scheduler.RemoveJob(w.Job.ID); err != nil && err != chrono.ErrJobNotFound {
				logger.WarnF("obswatcher: failed to remove completed job %s: %v", w.Job.ID, err)
			}
			return nil
		}
		if err != nil {
			logger.ErrorF("obswatcher: pass failed for job %s: %v", w.Job.ID, err)
		}
		if !state.compliant() && w.OnLog != nil {
			w.OnLog(w.Job, state)
		}
		return nil
	}
	onError := chrono.WithOnError(func(jobID string, err error) {
		logger.WarnF("obswatcher: skipped overlapping poll for job %s: %v", jobID, err)
		if w.OnLog != nil {
			w.OnLog(w.Job, BuildResultState{JobStatus: JobStatusFailed})
		}
	})
	if w.Job.IsNonstop() {
		return scheduler.AddIntervalJob(w.Job.ID, w.Job.ID, run, interval, onError)
	}
	return scheduler.AddOneShotJob(w.Job.ID, w.Job.ID, run, 0, onError)
}

// Poll runs one pass of the state machine (spec §4.3 steps 1-7). It returns
// the evaluated state, whether the job was retired (and should be
// descheduled), and any error from the pass.
func (w *Watcher) Poll(ctx context.Context) (BuildResultState, bool, error) {
	// Step 1: lock.
	acquired, err := w.Lock.TryLock(ctx, w.PackageID)
	if err != nil {
		logger.WarnF("obswatcher: lock acquisition error for %s: %v, retrying next tick", w.PackageID, err)
		return BuildResultState{JobStatus: JobStatusFailed}, false, masherr.RemoteUnavailable(w.Job.ID, err.Error())
	}
	if !acquired {
		return BuildResultState{JobStatus: JobStatusFailed}, false, nil
	}
	defer func() {
		if unlockErr := w.Lock.Unlock(ctx, w.PackageID); unlockErr != nil {
			logger.WarnF("obswatcher: unlock error for %s: %v", w.PackageID, unlockErr)
		}
	}()

	// Step 2: fetch + checksum.
	packages, imageVersion, err := w.Client.FetchPackages(ctx, w.PackageID)
	if err != nil {
		return BuildResultState{JobStatus: JobStatusFailed}, false, masherr.RemoteUnavailable(w.Job.ID, err.Error())
	}
	state := BuildResultState{
		Version:          imageVersion,
		PackagesChecksum: packagesChecksum(packages),
		JobStatus:        JobStatusPrepared,
	}

	// Step 3: evaluate conditions.
	for _, cond := range w.Job.Conditions {
		status, evalErr := w.evaluate(cond, imageVersion, packages)
		if evalErr != nil {
			return BuildResultState{JobStatus: JobStatusFailed}, false, evalErr
		}
		state.Conditions = append(state.Conditions, ConditionStatus{Condition: cond, Status: status})
	}

	// Step 4: complied?
	if !state.compliant() {
		if !w.Job.IsNonstop() {
			state.JobStatus = JobStatusFailed
			if w.OnLog != nil {
				w.OnLog(w.Job, state)
			}
		}
		// Step 7: nonstop jobs simply wait for the next interval.
		return state, false, nil
	}

	// Step 5: download, retire, notify.
	sources, err := w.download(ctx)
	if err != nil {
		return BuildResultState{JobStatus: JobStatusFailed}, false, masherr.RemoteUnavailable(w.Job.ID, err.Error())
	}
	state.JobStatus = JobStatusSuccess
	state.ImageSource = sources

	if err := w.retire(state); err != nil {
		return state, false, masherr.JobRetireError(w.Job.ID, err.Error())
	}
	if w.OnResult != nil {
		w.OnResult(w.Job, state)
	}
	return state, !w.Job.IsNonstop(), nil
}

func (w *Watcher) evaluate(cond jobdoc.Condition, imageVersion string, packages []Package) (bool, error) {
	if cond.IsImageCondition() {
		op, ver, err := ParseOperator(cond.Image)
		if err != nil {
			return false, err
		}
		if imageVersion == "" || imageVersion == "unknown" {
			return false, nil
		}
		return Satisfies(imageVersion, op, ver), nil
	}
	return evaluatePackageCondition(cond.Package, packages)
}

func evaluatePackageCondition(spec []string, packages []Package) (bool, error) {
	if len(spec) < 3 {
		return false, nil
	}
	name, opStr, constraintVer := spec[0], spec[1], spec[2]
	var rel string
	if len(spec) > 3 {
		rel = spec[3]
	}
	if opStr == string(opAmbiguousEquals) {
		return false, masherr.VersionExpressionError(opStr + constraintVer)
	}
	op := Operator(opStr)
	for _, pkg := range packages {
		if pkg.Name != name {
			continue
		}
		if !Satisfies(pkg.Version, op, constraintVer) {
			continue
		}
		if rel != "" && pkg.Release != rel {
			continue
		}
		return true, nil
	}
	return false, nil
}

func packagesChecksum(packages []Package) string {
	names := make([]string, len(packages))
	for i, p := range packages {
		names[i] = p.nameVersionRelease()
	}
	sort.Strings(names)
	h := md5.New()
	for _, n := range names {
		_, _ = h.Write([]byte(n))
	}
	return hex.EncodeToString(h.Sum(nil))
}
