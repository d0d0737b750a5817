package obswatcher

import (
	"context"
	"encoding/json"
	"path"

	"oss.mash.dev/mash/vfs"
)

// download fetches every artifact (image + companion .sha256) for a
// complied job into DownloadDir, preserving remote mtime via the
// BuildClient contract, and returns their local paths.
func (w *Watcher) download(ctx context.Context) ([]string, error) {
	artifacts, err := w.Client.Artifacts(ctx, w.PackageID)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(artifacts))
	for _, artifact := range artifacts {
		local, err := w.Client.Download(ctx, w.PackageID, artifact, w.DownloadDir)
		if err != nil {
			return nil, err
		}
		paths = append(paths, local)
	}
	return paths, nil
}

// retire serialises the final build-result state to DoneDir/<id>.serialised
// and removes the job's on-disk description file, using golly's vfs Manager
// the way jobstore.Store does for ordinary per-stage persistence. A retire
// failure is surfaced to the caller as masherr.JobRetireError (spec §4.3:
// "A retire failure raises JobRetireError and the pass is considered
// failed").
func (w *Watcher) retire(state BuildResultState) error {
	manager := vfs.GetManager()

	descPath := "file://" + w.Job.ID + ".job"
	if w.DownloadDir != "" {
		descPath = "file://" + path.Join(w.DownloadDir, "..", w.Job.ID+".job")
	}

	donePayload, err := json.Marshal(serialisedWatcherState{Job: w.Job, Result: state})
	if err != nil {
		return err
	}
	doneURL := "file://" + path.Join(w.DoneDir, w.Job.ID+".serialised")
	file, err := manager.CreateRaw(doneURL)
	if err != nil {
		return err
	}
	if _, err := file.WriteString(string(donePayload)); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	if err := manager.DeleteRaw(descPath); err != nil {
		// Idempotent: a missing description file is not a retire failure.
		logger.WarnF("obswatcher: description file for job %s already absent: %v", w.Job.ID, err)
	}
	return nil
}

type serialisedWatcherState struct {
	Job    interface{}      `json:"job"`
	Result BuildResultState `json:"result"`
}
