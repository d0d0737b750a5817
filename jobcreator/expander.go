package jobcreator

import (
	"fmt"

	"oss.mash.dev/mash/jobdoc"
	"oss.mash.dev/mash/pipeline"
)

// StageDoc is one stage's sub-document: the envelope key it is published
// under (e.g. "uploader_job") and its stage-specific fields, not yet merged
// with the job base {id, utctime}.
type StageDoc struct {
	Envelope string
	Fields   map[string]any
}

// CloudExpander builds every per-stage sub-document for one cloud, given
// the job document and its resolved target accounts. Replaces the
// teacher-domain's per-cloud BaseJob/AzureJob subclass tree (spec §9,
// "Dynamic routing tables → static dispatch maps").
type CloudExpander interface {
	// Expand returns the stage-specific fields for stage, or (StageDoc{}, false, nil)
	// if this cloud has no sub-document for that stage (the caller
	// publishes nothing for it, as opposed to publishing a NoOp — only
	// run_job is ever a NoOp, per spec §4.6; a cloud that genuinely skips a
	// stage document is handled the same way as last_service truncation).
	Expand(stage pipeline.Stage, doc *jobdoc.JobDocument, accounts []AccountConfig) (StageDoc, bool, error)
}

// expanders is the static compile-time registry of cloud → CloudExpander,
// populated by each cloud's init().
var expanders = map[jobdoc.Cloud]CloudExpander{}

func register(cloud jobdoc.Cloud, expander CloudExpander) {
	expanders[cloud] = expander
}

// ExpanderFor returns the registered CloudExpander for cloud.
func ExpanderFor(cloud jobdoc.Cloud) (CloudExpander, error) {
	expander, ok := expanders[cloud]
	if !ok {
		return nil, fmt.Errorf("jobcreator: no stage-document expander registered for cloud %q", cloud)
	}
	return expander, nil
}
