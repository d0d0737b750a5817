package jobcreator

import (
	"oss.mash.dev/mash/jobdoc"
	"oss.mash.dev/mash/pipeline"
)

func init() {
	register(jobdoc.CloudGCE, genericExpander{cloud: jobdoc.CloudGCE})
	register(jobdoc.CloudOCI, genericExpander{cloud: jobdoc.CloudOCI})
	register(jobdoc.CloudAliyun, genericExpander{cloud: jobdoc.CloudAliyun})
}

// genericExpander builds the base {cloud_image_name, tests, ...} fields
// shared by every stage document for clouds whose jobcreator class wasn't
// in the retrieved pack (GCE, OCI, Aliyun) — only base_job.py and
// azure_job.py survived retrieval. The listener framework (C5) is what
// actually substitutes stagejob.NoOp for the stages these clouds skip (spec
// §4.6); jobcreator still emits a minimal document for every stage up to
// last_service except obs, so a NoOp stage has something to acknowledge and
// forward. No obs document is built, for these clouds or any other.
type genericExpander struct {
	cloud jobdoc.Cloud
}

func (g genericExpander) Expand(stage pipeline.Stage, doc *jobdoc.JobDocument, accounts []AccountConfig) (StageDoc, bool, error) {
	names := azureAccountNames(accounts) // account-name extraction is cloud-agnostic
	switch stage {
	case pipeline.StageUpload:
		return StageDoc{Envelope: pipeline.EnvelopeUploader, Fields: map[string]any{
			"cloud_image_name": doc.CloudImageName,
			"accounts":         names,
		}}, true, nil
	case pipeline.StageTest:
		return StageDoc{Envelope: pipeline.EnvelopeTesting, Fields: map[string]any{
			"tests":    doc.Tests,
			"accounts": names,
		}}, true, nil
	case pipeline.StageReplicate:
		return StageDoc{Envelope: pipeline.EnvelopeReplication, Fields: map[string]any{
			"image_description": doc.ImageDescription,
			"accounts":          names,
		}}, true, nil
	case pipeline.StagePublish:
		return StageDoc{Envelope: pipeline.EnvelopePublisher, Fields: map[string]any{
			"image_description": doc.ImageDescription,
			"accounts":          names,
		}}, true, nil
	case pipeline.StageDeprecate:
		return StageDoc{Envelope: pipeline.EnvelopeDeprecation, Fields: map[string]any{
			"old_cloud_image_name": doc.OldCloudImageName,
		}}, true, nil
	case pipeline.StageCreate:
		return StageDoc{Envelope: pipeline.EnvelopeCreate, Fields: map[string]any{
			"accounts": names,
		}}, true, nil
	default:
		return StageDoc{}, false, nil
	}
}
