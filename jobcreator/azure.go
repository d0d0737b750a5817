package jobcreator

import (
	"oss.mash.dev/mash/jobdoc"
	"oss.mash.dev/mash/pipeline"
)

func init() {
	register(jobdoc.CloudAzure, azureExpander{})
}

// azureExpander builds Azure stage documents straight from each account's
// declared region/resource_group/container_name/storage_account tuple (spec
// §4.4: "For Azure: regions come from per-account {region, resource_group,
// container_name, storage_account}"). Grounded on
// original_source/mash/services/jobcreator/azure_job.py's AzureJob overrides.
type azureExpander struct{}

func (azureExpander) Expand(stage pipeline.Stage, doc *jobdoc.JobDocument, accounts []AccountConfig) (StageDoc, bool, error) {
	switch stage {
	case pipeline.StageUpload:
		targetRegions := map[string]any{}
		for _, acct := range accounts {
			targetRegions[acct.Region] = map[string]any{
				"account":         acct.Name,
				"resource_group":  acct.ResourceGroup,
				"container_name":  acct.ContainerName,
				"storage_account": acct.StorageAccount,
			}
		}
		return StageDoc{Envelope: pipeline.EnvelopeUploader, Fields: map[string]any{
			"target_regions": targetRegions,
		}}, true, nil
	case pipeline.StageTest:
		return StageDoc{Envelope: pipeline.EnvelopeTesting, Fields: map[string]any{
			"tests":        doc.Tests,
			"test_regions": azureRegionMap(accounts),
		}}, true, nil
	case pipeline.StageReplicate:
		return StageDoc{Envelope: pipeline.EnvelopeReplication, Fields: map[string]any{
			"image_description": doc.ImageDescription,
		}}, true, nil
	case pipeline.StagePublish:
		return StageDoc{Envelope: pipeline.EnvelopePublisher, Fields: map[string]any{
			"emails":            doc.NotificationEmail,
			"image_description": doc.ImageDescription,
			"accounts":          azureAccountNames(accounts),
		}}, true, nil
	case pipeline.StageDeprecate:
		return StageDoc{Envelope: pipeline.EnvelopeDeprecation, Fields: map[string]any{
			"old_cloud_image_name": doc.OldCloudImageName,
		}}, true, nil
	case pipeline.StageCreate:
		return StageDoc{Envelope: pipeline.EnvelopeCreate, Fields: map[string]any{}}, true, nil
	default:
		return StageDoc{}, false, nil
	}
}

func azureRegionMap(accounts []AccountConfig) map[string]any {
	regions := map[string]any{}
	for _, acct := range accounts {
		regions[acct.Region] = acct.Name
	}
	return regions
}

func azureAccountNames(accounts []AccountConfig) []string {
	names := make([]string, 0, len(accounts))
	for _, acct := range accounts {
		names = append(names, acct.Name)
	}
	return names
}
