package jobcreator

import (
	"fmt"
	"sort"

	"oss.mash.dev/mash/jobdoc"
	"oss.mash.dev/mash/pipeline"
)

func init() {
	register(jobdoc.CloudEC2, ec2Expander{})
}

// ec2Expander builds EC2 stage documents from the partition→regions table
// (spec §4.4: uploader target_regions keyed by each account's home region,
// replication regions spanning the account's full partition region table
// plus any per-account additional_regions, publisher publish_regions
// grouping both by account, tester test_regions keyed the same as
// uploader). Grounded on original_source/mash/services/jobcreator/base_job.py's
// get_uploader_message/get_replication_message/get_testing_message and the
// EC2 region-table convention implied by spec.md §8 scenario 1.
type ec2Expander struct{}

func (ec2Expander) Expand(stage pipeline.Stage, doc *jobdoc.JobDocument, accounts []AccountConfig) (StageDoc, bool, error) {
	switch stage {
	case pipeline.StageUpload:
		return ec2UploaderDoc(accounts)
	case pipeline.StageTest:
		return ec2TestingDoc(doc, accounts)
	case pipeline.StageReplicate:
		return ec2ReplicationDoc(doc, accounts)
	case pipeline.StagePublish:
		return ec2PublisherDoc(accounts)
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

func partitionFor(acct AccountConfig) (PartitionConfig, bool) {
	if acct.resolvedPartition == nil {
		return PartitionConfig{}, false
	}
	return *acct.resolvedPartition, true
}

func ec2HelperImage(acct AccountConfig, partition PartitionConfig, useRootSwap bool) (string, error) {
	if useRootSwap {
		if acct.RootSwapAMI == "" {
			return "", fmt.Errorf("jobcreator: account %s has use_root_swap set but no root_swap_ami configured", acct.Name)
		}
		return acct.RootSwapAMI, nil
	}
	image, ok := partition.HelperImages[partition.HomeRegion]
	if !ok {
		return "", fmt.Errorf("jobcreator: partition %s has no helper image for its home region %s", acct.Partition, partition.HomeRegion)
	}
	return image, nil
}

func ec2UploaderDoc(accounts []AccountConfig) (StageDoc, bool, error) {
	targetRegions := map[string]any{}
	for _, acct := range accounts {
		partition, ok := partitionFor(acct)
		if !ok {
			return StageDoc{}, false, fmt.Errorf("jobcreator: unknown EC2 partition %q for account %s", acct.Partition, acct.Name)
		}
		helperImage, err := ec2HelperImage(acct, partition, false)
		if err != nil {
			return StageDoc{}, false, err
		}
		targetRegions[partition.HomeRegion] = map[string]any{
			"account":      acct.Name,
			"helper_image": helperImage,
		}
	}
	return StageDoc{Envelope: pipeline.EnvelopeUploader, Fields: map[string]any{
		"target_regions": targetRegions,
	}}, true, nil
}

func ec2TestingDoc(doc *jobdoc.JobDocument, accounts []AccountConfig) (StageDoc, bool, error) {
	testRegions := map[string]any{}
	for _, acct := range accounts {
		partition, ok := partitionFor(acct)
		if !ok {
			return StageDoc{}, false, fmt.Errorf("jobcreator: unknown EC2 partition %q for account %s", acct.Partition, acct.Name)
		}
		testRegions[partition.HomeRegion] = acct.Name
	}
	fields := map[string]any{"test_regions": testRegions, "tests": doc.Tests}
	if doc.Distro != "" {
		fields["distro"] = doc.Distro
	}
	return StageDoc{Envelope: pipeline.EnvelopeTesting, Fields: fields}, true, nil
}

func ec2ReplicationRegions(acct AccountConfig, partition PartitionConfig) []string {
	seen := map[string]bool{}
	var regions []string
	for _, r := range partition.Regions {
		if !seen[r] {
			seen[r] = true
			regions = append(regions, r)
		}
	}
	for _, r := range acct.AdditionalRegions {
		if !seen[r] {
			seen[r] = true
			regions = append(regions, r)
		}
	}
	sort.Strings(regions)
	return regions
}

func ec2ReplicationDoc(doc *jobdoc.JobDocument, accounts []AccountConfig) (StageDoc, bool, error) {
	perAccount := map[string]any{}
	for _, acct := range accounts {
		partition, ok := partitionFor(acct)
		if !ok {
			return StageDoc{}, false, fmt.Errorf("jobcreator: unknown EC2 partition %q for account %s", acct.Partition, acct.Name)
		}
		perAccount[acct.Name] = ec2ReplicationRegions(acct, partition)
	}
	return StageDoc{Envelope: pipeline.EnvelopeReplication, Fields: map[string]any{
		"image_description":          doc.ImageDescription,
		"replication_source_regions": perAccount,
	}}, true, nil
}

func ec2PublisherDoc(accounts []AccountConfig) (StageDoc, bool, error) {
	var publishRegions []any
	for _, acct := range accounts {
		partition, ok := partitionFor(acct)
		if !ok {
			return StageDoc{}, false, fmt.Errorf("jobcreator: unknown EC2 partition %q for account %s", acct.Partition, acct.Name)
		}
		helperImage, err := ec2HelperImage(acct, partition, false)
		if err != nil {
			return StageDoc{}, false, err
		}
		publishRegions = append(publishRegions, map[string]any{
			"account":        acct.Name,
			"helper_image":   helperImage,
			"target_regions": ec2ReplicationRegions(acct, partition),
		})
	}
	return StageDoc{Envelope: pipeline.EnvelopePublisher, Fields: map[string]any{
		"publish_regions": publishRegions,
	}}, true, nil
}
