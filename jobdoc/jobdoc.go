// Package jobdoc models the Job Document submitted by a release requester
// (spec §3) and the per-cloud schema each cloud's document is validated
// against before the Job Creator fans it out across the pipeline.
package jobdoc

import (
	"encoding/json"

	"oss.mash.dev/mash/pipeline"
)

// Cloud enumerates the supported target clouds.
type Cloud string

const (
	CloudEC2    Cloud = "ec2"
	CloudGCE    Cloud = "gce"
	CloudAzure  Cloud = "azure"
	CloudOCI    Cloud = "oci"
	CloudAliyun Cloud = "aliyun"
)

// UtcTime values: "now" (single-shot, run immediately), "always" (nonstop,
// re-enters the pipeline on every new upstream image), or an RFC-3339
// timestamp (single-shot, scheduled).
const (
	UtcTimeNow    = "now"
	UtcTimeAlways = "always"
)

// NotificationType selects between a one-shot send and a batched digest.
const (
	NotificationSingle   = "single"
	NotificationPeriodic = "periodic"
)

// CloudAccount is one target account, optionally carrying per-account
// overrides (region lists, resource group, root_swap_ami, ...).
type CloudAccount struct {
	Name             string         `json:"name" constraints:"notnull=true"`
	AdditionalRegions []string      `json:"additional_regions,omitempty"`
	RootSwapAMI      string         `json:"root_swap_ami,omitempty"`
	Region           string         `json:"region,omitempty"`
	ResourceGroup    string         `json:"resource_group,omitempty"`
	ContainerName    string         `json:"container_name,omitempty"`
	StorageAccount   string         `json:"storage_account,omitempty"`
	Overrides        map[string]any `json:"-"`
}

// Condition gates pipeline entry at the Build-Result Watcher (C3). Exactly
// one of Package or Image is set.
type Condition struct {
	// Package is {name, op, ver, rel?} when this is a package condition.
	Package []string `json:"package,omitempty"`
	// Image is the version expression when this is an image condition.
	Image string `json:"image,omitempty"`
}

// IsImageCondition reports whether this condition constrains the image
// version rather than an installed package.
func (c Condition) IsImageCondition() bool {
	return c.Image != ""
}

// JobDocument is the submitter-supplied document (spec §3).
type JobDocument struct {
	ID                string         `json:"id,omitempty"`
	Cloud             Cloud          `json:"cloud" constraints:"notnull=true"`
	UtcTime           string         `json:"utctime" constraints:"notnull=true"`
	LastService       pipeline.Stage `json:"last_service" constraints:"notnull=true"`
	RequestingUser    string         `json:"requesting_user" constraints:"notnull=true"`
	Image             string         `json:"image,omitempty"`
	CloudImageName    string         `json:"cloud_image_name,omitempty"`
	OldCloudImageName string         `json:"old_cloud_image_name,omitempty"`
	ImageDescription  string         `json:"image_description,omitempty"`
	Project           string         `json:"project,omitempty"`
	Distro            string         `json:"distro,omitempty"`
	Tests             []string       `json:"tests,omitempty"`
	CloudAccounts     []CloudAccount `json:"cloud_accounts,omitempty"`
	CloudGroups       []string       `json:"cloud_groups,omitempty"`
	Conditions        []Condition    `json:"conditions,omitempty"`
	NotificationEmail string         `json:"notification_email,omitempty"`
	NotificationType  string         `json:"notification_type,omitempty"`
	UseRootSwap       bool           `json:"use_root_swap,omitempty"`

	// DownloadRoot is an OBS job-level override of the default download
	// directory. [EXPANSION — supplemented from original_source:
	// mash/services/obs/service.py supports a per-job download_root.]
	DownloadRoot string `json:"download_root,omitempty"`
}

// IsNonstop reports whether the job re-enters the pipeline on every new
// upstream image rather than running once.
func (j *JobDocument) IsNonstop() bool {
	return j.UtcTime == UtcTimeAlways
}

// Clone returns a deep-enough copy for safe concurrent per-stage mutation
// (slices/maps are copied, not aliased).
func (j *JobDocument) Clone() *JobDocument {
	clone := *j
	clone.Tests = append([]string(nil), j.Tests...)
	clone.CloudAccounts = append([]CloudAccount(nil), j.CloudAccounts...)
	clone.CloudGroups = append([]string(nil), j.CloudGroups...)
	clone.Conditions = append([]Condition(nil), j.Conditions...)
	return &clone
}

// Marshal serialises the document for on-disk persistence or transport.
func (j *JobDocument) Marshal() ([]byte, error) {
	return json.Marshal(j)
}

// Unmarshal decodes bytes produced by Marshal back into a JobDocument.
func Unmarshal(data []byte) (*JobDocument, error) {
	doc := &JobDocument{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
