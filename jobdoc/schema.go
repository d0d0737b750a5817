package jobdoc

import (
	"encoding/json"
	"fmt"

	"oss.mash.dev/mash/codec/validator"
	"oss.mash.dev/mash/data"
	"oss.mash.dev/mash/pipeline"
)

// allowedFields is the set of top-level keys a cloud's job document schema
// accepts, generalizing golly's data.Schema (an OpenAPI-3.0 subset) into a
// flat per-cloud property registry. Unknown fields are rejected per §6.
var allowedFields = map[Cloud]*data.Schema{
	CloudEC2:    newCloudSchema("ec2", nil),
	CloudGCE:    newCloudSchema("gce", nil),
	CloudAzure:  newCloudSchema("azure", nil),
	CloudOCI:    newCloudSchema("oci", nil),
	CloudAliyun: newCloudSchema("aliyun", nil),
}

var baseProperties = []string{
	"id", "cloud", "utctime", "last_service", "requesting_user",
	"image", "cloud_image_name", "old_cloud_image_name", "image_description",
	"project", "distro", "tests", "cloud_accounts", "cloud_groups",
	"conditions", "notification_email", "notification_type",
	"use_root_swap", "download_root",
}

func newCloudSchema(cloud string, extra []string) *data.Schema {
	props := make(map[string]*data.Schema, len(baseProperties)+len(extra))
	for _, name := range baseProperties {
		props[name] = &data.Schema{Type: "any"}
	}
	for _, name := range extra {
		props[name] = &data.Schema{Type: "any"}
	}
	return &data.Schema{
		Id:         cloud,
		Type:       "object",
		Properties: props,
		Required:   []string{"cloud", "utctime", "last_service", "requesting_user"},
	}
}

var structValidator = validator.NewStructValidatorWithCache()

// Validate parses raw as a cloud job document, rejects unknown top-level
// fields against that cloud's schema, and runs struct-level field
// validation (required fields, non-empty strings). It returns the decoded
// document on success.
func Validate(raw []byte) (*JobDocument, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("invalid message received: %w", err)
	}

	cloudRaw, _ := generic["cloud"].(string)
	schema, ok := allowedFields[Cloud(cloudRaw)]
	if !ok {
		return nil, fmt.Errorf("schema error: unsupported cloud %q", cloudRaw)
	}
	for key := range generic {
		if _, known := schema.Properties[key]; !known {
			return nil, fmt.Errorf("schema error: unknown field %q for cloud %q", key, cloudRaw)
		}
	}
	for _, required := range schema.Required {
		if _, present := generic[required]; !present {
			return nil, fmt.Errorf("schema error: missing required field %q", required)
		}
	}

	doc := &JobDocument{}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("invalid message received: %w", err)
	}
	if err := structValidator.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema error: %w", err)
	}
	if !pipeline.IsValid(doc.LastService) {
		return nil, fmt.Errorf("schema error: last_service %q is not a pipeline stage", doc.LastService)
	}
	return doc, nil
}
