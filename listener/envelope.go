package listener

import (
	"encoding/json"
	"fmt"

	"oss.mash.dev/mash/pipeline"
)

// Envelope is one stage's admitted job_document payload: the job base
// (id, cloud, utctime, last_service) plus the stage-specific fields the
// job creator built for this stage (spec §6, "Stage documents").
type Envelope struct {
	ID          string
	Cloud       string
	UtcTime     string
	LastService pipeline.Stage
	Fields      map[string]any
}

// IsNonstop reports whether this job stays admitted across passes
// (utctime=="always") rather than being retired after the first success.
func (e Envelope) IsNonstop() bool { return e.UtcTime == "always" }

// parseEnvelope unwraps raw's single stage-keyed envelope (e.g. "uploader_job")
// for stage and extracts the job base fields every stage document carries.
func parseEnvelope(stage pipeline.Stage, raw []byte) (Envelope, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Envelope{}, fmt.Errorf("malformed json: %w", err)
	}

	envelopeKey := pipeline.EnvelopeFor(stage)
	rawFields, ok := generic[envelopeKey]
	if !ok {
		return Envelope{}, fmt.Errorf("missing %q envelope", envelopeKey)
	}
	fields, ok := rawFields.(map[string]any)
	if !ok {
		return Envelope{}, fmt.Errorf("%q envelope is not an object", envelopeKey)
	}

	id, _ := fields["id"].(string)
	if id == "" {
		return Envelope{}, fmt.Errorf("%q envelope is missing id", envelopeKey)
	}
	cloud, _ := fields["cloud"].(string)
	utcTime, _ := fields["utctime"].(string)
	lastService, _ := fields["last_service"].(string)

	return Envelope{
		ID:          id,
		Cloud:       cloud,
		UtcTime:     utcTime,
		LastService: pipeline.Stage(lastService),
		Fields:      fields,
	}, nil
}

// unwrapEnvelope returns the single nested object inside a one-key status
// envelope, whatever its key is named ("obs_result", "uploader_result", …):
// every listener message on the wire carries exactly one such envelope
// (spec §6), and the receiving stage does not need to know the publishing
// stage's name to read it.
func unwrapEnvelope(body map[string]any) (map[string]any, bool) {
	for _, v := range body {
		if fields, ok := v.(map[string]any); ok {
			return fields, true
		}
	}
	return nil, false
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func stringSliceField(fields map[string]any, key string) []string {
	raw, ok := fields[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func validateRequired(fields map[string]any, required []string) error {
	var missing []string
	for _, key := range required {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %v", missing)
	}
	return nil
}
