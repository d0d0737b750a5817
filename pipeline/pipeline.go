// Package pipeline names the fixed stage ordering every job moves through
// and the routing-key/queue-name conventions the stages use to address one
// another over the message transport.
package pipeline

// Stage identifies one of the fixed pipeline stages.
type Stage string

const (
	StageOBS         Stage = "obs"
	StageUpload      Stage = "upload"
	StageTest        Stage = "test"
	StageReplicate   Stage = "replicate"
	StagePublish     Stage = "publish"
	StageDeprecate   Stage = "deprecate"
	StageCreate      Stage = "create"
	StageCredentials Stage = "credentials"
)

// Ordering is the fixed stage sequence a job is fanned out across, per job
// document up to and including last_service.
var Ordering = []Stage{
	StageOBS,
	StageUpload,
	StageTest,
	StageReplicate,
	StagePublish,
	StageDeprecate,
	StageCreate,
}

// IndexOf returns the position of stage in Ordering, or -1 if it does not
// name a pipeline stage.
func IndexOf(stage Stage) int {
	for i, s := range Ordering {
		if s == stage {
			return i
		}
	}
	return -1
}

// IsValid reports whether stage names one of the fixed pipeline stages.
func IsValid(stage Stage) bool {
	return IndexOf(stage) >= 0
}

// UpTo returns the ordered stages from the start of the pipeline through and
// including last, inclusive. An unknown last yields nil.
func UpTo(last Stage) []Stage {
	idx := IndexOf(last)
	if idx < 0 {
		return nil
	}
	return append([]Stage(nil), Ordering[:idx+1]...)
}

// Document envelope keys, §6 "Stage documents".
const (
	EnvelopeOBS         = "obs_job"
	EnvelopeUploader    = "uploader_job"
	EnvelopeTesting     = "testing_job"
	EnvelopeReplication = "replication_job"
	EnvelopePublisher   = "publisher_job"
	EnvelopeDeprecation = "deprecation_job"
	EnvelopeCreate      = "create_job"
	EnvelopeCredentials = "credentials_job"
	EnvelopePint        = "pint_job"
)

// EnvelopeFor returns the stage document envelope key for a pipeline stage.
func EnvelopeFor(stage Stage) string {
	switch stage {
	case StageOBS:
		return EnvelopeOBS
	case StageUpload:
		return EnvelopeUploader
	case StageTest:
		return EnvelopeTesting
	case StageReplicate:
		return EnvelopeReplication
	case StagePublish:
		return EnvelopePublisher
	case StageDeprecate:
		return EnvelopeDeprecation
	case StageCreate:
		return EnvelopeCreate
	case StageCredentials:
		return EnvelopeCredentials
	default:
		return ""
	}
}

// Routing keys, §4.1.
const (
	RoutingKeyJobDocument        = "job_document"
	RoutingKeyAddAccount         = "add_account"
	RoutingKeyDeleteAccount      = "delete_account"
	RoutingKeyCredentialsCheck   = "credentials_job_check"
	RoutingKeyCredentialsRequest = "credentials_request"
	RoutingKeyCredentialsReply   = "credentials_response"
	RoutingKeyInvalidConfig      = "invalid_config"
)

// ServiceQueue is the stage's main inbox for job documents (<service>.service).
func ServiceQueue(stage Stage) string {
	return string(stage) + ".service"
}

// ListenerQueue is the per-job inbox carrying status from the preceding
// stage (<service>.listener_<jobId>), bound lazily on admission and unbound
// on deletion.
func ListenerQueue(stage Stage, jobID string) string {
	return string(stage) + ".listener_" + jobID
}

// ListenerRoutingKey is the routing key used to publish to a job's listener
// queue (listener_<jobId>).
func ListenerRoutingKey(jobID string) string {
	return "listener_" + jobID
}

// CredentialsQueue is the short-lived reply channel for one credentials
// request. requestID scopes the queue to a single in-flight request so a
// stale reply for a reused job id can never be delivered to a newer waiter
// (see DESIGN.md, Open Question Decision 1).
func CredentialsQueue(jobID, requestID string) string {
	return "credentials." + jobID + "." + requestID
}

// JobDeleteRoutingKey returns the routing key used to tell stage to forget
// job id.
func JobDeleteRoutingKey(stage Stage) string {
	return string(stage) + "_job_delete"
}
