package listener

import "oss.mash.dev/mash/stagejob"

// JobConstructor builds this stage's per-cloud StageJob from an admitted
// envelope.
type JobConstructor func(env Envelope) (stagejob.StageJob, error)

// JobFactory dispatches admission to the right per-cloud StageJob
// constructor (spec §4.5: "instantiate a per-stage job object via a
// cloud→class factory"), the same static-dispatch-map shape
// jobcreator.CloudExpander and messaging.Manager/secrets.Manager already
// use elsewhere in this module (spec §9, "Dynamic routing tables → static
// dispatch maps").
type JobFactory map[string]JobConstructor

// Build looks up env.Cloud in f, falling back to stagejob.NoOp (forwarding
// the prior stage's image name/regions unchanged) when no constructor is
// registered for that cloud — the generic substitute spec §9 calls for:
// "the NoOp implementation replaces the subclass that does nothing".
func (f JobFactory) Build(env Envelope) (stagejob.StageJob, error) {
	if ctor, ok := f[env.Cloud]; ok {
		return ctor(env)
	}
	return stagejob.NoOp{
		ForwardCloudImageName: stringField(env.Fields, "cloud_image_name"),
		ForwardSourceRegions:  stringSliceField(env.Fields, "source_regions"),
	}, nil
}

// CredentialAware is implemented by StageJob constructions that need cloud
// credentials fetched before RunJob runs. A StageJob that does not
// implement it is assumed not to need credentials (spec §4.5 step 2: "a
// stage may declare credentials unnecessary" — GCE replication is the
// example given).
type CredentialAware interface {
	RequiresCredentials() bool
}

func needsCredentials(job stagejob.StageJob) bool {
	aware, ok := job.(CredentialAware)
	return ok && aware.RequiresCredentials()
}
