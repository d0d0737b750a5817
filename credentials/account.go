package credentials

import (
	"encoding/json"
	"fmt"

	"oss.mash.dev/mash/secrets"
)

// accountRecord is the payload persisted behind one account's credential:
// its opaque cloud secrets plus the bookkeeping needed to answer
// credentials_job_check and ownership queries without a second store.
type accountRecord struct {
	RequestingUser string            `json:"requesting_user"`
	Group          string            `json:"group,omitempty"`
	Secrets        map[string]string `json:"credentials"`
}

func (r accountRecord) marshal() (*secrets.Credential, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("credentials: encode account record: %w", err)
	}
	return &secrets.Credential{Value: raw}, nil
}

func unmarshalAccountRecord(cred *secrets.Credential) (accountRecord, error) {
	var r accountRecord
	if err := json.Unmarshal(cred.Value, &r); err != nil {
		return accountRecord{}, fmt.Errorf("credentials: decode account record: %w", err)
	}
	return r, nil
}
