// Package credentials implements the Credentials Courier (C7): the only
// component that reads and writes the backing secrets store, so no other
// stage ever needs its own copy of an account's cloud credentials (spec
// §4.7).
package credentials

import (
	"context"
	"encoding/json"
	"fmt"

	"oss.mash.dev/mash/l3"
	"oss.mash.dev/mash/masherr"
	"oss.mash.dev/mash/messaging"
	"oss.mash.dev/mash/pipeline"
	"oss.mash.dev/mash/secrets"
	"oss.mash.dev/mash/transport"
)

var logger = l3.Get()

// jobCreatorInbox mirrors jobcreator.jobCreatorInbox: invalid_config replies
// from credentials_job_check land back on the job creator's own queue.
const jobCreatorInbox = transport.Queue("jobcreator.service")

// Service handles add_account, delete_account, credentials_job_check and
// credentials_request messages arriving on its service queue, dispatching
// each to the secrets.Store registered for the message's cloud provider.
type Service struct {
	Manager messaging.Manager
	Scheme  string
	Stores  *secrets.Manager
}

// New returns a Service resolving provider stores through stores and
// publishing replies through manager's scheme-registered provider.
func New(manager messaging.Manager, scheme string, stores *secrets.Manager) *Service {
	return &Service{Manager: manager, Scheme: scheme, Stores: stores}
}

func (s *Service) storeFor(provider string) (secrets.Store, error) {
	store := s.Stores.Store(provider)
	if store == nil {
		return nil, fmt.Errorf("no store registered for provider %q", provider)
	}
	return store, nil
}

// Start binds the service's inbox and dispatches every arriving message by
// its stamped routing key.
func (s *Service) Start() error {
	queue := transport.Queue(pipeline.ServiceQueue(pipeline.StageCredentials))
	return transport.Subscribe(s.Manager, s.Scheme, queue, s.dispatch)
}

func (s *Service) dispatch(msg messaging.Message) {
	routingKey := transport.RoutingKeyOf(msg)
	raw := msg.ReadBytes()

	var err error
	switch string(routingKey) {
	case pipeline.RoutingKeyAddAccount:
		err = s.HandleAddAccount(raw)
	case pipeline.RoutingKeyDeleteAccount:
		err = s.HandleDeleteAccount(raw)
	case pipeline.RoutingKeyCredentialsCheck:
		err = s.HandleJobCheck(raw)
	case pipeline.RoutingKeyCredentialsRequest:
		err = s.HandleCredentialsRequest(raw)
	default:
		logger.WarnF("credentials: no handler for routing key %q", routingKey)
		return
	}
	if err != nil {
		logger.WarnF("credentials: handler for %q failed: %v", routingKey, err)
	}
}

type addAccountRequest struct {
	AccountName    string            `json:"account_name"`
	Provider       string            `json:"provider"`
	RequestingUser string            `json:"requesting_user"`
	Group          string            `json:"group,omitempty"`
	Credentials    map[string]string `json:"credentials"`
}

// HandleAddAccount writes req.Credentials to the provider's store under
// req.AccountName, overwriting any existing record for that account.
func (s *Service) HandleAddAccount(raw []byte) error {
	var req addAccountRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return masherr.ValidationError("<unassigned>", err.Error())
	}
	if req.AccountName == "" || req.Provider == "" {
		return masherr.ValidationError(req.AccountName, "account_name and provider are required")
	}
	store, err := s.storeFor(req.Provider)
	if err != nil {
		return masherr.ValidationError(req.AccountName, err.Error())
	}
	record := accountRecord{RequestingUser: req.RequestingUser, Group: req.Group, Secrets: req.Credentials}
	cred, err := record.marshal()
	if err != nil {
		return err
	}
	if err := store.Write(req.AccountName, cred, context.Background()); err != nil {
		return masherr.TransportError("credentials.add_account", err.Error())
	}
	return nil
}

type deleteAccountRequest struct {
	AccountName string `json:"account_name"`
	Provider    string `json:"provider"`
}

// HandleDeleteAccount removes the account's credential from the provider's
// store. Deleting an unknown account is a no-op (spec §4.7).
func (s *Service) HandleDeleteAccount(raw []byte) error {
	var req deleteAccountRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return masherr.ValidationError("<unassigned>", err.Error())
	}
	store, err := s.storeFor(req.Provider)
	if err != nil {
		return masherr.ValidationError(req.AccountName, err.Error())
	}
	if err := store.Delete(req.AccountName, context.Background()); err != nil {
		return masherr.TransportError("credentials.delete_account", err.Error())
	}
	return nil
}

type jobCheckRequest struct {
	ID               string   `json:"id"`
	Provider         string   `json:"provider"`
	ProviderAccounts []string `json:"provider_accounts"`
	RequestingUser   string   `json:"requesting_user"`
}

// HandleJobCheck verifies every account named in req exists and belongs to
// req.RequestingUser. On failure it publishes invalid_config back to the
// job creator's inbox naming the offending accounts, so a job is rejected
// before it is ever admitted by a stage listener (spec §4.7).
func (s *Service) HandleJobCheck(raw []byte) error {
	var req jobCheckRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return masherr.ValidationError("<unassigned>", err.Error())
	}
	store, err := s.storeFor(req.Provider)
	if err != nil {
		return masherr.ValidationError(req.ID, err.Error())
	}

	var missing []string
	for _, name := range req.ProviderAccounts {
		cred, getErr := store.Get(name, context.Background())
		if getErr != nil {
			missing = append(missing, name)
			continue
		}
		record, decodeErr := unmarshalAccountRecord(cred)
		if decodeErr != nil || record.RequestingUser != req.RequestingUser {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	payload := map[string]any{
		"id":       req.ID,
		"reason":   "unknown or unauthorized accounts",
		"accounts": missing,
	}
	return transport.Publish(s.Manager, s.Scheme, jobCreatorInbox, pipeline.RoutingKeyInvalidConfig, payload)
}

type credentialsRequest struct {
	JobID     string   `json:"job_id"`
	RequestID string   `json:"request_id"`
	Provider  string   `json:"provider"`
	Accounts  []string `json:"accounts"`
}

// HandleCredentialsRequest answers a stage's credentials_request on the
// per-request reply queue credentials.<jobId>.<requestId> with
// {credentials: {account -> opaque secret}}. An account missing from the
// store is dropped from the reply rather than failing the whole request,
// so the requesting stage job can decide per-account whether that is fatal.
func (s *Service) HandleCredentialsRequest(raw []byte) error {
	var req credentialsRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return masherr.ValidationError("<unassigned>", err.Error())
	}
	store, err := s.storeFor(req.Provider)
	if err != nil {
		return masherr.ValidationError(req.JobID, err.Error())
	}

	tokens := make(map[string]string, len(req.Accounts))
	for _, name := range req.Accounts {
		cred, getErr := store.Get(name, context.Background())
		if getErr != nil {
			logger.WarnF("credentials: account %s not found for job %s", name, req.JobID)
			continue
		}
		record, decodeErr := unmarshalAccountRecord(cred)
		if decodeErr != nil {
			logger.WarnF("credentials: account %s record corrupt for job %s: %v", name, req.JobID, decodeErr)
			continue
		}
		if token, ok := record.Secrets["token"]; ok {
			tokens[name] = token
			continue
		}
		opaque, err := json.Marshal(record.Secrets)
		if err != nil {
			continue
		}
		tokens[name] = string(opaque)
	}

	queue := transport.Queue(pipeline.CredentialsQueue(req.JobID, req.RequestID))
	return transport.Publish(s.Manager, s.Scheme, queue, pipeline.RoutingKeyCredentialsReply, map[string]any{"credentials": tokens})
}
