package jobcreator

import (
	"encoding/json"

	"oss.mash.dev/mash/jobdoc"
	"oss.mash.dev/mash/l3"
	"oss.mash.dev/mash/masherr"
	"oss.mash.dev/mash/messaging"
	"oss.mash.dev/mash/pipeline"
	"oss.mash.dev/mash/transport"
	"oss.mash.dev/mash/uuid"
)

var logger = l3.Get()

// Service is the Job Creator (C4): validates a submitted job document,
// resolves its target accounts, builds per-stage sub-documents, and
// publishes them in the fixed pipeline order up to last_service.
type Service struct {
	Manager        messaging.Manager
	Scheme         string
	AccountsConfig *AccountsConfig
}

// New returns a Service publishing through manager's scheme-registered
// provider (e.g. messaging.LocalMsgScheme in tests, "nats" in production).
func New(manager messaging.Manager, scheme string, cfg *AccountsConfig) *Service {
	return &Service{Manager: manager, Scheme: scheme, AccountsConfig: cfg}
}

// Start binds the job creator's own inbox (jobcreator.service) and
// dispatches every arriving message by its stamped routing key: external
// job submissions and deletions, account lifecycle messages forwarded
// verbatim to the credentials service, and invalid_config notices reported
// back by a downstream stage about a job already admitted there.
func (s *Service) Start() error {
	return transport.Subscribe(s.Manager, s.Scheme, jobCreatorInbox, s.dispatch)
}

func (s *Service) dispatch(msg messaging.Message) {
	routingKey := string(transport.RoutingKeyOf(msg))
	raw := msg.ReadBytes()

	switch routingKey {
	case pipeline.RoutingKeyJobDocument:
		if err := s.Submit(raw); err != nil {
			logger.WarnF("jobcreator: submit failed: %v", err)
		}
	case pipeline.RoutingKeyAddAccount, pipeline.RoutingKeyDeleteAccount:
		if err := s.ForwardAccountMessage(routingKey, raw); err != nil {
			logger.WarnF("jobcreator: forward account message failed: %v", err)
		}
	case pipeline.RoutingKeyInvalidConfig:
		s.handleInvalidConfig(raw)
	default:
		logger.WarnF("jobcreator: no handler for routing key %q", routingKey)
	}
}

// handleInvalidConfig reacts to a downstream stage rejecting a job it had
// already admitted (e.g. credentials.HandleJobCheck finding an unauthorized
// account): it logs the reported reason and cancels the job everywhere, the
// same fan-out Delete performs for an explicit deletion request.
func (s *Service) handleInvalidConfig(raw []byte) {
	var report struct {
		ID     string `json:"id"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &report); err != nil || report.ID == "" {
		logger.WarnF("jobcreator: malformed invalid_config report: %v", err)
		return
	}
	logger.WarnF("jobcreator: job %s rejected downstream: %s", report.ID, report.Reason)
	if err := s.Delete(report.ID); err != nil {
		logger.WarnF("jobcreator: failed to cancel rejected job %s: %v", report.ID, err)
	}
}

// Submit runs spec §4.4 steps 1-5 against a raw job_document message.
func (s *Service) Submit(raw []byte) error {
	doc, err := jobdoc.Validate(raw)
	if err != nil {
		logger.WarnF("jobcreator: invalid message received: %v", err)
		_ = transport.Publish(s.Manager, s.Scheme, jobCreatorInbox, pipeline.RoutingKeyInvalidConfig, map[string]any{
			"reason": err.Error(),
		})
		return masherr.ValidationError("<unassigned>", err.Error())
	}

	if doc.ID == "" {
		id, err := uuid.V4()
		if err != nil {
			return masherr.FatalConfigError("failed to generate job id: " + err.Error())
		}
		doc.ID = id.String()
	}

	resolvedNames := ResolveTargetAccounts(doc, doc.RequestingUser, s.AccountsConfig)
	accounts, err := s.resolveAccountConfigs(resolvedNames, doc.CloudAccounts)
	if err != nil {
		return err
	}

	expander, err := ExpanderFor(doc.Cloud)
	if err != nil {
		return masherr.FatalConfigError(err.Error())
	}

	if err := s.publishCredentialsBootstrap(doc, resolvedNames); err != nil {
		return err
	}

	for _, stage := range pipeline.UpTo(doc.LastService) {
		stageDoc, ok, err := expander.Expand(stage, doc, accounts)
		if err != nil {
			return masherr.ValidationError(doc.ID, err.Error())
		}
		if !ok {
			continue
		}
		payload := mergeBase(doc, stageDoc)
		queue := transport.Queue(pipeline.ServiceQueue(stage))
		if err := transport.PublishWithRetry(s.Manager, s.Scheme, queue, pipeline.RoutingKeyJobDocument, payload, nil); err != nil {
			return err
		}
	}
	return nil
}

// Delete fans a job_delete out to every pipeline stage (spec §4.4 step 6).
func (s *Service) Delete(jobID string) error {
	var last error
	for _, stage := range pipeline.Ordering {
		queue := transport.Queue(pipeline.ServiceQueue(stage))
		err := transport.PublishWithRetry(s.Manager, s.Scheme, queue, transport.RoutingKey(pipeline.JobDeleteRoutingKey(stage)), map[string]any{"id": jobID}, nil)
		if err != nil {
			logger.WarnF("jobcreator: failed to publish job_delete for %s to %s: %v", jobID, stage, err)
			last = err
		}
	}
	return last
}

const jobCreatorInbox = transport.Queue("jobcreator.service")

// ForwardAccountMessage relays an add_account/delete_account message arriving
// on the job creator's own listener queue verbatim to the credentials
// service (spec §4.4, "Account lifecycle"). A malformed message is logged
// and dropped, never forwarded.
func (s *Service) ForwardAccountMessage(routingKey string, raw []byte) error {
	if routingKey != pipeline.RoutingKeyAddAccount && routingKey != pipeline.RoutingKeyDeleteAccount {
		logger.WarnF("jobcreator: dropping account message with unexpected routing key %q", routingKey)
		return nil
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		logger.WarnF("jobcreator: dropping malformed account message: %v", err)
		return nil
	}
	return transport.PublishWithRetry(s.Manager, s.Scheme, transport.Queue(pipeline.ServiceQueue(pipeline.StageCredentials)), transport.RoutingKey(routingKey), generic, nil)
}

// mergeBase merges a stage's fields onto the job base. Besides {id, utctime}
// (spec §6), it also carries cloud and last_service: the listener framework
// (C5) needs cloud to pick the right per-cloud StageJob out of its factory,
// and last_service to know whether the stage it is currently running is the
// job's terminal one (step 5, job retention) without a side-channel lookup.
func mergeBase(doc *jobdoc.JobDocument, stageDoc StageDoc) map[string]any {
	fields := make(map[string]any, len(stageDoc.Fields)+4)
	for k, v := range stageDoc.Fields {
		fields[k] = v
	}
	fields["id"] = doc.ID
	fields["utctime"] = doc.UtcTime
	fields["cloud"] = string(doc.Cloud)
	fields["last_service"] = string(doc.LastService)
	if doc.NotificationEmail != "" {
		fields["notification_email"] = doc.NotificationEmail
		fields["notification_type"] = doc.NotificationType
	}
	return map[string]any{stageDoc.Envelope: fields}
}

func (s *Service) publishCredentialsBootstrap(doc *jobdoc.JobDocument, accountNames []string) error {
	payload := map[string]any{
		pipeline.EnvelopeCredentials: map[string]any{
			"id":                doc.ID,
			"utctime":           doc.UtcTime,
			"provider":          string(doc.Cloud),
			"last_service":      string(doc.LastService),
			"provider_accounts": accountNames,
			"requesting_user":   doc.RequestingUser,
		},
	}
	return transport.PublishWithRetry(s.Manager, s.Scheme, transport.Queue(pipeline.ServiceQueue(pipeline.StageCredentials)), pipeline.RoutingKeyJobDocument, payload, nil)
}

// resolveAccountConfigs looks up the server-side AccountConfig for each
// resolved name and overlays any inline per-account overrides the
// submitter supplied directly on the job document's cloud_accounts
// (jobdoc.CloudAccount carries the same region/resource-group/container/
// storage-account/root_swap_ami shape for exactly this purpose).
func (s *Service) resolveAccountConfigs(names []string, inline []jobdoc.CloudAccount) ([]AccountConfig, error) {
	overrides := make(map[string]jobdoc.CloudAccount, len(inline))
	for _, ca := range inline {
		overrides[ca.Name] = ca
	}

	accounts := make([]AccountConfig, 0, len(names))
	for _, name := range names {
		acct, ok := s.AccountsConfig.Accounts[name]
		if !ok {
			return nil, masherr.ValidationError(name, "unknown target account")
		}
		if override, ok := overrides[name]; ok {
			acct = applyOverride(acct, override)
		}
		if acct.Partition != "" {
			if partition, ok := s.AccountsConfig.Partitions[acct.Partition]; ok {
				acct = acct.WithPartition(&partition)
			}
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

func applyOverride(acct AccountConfig, override jobdoc.CloudAccount) AccountConfig {
	if len(override.AdditionalRegions) > 0 {
		acct.AdditionalRegions = override.AdditionalRegions
	}
	if override.RootSwapAMI != "" {
		acct.RootSwapAMI = override.RootSwapAMI
	}
	if override.Region != "" {
		acct.Region = override.Region
	}
	if override.ResourceGroup != "" {
		acct.ResourceGroup = override.ResourceGroup
	}
	if override.ContainerName != "" {
		acct.ContainerName = override.ContainerName
	}
	if override.StorageAccount != "" {
		acct.StorageAccount = override.StorageAccount
	}
	return acct
}
