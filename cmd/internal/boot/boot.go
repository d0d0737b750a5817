// Package boot holds the bootstrap steps every cmd/ entry point shares:
// loading a service's own YAML configuration, selecting a messaging
// transport, opening its job directory, sizing its worker pool, and wiring
// an optional notification_email sender (spec.md §6 "CLI").
package boot

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"oss.mash.dev/mash/chrono"
	"oss.mash.dev/mash/config"
	"oss.mash.dev/mash/jobstore"
	"oss.mash.dev/mash/lifecycle"
	"oss.mash.dev/mash/listener"
	"oss.mash.dev/mash/messaging"
	"oss.mash.dev/mash/notify"
	"oss.mash.dev/mash/pipeline"
	"oss.mash.dev/mash/pool"
	"oss.mash.dev/mash/transport/natsbroker"
)

// defaultDigestInterval is used when a service's notify config enables
// periodic digests but names no explicit interval.
const defaultDigestInterval = time.Hour

// PoolConfig sizes a stage's worker semaphore (spec §5 "Concurrency").
type PoolConfig struct {
	Min     int `yaml:"min"`
	Max     int `yaml:"max"`
	MaxWait int `yaml:"max_wait"`
}

// NotifyConfig is the SMTP dialer and digest cadence a stage's Notifier
// sends job-terminal notification_email through (spec §7 "Notifications").
// An empty SMTPHost disables notification entirely for that service.
type NotifyConfig struct {
	SMTPHost       string `yaml:"smtp_host"`
	SMTPPort       int    `yaml:"smtp_port"`
	SMTPUsername   string `yaml:"smtp_username"`
	SMTPPassword   string `yaml:"smtp_password"`
	From           string `yaml:"from"`
	DigestInterval string `yaml:"digest_interval"`
}

// LoadYAML reads and parses path into out, the same read-then-unmarshal
// shape jobcreator.LoadAccountsConfig uses for its own config file.
func LoadYAML(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("boot: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("boot: parse config %s: %w", path, err)
	}
	return nil
}

// Messaging returns the process-wide messaging.Manager and the scheme a
// service should address it with. natsURL, read from YAML, can be
// overridden at deploy time with MASH_NATS_URL without editing the file
// (SPEC_FULL.md §6). An empty URL leaves the manager's built-in
// LocalProvider as the only registered scheme, which is what every _test.go
// in this module already exercises through messaging.LocalMsgScheme.
func Messaging(natsURL string) (messaging.Manager, string, error) {
	natsURL = config.GetEnvAsString("MASH_NATS_URL", natsURL)
	manager := messaging.GetManager()
	if natsURL == "" {
		return manager, messaging.LocalMsgScheme, nil
	}
	provider := natsbroker.New(natsURL)
	if err := provider.Setup(); err != nil {
		return nil, "", fmt.Errorf("boot: nats setup %s: %w", natsURL, err)
	}
	manager.Register(provider)
	return manager, natsbroker.Scheme, nil
}

// WorkerPool builds and starts the bounded concurrency semaphore
// listener.Service.Workers checks in/out of around each run pass.
func WorkerPool(cfg PoolConfig) (pool.Pool[struct{}], error) {
	p, err := pool.NewPool[struct{}](
		func() (struct{}, error) { return struct{}{}, nil },
		func(struct{}) error { return nil },
		cfg.Min, cfg.Max, cfg.MaxWait,
	)
	if err != nil {
		return nil, fmt.Errorf("boot: worker pool: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("boot: worker pool start: %w", err)
	}
	return p, nil
}

// JobStore opens a stage's job directory (spec.md §6 "Filesystem layout").
func JobStore(dir string) (*jobstore.Store, error) {
	store, err := jobstore.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("boot: job store %s: %w", dir, err)
	}
	return store, nil
}

// Notifier builds the Notifier a stage's listener.Service sends terminal
// notification_email through, registering the periodic digest flush on
// scheduler. Returns nil, nil when cfg names no SMTP host, the service's
// signal that notification is disabled.
func Notifier(cfg NotifyConfig, scheduler chrono.Scheduler) (*notify.Notifier, error) {
	if cfg.SMTPHost == "" {
		return nil, nil
	}
	dialer := notify.NewSMTPDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	n := notify.New(dialer, cfg.From)

	interval := defaultDigestInterval
	if cfg.DigestInterval != "" {
		parsed, err := time.ParseDuration(cfg.DigestInterval)
		if err != nil {
			return nil, fmt.Errorf("boot: parse digest_interval %q: %w", cfg.DigestInterval, err)
		}
		interval = parsed
	}
	if err := n.Register(scheduler, interval); err != nil {
		return nil, fmt.Errorf("boot: notify digest: %w", err)
	}
	return n, nil
}

// StageConfig is the shared YAML shape every listener-framework stage
// (obs, upload, test, replicate, publish, deprecate, create) is configured
// with, since each one embeds the same listener.Service.
type StageConfig struct {
	NATSURL string       `yaml:"nats_url"`
	JobDir  string       `yaml:"job_dir"`
	Workers PoolConfig   `yaml:"workers"`
	Notify  NotifyConfig `yaml:"notify"`
}

// RunStage loads path as a StageConfig, wires a listener.Service for stage
// around factory, and blocks until the process receives SIGINT/SIGTERM
// (spec.md §6 "CLI"). Each stage's own main.go only has to name its Stage
// and JobFactory.
func RunStage(stage pipeline.Stage, path string, factory listener.JobFactory) error {
	var cfg StageConfig
	if err := LoadYAML(path, &cfg); err != nil {
		return err
	}

	manager, scheme, err := Messaging(cfg.NATSURL)
	if err != nil {
		return err
	}
	store, err := JobStore(cfg.JobDir)
	if err != nil {
		return err
	}
	workers, err := WorkerPool(cfg.Workers)
	if err != nil {
		return err
	}

	svc := listener.New(stage, manager, scheme, store, factory, workers)

	scheduler := chrono.New()
	notifier, err := Notifier(cfg.Notify, scheduler)
	if err != nil {
		return err
	}
	svc.Notifier = notifier

	comps := lifecycle.NewSimpleComponentManager()
	comps.Register(&lifecycle.SimpleComponent{
		CompId:    string(stage) + ".scheduler",
		StartFunc: scheduler.Start,
		StopFunc:  scheduler.Stop,
	})
	comps.Register(svc.Component)
	if err := comps.StartAll(); err != nil {
		return err
	}
	comps.Wait()
	return nil
}
