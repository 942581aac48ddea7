package clicmd

import (
	"time"

	"github.com/dublyo/reciper/internal/config"
	"github.com/dublyo/reciper/internal/engine"
	"github.com/dublyo/reciper/internal/logging"
	"github.com/dublyo/reciper/internal/source"
	"github.com/dublyo/reciper/internal/tools"
)

// autoApproveDecision answers a trust-gate prompt with TrustTrusted, which
// Gate then records in the trust store. buildEngine configures the
// resolver with Interactive: false, so Gate never consults it: a remote
// source whose creator has no trusted record is rejected with
// untrusted_source (spec §4.8 "Trust gate").
type autoApproveDecision struct{}

func (autoApproveDecision) Decide(creator string) (source.TrustLevel, error) {
	return source.TrustTrusted, nil
}

// buildEngine assembles an engine.Engine from the resolved config and
// shared logger, the wiring every command needs before it can call into
// internal/engine.
func buildEngine(cfg *config.Config, log logging.Logger) (*engine.Engine, error) {
	trustStore := source.NewTrustStore(cfg.Trust.StorePath)
	cache := source.NewCache(cfg.Cache.Dir, time.Duration(cfg.Cache.TTLHrs)*time.Hour)
	lock := source.NewProcessLock(cfg.Trust.StorePath + ".lock")

	resolver := source.New(source.Options{
		TrustStore:  trustStore,
		Cache:       cache,
		Lock:        lock,
		Interactive: false,
		Decision:    autoApproveDecision{},
		Logger:      log,
	})

	return engine.New(engine.Config{
		Source:   resolver,
		Actions:  tools.NewActionRegistry(),
		Codemods: tools.NewCodemodRegistry(),
		Renderer: tools.NewTextTemplateRenderer(),
		Logger:   log,
	}), nil
}

// engineOptions translates the run command's flags into engine.Options,
// falling back to the loaded config's scheduling defaults when a flag was
// left at its zero value.
func engineOptions() engine.Options {
	maxParallel := maxParallelSteps
	if maxParallel == 0 && cfg != nil {
		maxParallel = cfg.Scheduling.MaxParallelSteps
	}
	timeout := globalTimeoutMs
	if timeout == 0 && cfg != nil {
		timeout = cfg.Scheduling.DefaultTimeoutMs
	}

	return engine.Options{
		DryRun:           dryRun,
		Force:            force,
		SkipPrompts:      skipPrompts,
		MaxParallelSteps: maxParallel,
		GlobalTimeoutMs:  timeout,
		WorkingDir:       workingDir,
		ExampleName:      exampleName,
		ProgressCallback: progressCallback(),
	}
}
