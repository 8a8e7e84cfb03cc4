package task

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/mightora/playwright-powerplatform/internal/config"
	"github.com/mightora/playwright-powerplatform/internal/logger"
	"github.com/mightora/playwright-powerplatform/pkg/dataverse"
	"github.com/mightora/playwright-powerplatform/pkg/runner"
)

// Provisioner is the Dataverse surface the orchestrator needs. Implemented by
// *dataverse.Client; tests substitute a recorder.
type Provisioner interface {
	ResolveUserID(ctx context.Context, username string) (string, error)
	ResolveRoleID(ctx context.Context, roleName string) (string, error)
	ResolveTeamID(ctx context.Context, teamName string) (string, error)
	ResolveBusinessUnitID(ctx context.Context, buName string) (string, error)
	RemoveAllRoles(ctx context.Context, userID string) (int, error)
	AssignRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	UpdateBusinessUnit(ctx context.Context, userID, businessUnitID string) error
	AddUserToTeam(ctx context.Context, userID, teamID string) error
	RemoveUserFromTeam(ctx context.Context, userID, teamID string)
}

// Bootstrapper prepares the runtime and the framework checkout.
type Bootstrapper interface {
	EnsureRuntime(ctx context.Context) error
	FetchFramework(ctx context.Context, repoURL, ref string) error
	InstallDependencies(ctx context.Context, browser string) error
	FrameworkDir() string
	PathPrefix() string
}

// TestDriver runs the staged suite.
type TestDriver interface {
	Run(ctx context.Context, spec runner.RunSpec) (*runner.TestRunResult, error)
}

// ConnectFunc opens an authenticated Dataverse session. Split out so the
// orchestrator tests can observe whether a connection was attempted at all.
type ConnectFunc func(ctx context.Context, cfg *config.RunConfiguration) (Provisioner, error)

// Connect is the production ConnectFunc.
func Connect(ctx context.Context, cfg *config.RunConfiguration) (Provisioner, error) {
	return dataverse.Connect(ctx, cfg.TenantID, cfg.ClientID, cfg.ClientSecret, cfg.DataverseURL)
}

type Orchestrator struct {
	cfg     *config.RunConfiguration
	boot    Bootstrapper
	driver  TestDriver
	connect ConnectFunc
}

func New(cfg *config.RunConfiguration, boot Bootstrapper, driver TestDriver, connect ConnectFunc) *Orchestrator {
	return &Orchestrator{cfg: cfg, boot: boot, driver: driver, connect: connect}
}

// provisionState records exactly what this run changed in Dataverse, so that
// cleanup reverses those changes and nothing pre-existing. It is the only
// input the cleanup phase reads.
type provisionState struct {
	api    Provisioner
	userID string

	roleID       string
	roleAssigned bool

	teamID     string
	teamJoined bool

	businessUnitChanged bool
}

// Run drives the whole task and returns the process exit code. The exit code
// is the test runner's; an internal failure before the runner produced one
// yields 1. Cleanup runs on every exit path and never changes the code.
func (o *Orchestrator) Run(ctx context.Context) int {
	logger.Infof("run configuration: %v", o.cfg.Redacted())

	state := o.provisionOrSkip(ctx)

	exitCode := 1
	func() {
		defer o.cleanup(ctx, state)
		exitCode = o.execute(ctx)
	}()
	return exitCode
}

// provisionOrSkip runs the advanced provisioning phase when, and only when,
// all five required inputs are present. Any failure inside the phase is
// downgraded to a warning and the run proceeds; the returned state is nil in
// that case, which also makes the run ineligible for cleanup.
func (o *Orchestrator) provisionOrSkip(ctx context.Context) *provisionState {
	if !o.cfg.ProvisioningConfigured() {
		logger.Infof("advanced provisioning inputs incomplete; skipping user provisioning")
		return nil
	}

	state, err := o.provision(ctx)
	if err != nil {
		logger.Warnf("user provisioning failed, continuing without it: %v", err)
		logHints(err)
		return nil
	}
	return state
}

func (o *Orchestrator) provision(ctx context.Context) (*provisionState, error) {
	api, err := o.connect(ctx, o.cfg)
	if err != nil {
		return nil, err
	}
	state := &provisionState{api: api}

	err = o.runOp(opResolveUser, func() error {
		id, err := api.ResolveUserID(ctx, o.cfg.Username)
		state.userID = id
		return err
	})
	if err != nil {
		return nil, err
	}

	// Business unit strictly before role: assigning a role that lives in a
	// different business unit than the user is rejected by the API.
	if o.cfg.BusinessUnitName != "" {
		var buID string
		if err := o.runOp(opResolveBusinessUnit, func() error {
			var err error
			buID, err = api.ResolveBusinessUnitID(ctx, o.cfg.BusinessUnitName)
			return err
		}); err != nil {
			return nil, err
		}
		if err := o.runOp(opUpdateBusinessUnit, func() error {
			return api.UpdateBusinessUnit(ctx, state.userID, buID)
		}); err != nil {
			return nil, err
		}
		state.businessUnitChanged = true
		logger.Infof("moved user into business unit %q", o.cfg.BusinessUnitName)
	}

	if o.cfg.RoleName != "" {
		var roleID string
		if err := o.runOp(opResolveRole, func() error {
			var err error
			roleID, err = api.ResolveRoleID(ctx, o.cfg.RoleName)
			return err
		}); err != nil {
			return nil, err
		}
		// Clear existing roles so the run exercises exactly the requested
		// role. Best-effort: leftovers are reported, not fatal.
		_ = o.runOp(opClearRoles, func() error {
			removed, err := api.RemoveAllRoles(ctx, state.userID)
			if err == nil {
				logger.Infof("removed %d pre-existing role(s)", removed)
			}
			return err
		})
		if err := o.runOp(opAssignRole, func() error {
			return api.AssignRole(ctx, state.userID, roleID)
		}); err != nil {
			return nil, err
		}
		state.roleID = roleID
		state.roleAssigned = true
		logger.Infof("assigned role %q", o.cfg.RoleName)
	}

	if o.cfg.TeamName != "" {
		var teamID string
		if err := o.runOp(opResolveTeam, func() error {
			var err error
			teamID, err = api.ResolveTeamID(ctx, o.cfg.TeamName)
			return err
		}); err != nil {
			return nil, err
		}
		if err := o.runOp(opJoinTeam, func() error {
			return api.AddUserToTeam(ctx, state.userID, teamID)
		}); err != nil {
			return nil, err
		}
		state.teamID = teamID
		state.teamJoined = true
		logger.Infof("added user to team %q", o.cfg.TeamName)
	}

	return state, nil
}

// execute runs bootstrap, staging, the test suite and the artifact copy.
func (o *Orchestrator) execute(ctx context.Context) int {
	if err := o.boot.EnsureRuntime(ctx); err != nil {
		return o.fatal("runtime setup", err)
	}
	if err := o.boot.FetchFramework(ctx, o.cfg.RepoURL, o.cfg.RepoRef); err != nil {
		return o.fatal("framework clone", err)
	}
	if err := o.boot.InstallDependencies(ctx, o.cfg.Browser); err != nil {
		return o.fatal("dependency install", err)
	}

	staged, err := runner.StageTests(o.cfg.TestSource, filepath.Join(o.boot.FrameworkDir(), "tests"))
	if err != nil {
		return o.fatal("test staging", err)
	}
	logger.Infof("staged %d test file(s)", staged)

	env := o.cfg.SubprocessEnv()
	result, err := o.driver.Run(ctx, runner.RunSpec{
		Browser:    o.cfg.Browser,
		TraceMode:  o.cfg.TraceMode,
		Env:        env,
		PathPrefix: o.boot.PathPrefix(),
	})
	if err != nil {
		return o.fatal("test execution", err)
	}

	if result.ExitCode != 0 {
		logger.Warnf("test run exited with code %d", result.ExitCode)
		runner.AnalyzeFailure(result.ResultsDir, env).Log()
	}

	// The artifact copy must not mask the test result.
	if err := runner.CollectArtifacts(o.boot.FrameworkDir(), o.cfg.OutputPath); err != nil {
		logger.Warnf("artifact copy failed: %v", err)
	}

	return result.ExitCode
}

// cleanup reverses the role assignment this run made. It runs on every exit
// path but only acts when provisioning completed and left a usable session.
// Failures here are warnings: cleanup never changes the task outcome.
func (o *Orchestrator) cleanup(ctx context.Context, state *provisionState) {
	if state == nil || state.api == nil || state.userID == "" {
		logger.Debugf("no provisioned state to clean up")
		return
	}

	logger.Infof("cleaning up provisioned state")
	if state.roleAssigned {
		if err := state.api.RemoveRole(ctx, state.userID, state.roleID); err != nil {
			logger.Warnf("could not remove assigned role during cleanup: %v", err)
		} else {
			logger.Infof("removed role assigned by this run")
		}
	}
	if state.teamJoined {
		// One-way on purpose: removing the membership can orphan records the
		// run created under the team's ownership.
		logger.Infof("team membership added by this run is not reverted")
	}
	if state.businessUnitChanged {
		// Also one-way: moving the user back could strand the account outside
		// any business unit it can access.
		logger.Infof("business unit change made by this run is not reverted")
	}
}

func (o *Orchestrator) fatal(stage string, err error) int {
	logger.Errorf("%s failed: %v", stage, err)
	logHints(err)
	return 1
}

// logHints prints the remediation checklist for errors that carry one.
func logHints(err error) {
	var hinted dataverse.Hinted
	if errors.As(err, &hinted) {
		for _, hint := range hinted.Hints() {
			logger.Errorf("  - %s", hint)
		}
	}
}
