package sso

import "context"

// ProvisionDecision is what the orchestrator asks the host application to
// apply after a successful login: who the user is and, when JIT provisioning
// is on, what role to grant them in the workspace.
type ProvisionDecision struct {
	WorkspaceID string
	ConfigID    string
	Identity    *ResolvedIdentity
	// CreateIfMissing mirrors the configuration's JIT provisioning flag. When
	// false the host must only match an existing member.
	CreateIfMissing bool
}

// Provisioner is implemented by the host application's user/membership layer.
type Provisioner interface {
	// Provision establishes or refreshes the workspace membership for the
	// resolved identity. Returning an error fails the login.
	Provision(ctx context.Context, decision ProvisionDecision) error

	// RevokeWorkspaceSessions invalidates active sessions for a workspace.
	// Called when a configuration is deleted or disabled so that sessions
	// established through it do not outlive it.
	RevokeWorkspaceSessions(ctx context.Context, workspaceID string) error
}

// NopProvisioner accepts every decision. Useful for test mode trials and for
// deployments that handle membership out of band.
type NopProvisioner struct{}

func (NopProvisioner) Provision(ctx context.Context, decision ProvisionDecision) error {
	return nil
}

func (NopProvisioner) RevokeWorkspaceSessions(ctx context.Context, workspaceID string) error {
	return nil
}
