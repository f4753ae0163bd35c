// -----------------------------------------------------------------------
// Credential Rotator - oldest-first selection, probe-on-select, demotion
// -----------------------------------------------------------------------

package rotation

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

// Rotator selects provisioning credentials oldest-registered-first, probing
// each candidate before handing it out. Candidates that fail the probe are
// persistently marked invalid so they are never re-offered until an explicit
// revalidation restores them.
type Rotator struct {
	store       interfaces.CredentialStorage
	profiles    interfaces.ProfileService
	provisioner interfaces.CredentialProvisioner
	events      interfaces.EventService
	logger      arbor.ILogger
}

// NewRotator creates a credential rotator. The provisioner may be nil, in
// which case pool exhaustion is terminal immediately.
func NewRotator(store interfaces.CredentialStorage, profiles interfaces.ProfileService, provisioner interfaces.CredentialProvisioner, events interfaces.EventService, logger arbor.ILogger) *Rotator {
	return &Rotator{
		store:       store,
		profiles:    profiles,
		provisioner: provisioner,
		events:      events,
		logger:      logger,
	}
}

// GetUsableCredential walks the valid pool oldest-first and returns the
// first candidate that passes a live probe. When the pool is exhausted it
// falls back to auto-provisioning a brand-new credential.
func (r *Rotator) GetUsableCredential(ctx context.Context) (*models.Credential, error) {
	candidates, err := r.store.ListValid(ctx)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		ok, err := r.profiles.ProbeCredential(ctx, candidate)
		if err != nil {
			// The probe itself failed. That says nothing about the
			// credential, so the failure propagates instead of demoting it.
			return nil, err
		}
		if ok {
			r.logger.Debug().Str("credential_id", candidate.ID).Msg("Credential probe passed")
			return candidate, nil
		}
		if err := r.invalidate(ctx, candidate.ID, "probe rejected"); err != nil {
			return nil, err
		}
	}

	return r.provision(ctx)
}

// ExecuteWithRotation obtains a usable credential and invokes op exactly once
// with it. An auth/quota failure from op demotes the credential but the error
// is returned unchanged: op may have produced partial side effects, so the
// rotator never silently re-runs it under a different credential.
func (r *Rotator) ExecuteWithRotation(ctx context.Context, op func(ctx context.Context, cred *models.Credential) error) (*models.Credential, error) {
	cred, err := r.GetUsableCredential(ctx)
	if err != nil {
		return nil, err
	}

	opErr := op(ctx, cred)
	if opErr == nil {
		return cred, nil
	}

	classified := models.ClassifyServiceError(opErr, cred.ID, "")
	var authErr *models.UpstreamAuthError
	var quotaErr *models.UpstreamQuotaError
	if errors.As(classified, &authErr) || errors.As(classified, &quotaErr) {
		if err := r.invalidate(ctx, cred.ID, "rejected mid-operation"); err != nil {
			r.logger.Warn().Str("credential_id", cred.ID).Err(err).Msg("Failed to persist credential demotion")
		}
	}
	return cred, classified
}

// Revalidate re-probes every invalid credential and restores the ones that
// pass. This is the only path by which a demoted credential returns to the
// pool. Probe transport failures skip the candidate without restoring it.
func (r *Rotator) Revalidate(ctx context.Context) (int, error) {
	demoted, err := r.store.ListInvalid(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, candidate := range demoted {
		ok, err := r.profiles.ProbeCredential(ctx, candidate)
		if err != nil {
			r.logger.Warn().Str("credential_id", candidate.ID).Err(err).Msg("Revalidation probe failed, skipping")
			continue
		}
		if !ok {
			continue
		}
		if err := r.store.MarkValid(ctx, candidate.ID); err != nil {
			return restored, err
		}
		restored++
		r.logger.Info().Str("credential_id", candidate.ID).Msg("Credential restored to pool")
	}

	if restored > 0 {
		r.logger.Info().Int("restored", restored).Int("checked", len(demoted)).Msg("Credential revalidation sweep finished")
	}
	return restored, nil
}

// provision registers a brand-new credential when the stored pool is empty
func (r *Rotator) provision(ctx context.Context) (*models.Credential, error) {
	if r.provisioner == nil {
		return nil, &models.NoValidCredentialsError{}
	}

	r.logger.Warn().Msg("No usable credentials left, auto-provisioning a new one")

	cred, err := r.provisioner.Provision(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Credential auto-provisioning failed")
		return nil, &models.NoValidCredentialsError{Err: err}
	}

	if err := r.store.Save(ctx, cred); err != nil {
		return nil, err
	}

	r.publish(ctx, interfaces.EventCredentialCreated, cred.ID)
	r.logger.Info().Str("credential_id", cred.ID).Str("email", cred.EmailAddress).Msg("New credential provisioned")
	return cred, nil
}

func (r *Rotator) invalidate(ctx context.Context, credentialID, reason string) error {
	r.logger.Warn().Str("credential_id", credentialID).Str("reason", reason).Msg("Marking credential invalid")
	if err := r.store.MarkInvalid(ctx, credentialID); err != nil {
		return err
	}
	r.publish(ctx, interfaces.EventCredentialInvalid, credentialID)
	return nil
}

func (r *Rotator) publish(ctx context.Context, eventType interfaces.EventType, credentialID string) {
	if r.events == nil {
		return
	}
	event := interfaces.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   map[string]interface{}{"credential_id": credentialID},
	}
	if err := r.events.Publish(ctx, event); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to publish credential event")
	}
}
