// -----------------------------------------------------------------------
// Profile Lifecycle Manager - create/start/stop/delete remote profiles
// -----------------------------------------------------------------------

package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

// Service manages remote profile lifecycles on top of the provisioning API
// client and persists session bundles on teardown of persistent profiles
type Service struct {
	client  *Client
	bundles interfaces.BundleStore
	target  *common.TargetConfig
	proxy   models.ProxyRecipe
	logger  arbor.ILogger
}

// NewService creates the lifecycle manager
func NewService(client *Client, bundles interfaces.BundleStore, cfg *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		client:  client,
		bundles: bundles,
		target:  &cfg.Target,
		proxy: models.ProxyRecipe{
			CountryCode: cfg.Provisioner.Proxy.CountryCode,
			Datacenter:  cfg.Provisioner.Proxy.Datacenter,
			Mobile:      cfg.Provisioner.Proxy.Mobile,
		},
		logger: logger,
	}
}

// Create provisions a new profile and attaches its network-egress recipe.
// A non-empty fingerprint payload is replayed verbatim; otherwise the service
// generates a random fingerprint. If the proxy attach fails the fresh profile
// is deleted so it does not leak against the credential's quota.
func (s *Service) Create(ctx context.Context, token string, spec models.ProfileSpec) (string, error) {
	var profileID string
	var err error

	if len(spec.Payload) > 0 {
		payload := models.SanitizeProfilePayload(spec.Payload)
		payload["name"] = spec.Name
		profileID, err = s.client.CreateProfile(ctx, token, payload)
	} else {
		profileID, err = s.client.CreateQuickProfile(ctx, token, spec.Name, spec.OS)
	}
	if err != nil {
		return "", err
	}

	recipe := spec.Proxy
	if recipe.CountryCode == "" {
		recipe = s.proxy
	}
	if err := s.client.AttachProxy(ctx, token, profileID, recipe); err != nil {
		s.logger.Warn().
			Str("profile_id", profileID).
			Err(err).
			Msg("Proxy attach failed, deleting orphaned profile")
		if delErr := s.client.DeleteProfile(ctx, token, profileID); delErr != nil {
			s.logger.Warn().Str("profile_id", profileID).Err(delErr).Msg("Failed to delete orphaned profile")
		}
		return "", fmt.Errorf("failed to attach proxy to profile %s: %w", profileID, err)
	}

	s.logger.Info().Str("profile_id", profileID).Msg("Profile created")
	return profileID, nil
}

// Start boots the profile and returns the automation endpoint. A 422 from
// the service means the stored fingerprint cannot produce a working browser,
// which is surfaced as *models.ProfileCorruptedError for the healing flow.
func (s *Service) Start(ctx context.Context, token, profileID string) (string, error) {
	endpoint, err := s.client.StartCloud(ctx, token, profileID)
	if err != nil {
		var svcErr *models.ProfileServiceError
		if errors.As(err, &svcErr) && svcErr.IsCorrupted() {
			return "", &models.ProfileCorruptedError{ProfileID: profileID, Reason: svcErr.Body}
		}
		return "", err
	}
	return endpoint, nil
}

// Stop tears down the remote session. With persist=true the session state is
// first captured through the attached automation session and written to the
// bundle store; with persist=false the profile is deleted outright.
func (s *Service) Stop(ctx context.Context, token, profileID string, session interfaces.BrowserSession, persist bool) error {
	if persist && session != nil {
		if err := s.captureBundle(ctx, token, profileID, session); err != nil {
			// A failed capture must not leave the remote session running,
			// so teardown continues and the failure is reported after.
			s.logger.Error().Str("profile_id", profileID).Err(err).Msg("Session bundle capture failed")
			if stopErr := s.client.StopCloud(ctx, token, profileID); stopErr != nil {
				s.logger.Warn().Str("profile_id", profileID).Err(stopErr).Msg("Profile stop after failed capture also failed")
			}
			return fmt.Errorf("failed to capture session bundle for %s: %w", profileID, err)
		}
	}

	if err := s.client.StopCloud(ctx, token, profileID); err != nil {
		return err
	}

	if !persist {
		if err := s.client.DeleteProfile(ctx, token, profileID); err != nil {
			return err
		}
		s.logger.Info().Str("profile_id", profileID).Msg("Ephemeral profile stopped and deleted")
		return nil
	}

	s.logger.Info().Str("profile_id", profileID).Msg("Profile stopped, session persisted")
	return nil
}

// Delete removes the remote profile
func (s *Service) Delete(ctx context.Context, token, profileID string) error {
	return s.client.DeleteProfile(ctx, token, profileID)
}

// GetProfile fetches the raw profile payload
func (s *Service) GetProfile(ctx context.Context, token, profileID string) (map[string]interface{}, error) {
	return s.client.GetProfile(ctx, token, profileID)
}

// AttachProxy links a network-egress recipe to the profile
func (s *Service) AttachProxy(ctx context.Context, token, profileID string, recipe models.ProxyRecipe) error {
	return s.client.AttachProxy(ctx, token, profileID, recipe)
}

// ProbeCredential issues a minimal authenticated call with the credential's
// token. A 401/403 answer means the credential is bad: (false, nil). Any
// other failure is not evidence about the credential and propagates.
func (s *Service) ProbeCredential(ctx context.Context, cred *models.Credential) (bool, error) {
	err := s.client.GetUser(ctx, cred.APIToken)
	if err == nil {
		return true, nil
	}

	var svcErr *models.ProfileServiceError
	if errors.As(err, &svcErr) && svcErr.IsAuth() {
		s.logger.Info().
			Str("credential_id", cred.ID).
			Int("status", svcErr.StatusCode).
			Msg("Credential probe rejected")
		return false, nil
	}
	return false, err
}

// captureBundle assembles the portable session bundle: cookies, localStorage
// and user agent from the live session, plus the proxy recipe and a sanitized
// fingerprint payload from the profile document
func (s *Service) captureBundle(ctx context.Context, token, profileID string, session interfaces.BrowserSession) error {
	bundle, err := session.CaptureState(ctx, s.target.Origins)
	if err != nil {
		return err
	}
	bundle.SourceProfileID = profileID
	bundle.SavedAt = time.Now().UTC()

	payload, err := s.client.GetProfile(ctx, token, profileID)
	if err != nil {
		s.logger.Warn().Str("profile_id", profileID).Err(err).Msg("Could not fetch profile payload for bundle")
	} else {
		bundle.ProfilePayload = models.SanitizeProfilePayload(payload)
		if proxy, ok := payload["proxy"].(map[string]interface{}); ok {
			bundle.ProxyRecipe = proxyRecipeFromPayload(proxy)
		}
	}
	if bundle.ProxyRecipe.CountryCode == "" {
		bundle.ProxyRecipe = s.proxy
	}

	return s.bundles.Save(ctx, bundle)
}

func proxyRecipeFromPayload(proxy map[string]interface{}) models.ProxyRecipe {
	recipe := models.ProxyRecipe{}
	if cc, ok := proxy["countryCode"].(string); ok {
		recipe.CountryCode = cc
	}
	if dc, ok := proxy["isDC"].(bool); ok {
		recipe.Datacenter = dc
	}
	if mobile, ok := proxy["isMobile"].(bool); ok {
		recipe.Mobile = mobile
	}
	return recipe
}
