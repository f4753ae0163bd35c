// -----------------------------------------------------------------------
// Provisioning API client - raw REST calls against the profile service
// -----------------------------------------------------------------------

package profiles

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/httpclient"
	"github.com/ternarybob/renovo/internal/models"
)

// cloudEndpointFormat builds the remote debugging endpoint for a profile
// running on the provisioning service's cloud browsers
const cloudEndpointFormat = "wss://cloudbrowser.gologin.com/connect?token=%s&profileId=%s"

// Client is the authenticated REST client for the profile-provisioning API.
// Every call takes the credential token explicitly so one client serves all
// credentials in the pool.
type Client struct {
	baseURL string
	http    *httpclient.Client
	logger  arbor.ILogger
}

// NewClient creates a provisioning API client from the provisioner config
func NewClient(cfg *common.ProvisionerConfig, logger arbor.ILogger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    httpclient.New(cfg.RequestTimeout, cfg.MaxAttempts, logger),
		logger:  logger,
	}
}

func (c *Client) headers(token string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token,
		"User-Agent":    "renovo/" + common.Version,
	}
}

// call executes one API request. A completed exchange with a non-2xx status
// becomes a *models.ProfileServiceError; transport failures come back from
// the http client already retried and classified.
func (c *Client) call(ctx context.Context, method, token, path string, payload interface{}) (*httpclient.Response, error) {
	resp, err := c.http.DoJSON(ctx, method, c.baseURL+path, c.headers(token), payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &models.ProfileServiceError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	return resp, nil
}

// CreateQuickProfile creates a profile with a service-generated random
// fingerprint and returns its id
func (c *Client) CreateQuickProfile(ctx context.Context, token, name, profileOS string) (string, error) {
	c.logger.Info().Str("name", name).Str("os", profileOS).Msg("Creating quick profile")

	resp, err := c.call(ctx, "POST", token, "/browser/quick", map[string]interface{}{
		"name": name,
		"os":   profileOS,
	})
	if err != nil {
		return "", err
	}
	return decodeProfileID(resp)
}

// CreateProfile creates a profile from a full fingerprint payload, used when
// replaying a sanitized payload from a session bundle
func (c *Client) CreateProfile(ctx context.Context, token string, payload map[string]interface{}) (string, error) {
	c.logger.Info().Msg("Creating profile from fingerprint payload")

	resp, err := c.call(ctx, "POST", token, "/browser", payload)
	if err != nil {
		return "", err
	}
	return decodeProfileID(resp)
}

// AttachProxy links a network-egress recipe to the profile
func (c *Client) AttachProxy(ctx context.Context, token, profileID string, recipe models.ProxyRecipe) error {
	c.logger.Info().
		Str("profile_id", profileID).
		Str("country", recipe.CountryCode).
		Msg("Attaching proxy to profile")

	_, err := c.call(ctx, "POST", token, "/users-proxies/mobile-proxy", map[string]interface{}{
		"countryCode":     recipe.CountryCode,
		"isDC":            recipe.Datacenter,
		"isMobile":        recipe.Mobile,
		"profileIdToLink": profileID,
	})
	return err
}

// GetProfile fetches the raw profile document
func (c *Client) GetProfile(ctx context.Context, token, profileID string) (map[string]interface{}, error) {
	resp, err := c.call(ctx, "GET", token, "/browser/"+profileID, nil)
	if err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if err := resp.JSON(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// DeleteProfile removes the remote profile
func (c *Client) DeleteProfile(ctx context.Context, token, profileID string) error {
	c.logger.Info().Str("profile_id", profileID).Msg("Deleting profile")

	_, err := c.call(ctx, "DELETE", token, "/browser/"+profileID, nil)
	return err
}

// StartCloud boots the profile on the service's cloud browsers and returns
// the websocket endpoint an automation driver can attach to
func (c *Client) StartCloud(ctx context.Context, token, profileID string) (string, error) {
	c.logger.Info().Str("profile_id", profileID).Msg("Starting remote profile")

	resp, err := c.call(ctx, "POST", token, "/browser/"+profileID+"/web", nil)
	if err != nil {
		return "", err
	}

	var started struct {
		WSURL string `json:"wsUrl"`
	}
	if err := resp.JSON(&started); err != nil {
		return "", err
	}
	if started.WSURL != "" {
		return started.WSURL, nil
	}
	return fmt.Sprintf(cloudEndpointFormat, url.QueryEscape(token), url.QueryEscape(profileID)), nil
}

// StopCloud stops the cloud browser session for the profile
func (c *Client) StopCloud(ctx context.Context, token, profileID string) error {
	c.logger.Info().Str("profile_id", profileID).Msg("Stopping remote profile")

	_, err := c.call(ctx, "DELETE", token, "/browser/"+profileID+"/web", nil)
	return err
}

// GetUser issues the minimal authenticated call used to probe a token
func (c *Client) GetUser(ctx context.Context, token string) error {
	_, err := c.call(ctx, "GET", token, "/user", nil)
	return err
}

// decodeProfileID extracts the opaque profile id from a create response,
// tolerating the two field names the service uses
func decodeProfileID(resp *httpclient.Response) (string, error) {
	var created struct {
		ID      string `json:"id"`
		MongoID string `json:"_id"`
	}
	if err := resp.JSON(&created); err != nil {
		return "", err
	}
	if created.ID != "" {
		return created.ID, nil
	}
	if created.MongoID != "" {
		return created.MongoID, nil
	}
	return "", fmt.Errorf("create response carried no profile id")
}
