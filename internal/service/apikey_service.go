package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/config"
	"github.com/makkenzo/apikey-service-api/internal/domain/api"
	"github.com/makkenzo/apikey-service-api/internal/domain/apikey"
	"github.com/makkenzo/apikey-service-api/internal/domain/audit"
	"github.com/makkenzo/apikey-service-api/internal/handler/dto"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
	"github.com/makkenzo/apikey-service-api/internal/ipfilter"
	"github.com/makkenzo/apikey-service-api/internal/keycodec"
	"go.uber.org/zap"
)

type KeyGenerator interface {
	Generate() keycodec.Generated
}

// RequestInfo identifies the administrative caller in audit entries.
type RequestInfo struct {
	ClientIP  string
	UserAgent string
}

type APIKeyService struct {
	keys   apikey.Repository
	apis   api.Repository
	codec  KeyGenerator
	audit  AuditRecorder
	limits config.LimitsConfig
	now    func() time.Time
	logger *zap.Logger
}

func NewAPIKeyService(
	keys apikey.Repository,
	apis api.Repository,
	codec KeyGenerator,
	audit AuditRecorder,
	limits config.LimitsConfig,
	logger *zap.Logger,
) *APIKeyService {
	return &APIKeyService{
		keys:   keys,
		apis:   apis,
		codec:  codec,
		audit:  audit,
		limits: limits,
		now:    time.Now,
		logger: logger.Named("APIKeyService"),
	}
}

// WithClock overrides the time source.
func (s *APIKeyService) WithClock(now func() time.Time) *APIKeyService {
	s.now = now
	return s
}

// CreateAPIKey issues a key under one of the caller's APIs. The raw key is
// returned here and never again.
func (s *APIKeyService) CreateAPIKey(ctx context.Context, userID uuid.UUID, req *dto.CreateAPIKeyRequest, info RequestInfo) (*apikey.APIKey, string, error) {
	if _, err := ownedAPI(ctx, s.apis, userID, req.APIID); err != nil {
		return nil, "", err
	}
	if err := validateAllowedIPs(req.AllowedIPs); err != nil {
		return nil, "", err
	}
	if err := validateMetadata(req.Metadata); err != nil {
		return nil, "", err
	}
	refill := apikey.RefillPolicy{
		Enabled:  req.RefillEnabled,
		Amount:   req.RefillAmount,
		Interval: req.RefillInterval,
	}
	if err := validateRefill(refill); err != nil {
		return nil, "", err
	}

	gen := s.codec.Generate()
	s.logger.Info("Generating new API key", zap.String("api_id", req.APIID.String()), zap.String("prefix", gen.DisplayPrefix))

	newKey := &apikey.APIKey{
		APIID:           req.APIID,
		KeyHash:         gen.Hash,
		Prefix:          gen.DisplayPrefix,
		Name:            req.Name,
		OwnerID:         req.OwnerID,
		Metadata:        normalizeMetadata(req.Metadata),
		AllowedIPs:      req.AllowedIPs,
		RateLimitMax:    orDefault(req.RateLimitMax, s.limits.DefaultRateLimit),
		RateLimitWindow: orDefault(req.RateLimitWindow, s.limits.DefaultRateWindow),
		RemainingUses:   req.RemainingUses,
		MaxUses:         req.RemainingUses,
		Refill:          refill,
		ExpiresAt:       req.ExpiresAt,
		DeleteProtected: req.DeleteProtection,
	}

	id, err := s.keys.Create(ctx, newKey)
	if err != nil {
		s.logger.Error("Failed to save new api key", zap.Error(err))
		return nil, "", fmt.Errorf("repository error creating api key: %w", err)
	}

	created, err := s.keys.FindByID(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("failed to retrieve created api key (id: %s): %w", id, err)
	}

	s.audit.Record(ctx, id, audit.ActionCreate, info.ClientIP, info.UserAgent, nil)

	s.logger.Info("API key created successfully", zap.String("id", id.String()), zap.String("prefix", created.Prefix))
	return created, gen.RawKey, nil
}

// ListAPIKeys lists keys of the caller's APIs, optionally narrowed to one
// API and/or one owner label.
func (s *APIKeyService) ListAPIKeys(ctx context.Context, userID uuid.UUID, req *dto.ListAPIKeysRequest) ([]*apikey.APIKey, error) {
	var apiIDs []uuid.UUID
	if req.APIID != nil {
		if _, err := ownedAPI(ctx, s.apis, userID, *req.APIID); err != nil {
			return nil, err
		}
		apiIDs = []uuid.UUID{*req.APIID}
	} else {
		owned, err := s.apis.ListByOwner(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("repository error listing apis: %w", err)
		}
		if len(owned) == 0 {
			return []*apikey.APIKey{}, nil
		}
		for _, a := range owned {
			apiIDs = append(apiIDs, a.ID)
		}
	}

	keys, err := s.keys.List(ctx, apikey.ListParams{APIIDs: apiIDs, OwnerID: req.OwnerID})
	if err != nil {
		s.logger.Error("Failed to list api keys from repository", zap.Error(err))
		return nil, fmt.Errorf("repository error listing api keys: %w", err)
	}

	s.logger.Debug("API keys listed", zap.Int("count", len(keys)))
	return keys, nil
}

func (s *APIKeyService) GetAPIKey(ctx context.Context, userID, keyID uuid.UUID) (*apikey.APIKey, error) {
	return ownedKey(ctx, s.apis, s.keys, userID, keyID)
}

// UpdateAPIKey applies a partial update. Revocation state, hash and prefix
// are never touched here.
func (s *APIKeyService) UpdateAPIKey(ctx context.Context, userID, keyID uuid.UUID, req *dto.UpdateAPIKeyRequest, info RequestInfo) (*apikey.APIKey, error) {
	key, err := ownedKey(ctx, s.apis, s.keys, userID, keyID)
	if err != nil {
		return nil, err
	}

	var updated []string
	if req.Name != nil {
		key.Name = req.Name
		updated = append(updated, "name")
	}
	if req.OwnerID != nil {
		key.OwnerID = req.OwnerID
		updated = append(updated, "owner_id")
	}
	if req.Metadata != nil {
		if err := validateMetadata(req.Metadata); err != nil {
			return nil, err
		}
		key.Metadata = normalizeMetadata(req.Metadata)
		updated = append(updated, "metadata")
	}
	if req.AllowedIPs != nil {
		if err := validateAllowedIPs(*req.AllowedIPs); err != nil {
			return nil, err
		}
		key.AllowedIPs = *req.AllowedIPs
		updated = append(updated, "allowed_ips")
	}
	if req.RateLimitMax != nil {
		// Zero lifts the rate limit.
		if *req.RateLimitMax == 0 {
			key.RateLimitMax = nil
		} else {
			key.RateLimitMax = req.RateLimitMax
		}
		updated = append(updated, "rate_limit_max")
	}
	if req.RateLimitWindow != nil {
		key.RateLimitWindow = req.RateLimitWindow
		updated = append(updated, "rate_limit_window")
	}
	budgetChanged := false
	if req.RemainingUses != nil {
		key.RemainingUses = req.RemainingUses
		if key.MaxUses == nil || *key.MaxUses < *req.RemainingUses {
			key.MaxUses = req.RemainingUses
		}
		budgetChanged = true
		updated = append(updated, "remaining_uses")
	}
	if req.RefillEnabled != nil {
		key.Refill.Enabled = *req.RefillEnabled
		updated = append(updated, "refill_enabled")
	}
	if req.RefillAmount != nil {
		key.Refill.Amount = req.RefillAmount
		updated = append(updated, "refill_amount")
	}
	if req.RefillInterval != nil {
		key.Refill.Interval = req.RefillInterval
		updated = append(updated, "refill_interval")
	}
	if err := validateRefill(key.Refill); err != nil {
		return nil, err
	}
	if req.ExpiresAt != nil {
		key.ExpiresAt = req.ExpiresAt
		updated = append(updated, "expires_at")
	}
	if req.DeleteProtection != nil {
		key.DeleteProtected = *req.DeleteProtection
		updated = append(updated, "delete_protection")
	}

	if len(updated) == 0 {
		return key, nil
	}

	if err := s.keys.Update(ctx, key); err != nil {
		s.logger.Error("Failed to update api key", zap.String("id", keyID.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ierr.ErrUpdateFailed, err)
	}
	if budgetChanged {
		if err := s.keys.SetUsageBudget(ctx, keyID, key.RemainingUses, key.MaxUses); err != nil {
			s.logger.Error("Failed to set usage budget", zap.String("id", keyID.String()), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ierr.ErrUpdateFailed, err)
		}
	}

	s.audit.Record(ctx, keyID, audit.ActionUpdate, info.ClientIP, info.UserAgent, audit.Context{
		"updated_fields": updated,
	})

	s.logger.Info("API key updated", zap.String("id", keyID.String()), zap.Strings("fields", updated))
	return s.keys.FindByID(ctx, keyID)
}

// RevokeAPIKey permanently revokes a key. Delete-protected keys require
// force. Revoking a revoked key is a no-op.
func (s *APIKeyService) RevokeAPIKey(ctx context.Context, userID, keyID uuid.UUID, force bool, info RequestInfo) error {
	key, err := ownedKey(ctx, s.apis, s.keys, userID, keyID)
	if err != nil {
		return err
	}
	if key.DeleteProtected && !force {
		return ierr.ErrDeleteProtected
	}
	if key.Revoked {
		return nil
	}

	if err := s.keys.Revoke(ctx, keyID, s.now()); err != nil {
		s.logger.Error("Failed to revoke api key via repository", zap.String("id", keyID.String()), zap.Error(err))
		return fmt.Errorf("repository error revoking api key %s: %w", keyID, err)
	}

	s.audit.Record(ctx, keyID, audit.ActionRevoke, info.ClientIP, info.UserAgent, nil)

	s.logger.Info("API key revoked successfully", zap.String("id", keyID.String()))
	return nil
}

// RotateAPIKey revokes the key and issues a replacement with the same
// settings and a full usage budget.
func (s *APIKeyService) RotateAPIKey(ctx context.Context, userID, keyID uuid.UUID, info RequestInfo) (*apikey.APIKey, string, error) {
	old, err := ownedKey(ctx, s.apis, s.keys, userID, keyID)
	if err != nil {
		return nil, "", err
	}
	if old.Revoked {
		return nil, "", fmt.Errorf("%w: key is already revoked", ierr.ErrConflict)
	}

	gen := s.codec.Generate()
	replacement := &apikey.APIKey{
		APIID:           old.APIID,
		KeyHash:         gen.Hash,
		Prefix:          gen.DisplayPrefix,
		Name:            old.Name,
		OwnerID:         old.OwnerID,
		Metadata:        old.Metadata,
		AllowedIPs:      old.AllowedIPs,
		RateLimitMax:    old.RateLimitMax,
		RateLimitWindow: old.RateLimitWindow,
		RemainingUses:   old.MaxUses,
		MaxUses:         old.MaxUses,
		Refill: apikey.RefillPolicy{
			Enabled:  old.Refill.Enabled,
			Amount:   old.Refill.Amount,
			Interval: old.Refill.Interval,
		},
		ExpiresAt:       old.ExpiresAt,
		DeleteProtected: old.DeleteProtected,
	}

	newID, err := s.keys.Rotate(ctx, keyID, replacement, s.now())
	if err != nil {
		s.logger.Error("Failed to rotate api key", zap.String("id", keyID.String()), zap.Error(err))
		return nil, "", fmt.Errorf("repository error rotating api key %s: %w", keyID, err)
	}

	s.audit.Record(ctx, keyID, audit.ActionRotateOld, info.ClientIP, info.UserAgent, audit.Context{
		"new_key_id": newID.String(),
	})
	s.audit.Record(ctx, newID, audit.ActionRotateNew, info.ClientIP, info.UserAgent, audit.Context{
		"old_key_id": keyID.String(),
	})

	created, err := s.keys.FindByID(ctx, newID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to retrieve rotated api key (id: %s): %w", newID, err)
	}

	s.logger.Info("API key rotated", zap.String("old_id", keyID.String()), zap.String("new_id", newID.String()))
	return created, gen.RawKey, nil
}

func validateAllowedIPs(list []string) error {
	if invalid := ipfilter.Validate(list); len(invalid) > 0 {
		return fmt.Errorf("%w: invalid allowed_ips entries: %s", ierr.ErrValidation, strings.Join(invalid, ", "))
	}
	return nil
}

func validateMetadata(raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] != '{' {
		return fmt.Errorf("%w: metadata must be a JSON object", ierr.ErrValidation)
	}
	return nil
}

func normalizeMetadata(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), trimmed...)
}

func validateRefill(p apikey.RefillPolicy) error {
	if !p.Enabled {
		return nil
	}
	if p.Amount == nil || *p.Amount <= 0 || p.Interval == nil || *p.Interval <= 0 {
		return fmt.Errorf("%w: refill requires a positive refill_amount and refill_interval", ierr.ErrValidation)
	}
	return nil
}

func orDefault(v *int, def int) *int {
	if v != nil {
		return v
	}
	return intPtr(def)
}
