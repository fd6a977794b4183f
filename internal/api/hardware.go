package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sous-kitchen/edge-core/internal/device"
	"github.com/sous-kitchen/edge-core/internal/pairing"
	"github.com/sous-kitchen/edge-core/internal/realtime"
)

// issuePairingCodeRequest is the body of POST /hardware/pairing-code.
type issuePairingCodeRequest struct {
	HardwareID string          `json:"hardwareId"`
	Type       string          `json:"type"`
	Metadata   device.Metadata `json:"metadata,omitempty"`
}

// issuePairingCodeResponse is returned to the requesting unit.
type issuePairingCodeResponse struct {
	Code       string `json:"code"`
	ExpiresAt  string `json:"expiresAt"`
	HardwareID string `json:"hardwareId"`
	Type       string `json:"type"`
}

// handleIssuePairingCode issues a short-lived pairing code for a hardware
// unit. Anonymous: a factory-fresh unit has nothing else to offer.
func (s *Server) handleIssuePairingCode(w http.ResponseWriter, r *http.Request) {
	var req issuePairingCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	code, err := s.pairing.Issue(r.Context(), req.HardwareID, req.Type, req.Metadata)
	if err != nil {
		if errors.Is(err, pairing.ErrInvalidHardwareID) {
			writeBadRequest(w, "hardwareId is required")
			return
		}
		s.logger.Error("pairing code issue failed", "error", err)
		writeInternalError(w, "failed to issue pairing code")
		return
	}

	writeJSON(w, http.StatusCreated, issuePairingCodeResponse{
		Code:       code.Code,
		ExpiresAt:  code.ExpiresAt.Format(time.RFC3339),
		HardwareID: code.HardwareID,
		Type:       string(code.DeviceType),
	})
}

// pairRequest is the body of POST /hardware/pair.
type pairRequest struct {
	Code       string  `json:"code"`
	LocationID *string `json:"locationId,omitempty"`
}

// handlePair redeems a pairing code, claiming the waiting unit for the
// caller's organisation.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)

	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Code == "" {
		writeBadRequest(w, "code is required")
		return
	}

	dev, err := s.pairing.Consume(r.Context(), req.Code, principal.OrganizationID, req.LocationID)
	if err != nil {
		if errors.Is(err, pairing.ErrCodeNotFound) {
			// Unknown and expired are deliberately indistinguishable.
			writeNotFound(w, "invalid or expired pairing code")
			return
		}
		s.logger.Error("pairing failed", "error", err)
		writeInternalError(w, "pairing failed")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// heartbeatRequest is the body of POST /hardware/heartbeat.
type heartbeatRequest struct {
	HardwareID string          `json:"hardwareId"`
	Metadata   device.Metadata `json:"metadata,omitempty"`
}

// heartbeatResponse acknowledges a heartbeat. RequiredVersion carries the
// firmware version the unit should be running, when one is pinned.
type heartbeatResponse struct {
	Success         bool    `json:"success"`
	RequiredVersion *string `json:"requiredVersion,omitempty"`
}

// handleHeartbeat records a liveness beat from a unit. Anonymous by
// design: heartbeats start before pairing completes. Unknown hardware IDs
// are rejected so a mistyped ID cannot silently report forever.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.HardwareID == "" {
		writeBadRequest(w, "hardwareId is required")
		return
	}

	dev, err := s.directory.ApplyHeartbeat(r.Context(), req.HardwareID, req.Metadata)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("heartbeat failed", "hardware_id", req.HardwareID, "error", err)
		writeInternalError(w, "heartbeat failed")
		return
	}

	if s.publisher != nil && dev.OrganizationID != nil {
		s.publisher.PublishToOrganization(*dev.OrganizationID, realtime.EventDeviceUpdated, dev)
	}

	writeJSON(w, http.StatusOK, heartbeatResponse{
		Success:         true,
		RequiredVersion: dev.RequiredVersion,
	})
}

// handleListDevices returns the devices of the caller's organisation.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)

	devices, err := s.directory.ListByOrganization(r.Context(), principal.OrganizationID)
	if err != nil {
		s.logger.Error("device list failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, devices)
}

// handleGetDevice returns a single device by ID, scoped to the caller's
// organisation. A device in another organisation is reported as missing,
// not forbidden.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)
	id := chi.URLParam(r, "id")

	dev, err := s.directory.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("device fetch failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to fetch device")
		return
	}

	if dev.OrganizationID == nil || *dev.OrganizationID != principal.OrganizationID {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}
