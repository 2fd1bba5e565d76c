package mgmtapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/1sec-project/netresponse/internal/validate"
)

const (
	maxMassQuarantine  = 100
	maxBlockIndicators = 50
)

type isolateRequest struct {
	DeviceID      string `json:"device_id"`
	Action        string `json:"action"`
	RollbackTimer *int   `json:"rollback_timer"`
}

type quarantineRequest struct {
	DeviceID string `json:"device_id"`
	Action   string `json:"action"`
	Reason   string `json:"reason,omitempty"`
}

type massQuarantineRequest struct {
	DeviceIDs []string `json:"device_ids"`
	Action    string   `json:"action"`
	Reason    string   `json:"reason,omitempty"`
}

type rollbackRequest struct {
	ActionID string `json:"action_id"`
}

// BlockRequest asks the management plane to block a threat source seen on a device.
type BlockRequest struct {
	DeviceID   string   `json:"device_id"`
	SourceIP   string   `json:"source_ip,omitempty"`
	SourceMAC  string   `json:"source_mac,omitempty"`
	ThreatID   string   `json:"threat_id,omitempty"`
	Indicators []string `json:"indicators,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

func (r BlockRequest) validate() error {
	if err := validate.DeviceID(r.DeviceID); err != nil {
		return err
	}
	if r.SourceIP == "" && r.SourceMAC == "" {
		return &validate.ValidationError{Field: "source", Reason: "source_ip or source_mac is required"}
	}
	if r.SourceIP != "" {
		if err := validate.IPAddress(r.SourceIP); err != nil {
			return err
		}
	}
	if r.SourceMAC != "" {
		if err := validate.MACAddress(r.SourceMAC); err != nil {
			return err
		}
	}
	if len(r.Indicators) > maxBlockIndicators {
		return &validate.ValidationError{Field: "indicators", Reason: fmt.Sprintf("at most %d indicators allowed", maxBlockIndicators)}
	}
	return validate.ReasonText(r.Reason)
}

// GetDeviceStatus fetches the current status of a device.
func (c *Client) GetDeviceStatus(ctx context.Context, deviceID string) (map[string]interface{}, error) {
	if err := validate.DeviceID(deviceID); err != nil {
		return nil, err
	}
	return c.Request(ctx, http.MethodGet, "/api/v2/devices/"+deviceID+"/status", nil, nil)
}

// IsolateDevice cuts a device off the network. A nil rollbackTimer leaves
// the rollback decision to the server.
func (c *Client) IsolateDevice(ctx context.Context, deviceID string, rollbackTimer *int) (map[string]interface{}, error) {
	if err := validate.DeviceID(deviceID); err != nil {
		return nil, err
	}
	if rollbackTimer != nil {
		if err := validate.RollbackTimer(*rollbackTimer); err != nil {
			return nil, err
		}
	}
	return c.Request(ctx, http.MethodPost, "/api/v2/devices/isolate", isolateRequest{
		DeviceID:      deviceID,
		Action:        "isolate",
		RollbackTimer: rollbackTimer,
	}, nil)
}

// QuarantineDevice moves a device into the quarantine role.
func (c *Client) QuarantineDevice(ctx context.Context, deviceID, reason string) (map[string]interface{}, error) {
	if err := validate.DeviceID(deviceID); err != nil {
		return nil, err
	}
	if err := validate.ReasonText(reason); err != nil {
		return nil, err
	}
	return c.Request(ctx, http.MethodPost, "/api/v2/devices/quarantine", quarantineRequest{
		DeviceID: deviceID,
		Action:   "quarantine",
		Reason:   reason,
	}, nil)
}

// MassQuarantine quarantines several devices in one call, for coordinated attacks.
func (c *Client) MassQuarantine(ctx context.Context, deviceIDs []string, reason string) (map[string]interface{}, error) {
	if len(deviceIDs) == 0 || len(deviceIDs) > maxMassQuarantine {
		return nil, &validate.ValidationError{Field: "device_ids", Reason: fmt.Sprintf("must contain between 1 and %d devices", maxMassQuarantine)}
	}
	for _, id := range deviceIDs {
		if err := validate.DeviceID(id); err != nil {
			return nil, err
		}
	}
	if err := validate.ReasonText(reason); err != nil {
		return nil, err
	}
	return c.Request(ctx, http.MethodPost, "/api/v2/devices/quarantine", massQuarantineRequest{
		DeviceIDs: deviceIDs,
		Action:    "mass_quarantine",
		Reason:    reason,
	}, nil)
}

// GetThreats lists recent threats. An empty severity returns all levels.
func (c *Client) GetThreats(ctx context.Context, limit int, severity string) (map[string]interface{}, error) {
	if err := validate.Limit(limit); err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if severity != "" {
		sev, err := validate.SeverityFilter(severity)
		if err != nil {
			return nil, err
		}
		query.Set("severity", sev)
	}
	return c.Request(ctx, http.MethodGet, "/api/v2/security/threats", nil, query)
}

// BlockThreat blocks a malicious source address.
func (c *Client) BlockThreat(ctx context.Context, req BlockRequest) (map[string]interface{}, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	return c.Request(ctx, http.MethodPost, "/api/v2/security/block", req, nil)
}

// UpdateSecurityPolicy replaces a security policy document.
func (c *Client) UpdateSecurityPolicy(ctx context.Context, policyID string, policy map[string]interface{}) (map[string]interface{}, error) {
	if err := validate.PolicyID(policyID); err != nil {
		return nil, err
	}
	if len(policy) == 0 {
		return nil, &validate.ValidationError{Field: "policy", Reason: "policy document must not be empty"}
	}
	return c.Request(ctx, http.MethodPut, "/api/v2/security/policies/"+policyID, policy, nil)
}

// RollbackAction reverts a previously executed security action.
func (c *Client) RollbackAction(ctx context.Context, actionID string) (map[string]interface{}, error) {
	if actionID == "" || len(actionID) > 256 {
		return nil, &validate.ValidationError{Field: "action_id", Reason: "must be a non-empty string of at most 256 characters"}
	}
	return c.Request(ctx, http.MethodPost, "/api/v2/security/rollback", rollbackRequest{ActionID: actionID}, nil)
}
