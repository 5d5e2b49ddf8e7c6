package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ac-freeman/open-accountability/internal/device"
)

// Backend paths.
const (
	PathDevice    = "/api/device"
	PathSafeExit  = "/api/device/safe_exit_id"
	PathBlacklist = "/getBlacklist"
	PathEvent     = "/api/event"
)

// RegisterDevice asks the backend for a device UUID. The caller interprets
// the status; on success the body is the UUID as plain text.
func (c *Client) RegisterDevice(ctx context.Context, id *device.Identity) (*Response, error) {
	return c.do(ctx, id, http.MethodPost, PathDevice, &RegisterDeviceRequest{
		DeviceName: id.Name,
	})
}

// NegotiateSafeExit requests a one-time tamper-exit token for id.
func (c *Client) NegotiateSafeExit(ctx context.Context, id *device.Identity) (*Response, error) {
	return c.do(ctx, id, http.MethodPost, PathSafeExit, &SafeExitRequest{
		DeviceUUID: id.UUID,
	})
}

// VerifySafeExit asks whether id's tamper-exit token matches the server's
// record. Any 2xx is a match.
func (c *Client) VerifySafeExit(ctx context.Context, id *device.Identity) (*Response, error) {
	return c.do(ctx, id, http.MethodPatch, PathSafeExit, &VerifySafeExitRequest{
		DeviceUUID: id.UUID,
		SafeExitID: id.TamperExitToken,
	})
}

// NotifyOffline tells the backend the device is going offline.
func (c *Client) NotifyOffline(ctx context.Context, id *device.Identity) (*Response, error) {
	return c.do(ctx, id, http.MethodPatch, PathDevice, &OfflineRequest{
		DeviceUUID: id.UUID,
	})
}

// FetchBlacklist downloads the keyword tiers.
func (c *Client) FetchBlacklist(ctx context.Context, id *device.Identity) (KeywordTiers, error) {
	resp, err := c.do(ctx, id, http.MethodGet, PathBlacklist, nil)
	if err != nil {
		return KeywordTiers{}, err
	}
	if !resp.OK() {
		return KeywordTiers{}, &StatusError{
			Method:     http.MethodGet,
			Path:       PathBlacklist,
			StatusCode: resp.StatusCode,
			Body:       resp.Text(),
		}
	}

	var tiers KeywordTiers
	if err := json.Unmarshal(resp.Body, &tiers); err != nil {
		return KeywordTiers{}, fmt.Errorf("decoding blacklist: %w", err)
	}
	return tiers, nil
}

// PostEvent reports one cycle's keyword counts and returns the server's reply.
func (c *Client) PostEvent(ctx context.Context, id *device.Identity, report EventReport) (string, error) {
	if report == nil {
		report = EventReport{}
	}
	resp, err := c.do(ctx, id, http.MethodPost, PathEvent, &EventRequest{
		DeviceUUID: id.UUID,
		Event:      report,
	})
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &StatusError{
			Method:     http.MethodPost,
			Path:       PathEvent,
			StatusCode: resp.StatusCode,
			Body:       resp.Text(),
		}
	}
	return resp.Text(), nil
}
