package api

// TokenCarrier is a request body with an access-token field the server
// verifies. The refresh-retry protocol rewrites that field before resending.
type TokenCarrier interface {
	SetAccessToken(token string)
}

// RegisterDeviceRequest is the body of POST /api/device.
type RegisterDeviceRequest struct {
	IDToken    string `json:"id_token"`
	DeviceName string `json:"device_name"`
}

// SetAccessToken implements TokenCarrier.
func (r *RegisterDeviceRequest) SetAccessToken(token string) { r.IDToken = token }

// SafeExitRequest is the body of POST /api/device/safe_exit_id.
type SafeExitRequest struct {
	IDToken    string `json:"id_token"`
	DeviceUUID string `json:"device_uuid"`
}

// SetAccessToken implements TokenCarrier.
func (r *SafeExitRequest) SetAccessToken(token string) { r.IDToken = token }

// VerifySafeExitRequest is the body of PATCH /api/device/safe_exit_id.
type VerifySafeExitRequest struct {
	IDToken    string `json:"id_token"`
	DeviceUUID string `json:"device_uuid"`
	SafeExitID string `json:"safe_exit_id"`
}

// SetAccessToken implements TokenCarrier.
func (r *VerifySafeExitRequest) SetAccessToken(token string) { r.IDToken = token }

// OfflineRequest is the body of PATCH /api/device.
type OfflineRequest struct {
	IDToken    string `json:"id_token"`
	DeviceUUID string `json:"device_uuid"`
}

// SetAccessToken implements TokenCarrier.
func (r *OfflineRequest) SetAccessToken(token string) { r.IDToken = token }

// EventReport maps a matched keyword to its count for one cycle.
type EventReport map[string]int

// EventRequest is the body of POST /api/event.
type EventRequest struct {
	IDToken    string      `json:"id_token"`
	DeviceUUID string      `json:"device_uuid"`
	Event      EventReport `json:"event"`
}

// SetAccessToken implements TokenCarrier.
func (r *EventRequest) SetAccessToken(token string) { r.IDToken = token }

// KeywordTiers is the GET /getBlacklist response.
type KeywordTiers struct {
	High []string `json:"keywords_high"`
	Mid  []string `json:"keywords_mid"`
	Low  []string `json:"keywords_low"`
}

// All returns every keyword, high tier first.
func (k KeywordTiers) All() []string {
	all := make([]string, 0, len(k.High)+len(k.Mid)+len(k.Low))
	all = append(all, k.High...)
	all = append(all, k.Mid...)
	all = append(all, k.Low...)
	return all
}
