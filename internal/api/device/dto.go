package device

type BindDeviceRequest struct {
	DeviceID string `json:"device_id" validate:"required,min=8,max=128"`
}

// BindDeviceResponse carries the signed device token the client presents on
// every subsequent request. A REBIND error action sends the device back here.
type BindDeviceResponse struct {
	DeviceID    string `json:"device_id"`
	DeviceToken string `json:"device_token"`
	ExpiresAt   int64  `json:"expires_at"`
}
