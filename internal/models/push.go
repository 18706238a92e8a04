package models

// PushTarget is a registered delivery address for one user: either a
// browser subscription (WebTarget) or a native device token (MobileTarget).
type PushTarget interface {
	Owner() string
	Key() string
	isPushTarget()
}

// WebTarget is a Web Push subscription encrypted with the browser's public key
type WebTarget struct {
	UserID   string `json:"user_id"`
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

func (w WebTarget) Owner() string { return w.UserID }
func (w WebTarget) Key() string   { return "web:" + w.Endpoint }
func (WebTarget) isPushTarget()   {}

// MobileTarget is a native push token (FCM) for an Android or iOS device
type MobileTarget struct {
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (m MobileTarget) Owner() string { return m.UserID }
func (m MobileTarget) Key() string   { return "mobile:" + m.Token }
func (MobileTarget) isPushTarget()   {}
