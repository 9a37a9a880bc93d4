package core

import "errors"

// ErrNotEnabled is returned by Decide when the controller has not been
// started with Enable.
var ErrNotEnabled = errors.New("admission core: controller not enabled")

// ErrAlreadyEnabled is returned by Enable when called twice.
var ErrAlreadyEnabled = errors.New("admission core: controller already enabled")

// Reason keys, the stable taxonomy of spec.md §7.
const (
	ReasonInvalidName             = "invalid_name"
	ReasonIPLimit                 = "ip_limit"
	ReasonBlacklisted             = "blacklisted"
	ReasonWaitBeforeReconnecting  = "wait_before_reconnecting"
	ReasonPleaseReconnect         = "please_reconnect"
	ReasonIllegalGroundTransition = "illegal_ground_transition"
	ReasonWrongLandingHeight      = "wrong_landing_height"
	ReasonExceededFallTicks       = "exceeded_fall_ticks"
	ReasonUnexpectedYMotion       = "unexpected_y_motion"
	ReasonCollisionWrongY         = "collision_wrong_y"
	ReasonBelowPlatformNotOnGround = "below_platform_not_on_ground"
	ReasonNotOnGround             = "not_on_ground"
	ReasonVehicleAnomaly          = "vehicle_anomaly"
	ReasonInvalidBrand            = "invalid_brand"
	ReasonCaptchaTimeout          = "captcha_timeout"
	ReasonCaptchaNoTries          = "captcha_no_tries"
	ReasonCaptchaFailed           = "captcha_failed"
	ReasonTimeout                 = "timeout"
	ReasonStale                   = "stale"
	ReasonClientClosed            = "client_closed"
	ReasonInternal                = "internal"
)
