package constants

import "time"

const (
	AppName = "mrsh"

	// Versions in declaration order. Resolution walks this list backwards.
	Version001 = "0.0.1"
	Version002 = "0.0.2"
	Version003 = "0.0.3"
	Version004 = "0.0.4"
	Version005 = "0.0.5"
	Version006 = "0.0.6"

	LatestVersion = Version006
)

// Versions lists every known protocol version, oldest first.
var Versions = []string{Version001, Version002, Version003, Version004, Version005, Version006}

const (
	// Token layout: hex selector followed by hex validator.
	SelectorBytes  = 32
	ValidatorBytes = 64
	SelectorLength = SelectorBytes * 2

	VerificationCodeBytes = 32

	ProfilePictureSize = 1024

	DefaultMessageCount = 20
	MaxChatMessageCount = 200
	MaxHistoryCount     = 500

	MaxNameLength       = 36
	MaxScreenNameLength = 20
	MaxTitleLength      = 30
	MaxMessageLength    = 4096
	MaxPasswordLength   = 64
	MaxEmailLength      = 254
)

const (
	WSClientSendBufferSize = 256
	WSMaxDroppedMessages   = 100
	WSCallRateInterval     = 100 * time.Millisecond
	WSCallBurst            = 20
)
