// Package proctor publishes integrity events on the signaling channel and
// keeps the feed received from the room.
package proctor

// Event types.
const (
	TabSwitch                   = "tab_switch"
	WindowBlur                  = "window_blur"
	FullscreenExit              = "fullscreen_exit"
	CopyPaste                   = "copy_paste"
	DevtoolsOpen                = "devtools_open"
	ScreenMonitorChanged        = "screen_monitor_changed"
	ScreenShareDenied           = "screen_share_denied"
	FaceMissing                 = "face_missing"
	MultipleFaces               = "multiple_faces"
	VirtualDevice               = "virtual_device"
	MultipleTestTabs            = "multiple_test_tabs_detected"
	SuspiciousActivity          = "suspicious_activity"
	ScreenShareStarted          = "screen_share_started"
	ScreenShareStopped          = "screen_share_stopped"
	ClipboardAttempt            = "clipboard_attempt"
	ScreenshotAttempt           = "screenshot_attempt"
	FocusLost                   = "focus_lost"
	ScreenContextViolation      = "screen_context_violation"
	FocusLostWhileSharing       = "focus_lost_while_screen_sharing"
	ConfirmedWrongScreenShared  = "confirmed_wrong_screen_shared"
	ScreenShareInterrupted      = "screen_share_interrupted"
	ScreenContextBaselineLocked = "screen_context_baseline_locked"
	ExtensionDetected           = "extension_detected"
	DevtoolsAttempt             = "devtools_attempt"
	ViewportCompromised         = "viewport_compromised"
	SourceViewAttempt           = "source_view_attempt"
)

type Level string

const (
	Critical Level = "critical"
	High     Level = "high"
	Medium   Level = "medium"
	Low      Level = "low"
)

var severities = map[string]Level{
	ScreenContextViolation:     Critical,
	ConfirmedWrongScreenShared: Critical,

	MultipleFaces:          High,
	FaceMissing:            High,
	VirtualDevice:          High,
	MultipleTestTabs:       High,
	SuspiciousActivity:     High,
	FocusLostWhileSharing:  High,
	ScreenShareInterrupted: High,
	ExtensionDetected:      High,
	ScreenshotAttempt:      High,
	ViewportCompromised:    High,
	DevtoolsAttempt:        High,
	SourceViewAttempt:      High,

	TabSwitch:        Medium,
	WindowBlur:       Medium,
	FullscreenExit:   Medium,
	CopyPaste:        Medium,
	DevtoolsOpen:     Medium,
	ClipboardAttempt: Medium,
	FocusLost:        Medium,

	ScreenMonitorChanged:        Low,
	ScreenShareDenied:           Low,
	ScreenShareStarted:          Low,
	ScreenShareStopped:          Low,
	ScreenContextBaselineLocked: Low,
}

// Severity returns the severity of an event type. Unknown types are low.
func Severity(eventType string) Level {
	if l, ok := severities[eventType]; ok {
		return l
	}
	return Low
}

// Known reports whether eventType is a recognised event type.
func Known(eventType string) bool {
	_, ok := severities[eventType]
	return ok
}
