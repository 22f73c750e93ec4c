package media

import "strings"

// VirtualDeviceKeywords are label fragments of known virtual capture and
// media injection tools.
var VirtualDeviceKeywords = []string{"virtual", "obs", "vb-cable", "manycam", "droidcam", "iriun"}

// VirtualDeviceKeyword returns the first keyword contained in label,
// ignoring case.
func VirtualDeviceKeyword(label string) (string, bool) {
	lower := strings.ToLower(label)
	for _, kw := range VirtualDeviceKeywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}
