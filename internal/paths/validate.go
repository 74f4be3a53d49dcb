package paths

import (
	"fmt"
	"regexp"
	"strings"
)

var channelRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,80}$`)

// ChannelName strips a leading '#' and checks the rest against the
// destination's channel naming rules.
func ChannelName(raw string) (string, error) {
	name := strings.TrimPrefix(raw, "#")
	if !channelRegexp.MatchString(name) {
		return "", fmt.Errorf("invalid channel name %q: must match ^[a-z0-9_-]{1,80}$", raw)
	}
	return name, nil
}
