package oftest

import (
	"errors"
	"fmt"

	"github.com/jackyang74/oftest/ofp4"
)

var ErrUnsupportedVersion = errors.New("unsupported openflow version")

// Parse decodes one message, picking the codec by the version byte.
func Parse(data []byte) (any, error) {
	if len(data) < 1 {
		return nil, &ofp4.DecodeError{Kind: ofp4.Truncated}
	}
	switch data[0] {
	case ofp4.OFP_VERSION:
		return ofp4.Decode(data)
	}
	return nil, fmt.Errorf("version %d: %w", data[0], ErrUnsupportedVersion)
}
