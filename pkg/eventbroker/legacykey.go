package eventbroker

import "strings"

const (
	legacyKeySeparator       = "."
	legacyKeySuffixSeparator = "@"
)

// LegacyKey is the identity older plugin SDKs use instead of an access token.
// Its string form is "<receiverId>.<pluginId>[@<transportSuffix>]".
type LegacyKey struct {
	ReceiverID      string
	PluginID        string
	TransportSuffix string
}

// String encodes the key.
func (k LegacyKey) String() string {
	return EncodeLegacyKey(k.ReceiverID, k.PluginID, k.TransportSuffix)
}

// EncodeLegacyKey builds the legacy session key. An empty suffix is omitted.
func EncodeLegacyKey(receiverID, pluginID, suffix string) string {
	key := receiverID + legacyKeySeparator + pluginID
	if suffix != "" {
		key += legacyKeySuffixSeparator + suffix
	}
	return key
}

// DecodeLegacyKey parses a legacy session key. The suffix is cut at the last
// "@", then receiver and plugin ID are split at the last ".". Keys without a
// usable "." are returned as receiver and plugin ID unchanged.
func DecodeLegacyKey(key string) LegacyKey {
	var k LegacyKey

	if idx := strings.LastIndex(key, legacyKeySuffixSeparator); idx != -1 {
		k.TransportSuffix = key[idx+len(legacyKeySuffixSeparator):]
		key = key[:idx]
	}

	idx := strings.LastIndex(key, legacyKeySeparator)
	if idx <= 0 {
		k.ReceiverID = key
		k.PluginID = key
		return k
	}

	k.ReceiverID = key[:idx]
	k.PluginID = key[idx+len(legacyKeySeparator):]
	return k
}
