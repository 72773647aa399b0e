package history

import (
	"strings"

	"github.com/google/uuid"
)

// QualifyVisitID turns a browser-local visit id into a store-wide key by
// prefixing the originating device. An empty raw id gets a random UUID.
// Ids that already carry the device prefix are returned unchanged.
func QualifyVisitID(deviceID, raw string) string {
	if raw == "" {
		return deviceID + ":" + uuid.NewString()
	}
	if strings.HasPrefix(raw, deviceID+":") {
		return raw
	}
	return deviceID + ":" + raw
}

// QualifyReferrer qualifies a referring visit id. "0" and "" mean no referrer.
func QualifyReferrer(deviceID, raw string) string {
	if raw == "" || raw == "0" {
		return ""
	}
	return QualifyVisitID(deviceID, raw)
}
