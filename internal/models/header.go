// internal/models/header.go
package models

import (
	"math"
	"time"
)

// Header is shared by every VDA5050 message. HeaderID is counted per topic.
type Header struct {
	HeaderID     uint32 `json:"headerId"`
	Timestamp    string `json:"timestamp"`
	Version      string `json:"version"`
	Manufacturer string `json:"manufacturer"`
	SerialNumber string `json:"serialNumber"`
}

// NewHeader builds a header stamped with the current time.
func NewHeader(headerID uint32, version, manufacturer, serialNumber string) Header {
	return Header{
		HeaderID:     headerID,
		Timestamp:    Timestamp(time.Now()),
		Version:      version,
		Manufacturer: manufacturer,
		SerialNumber: serialNumber,
	}
}

// Timestamp formats t the way the protocol expects (ISO8601, UTC).
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ToUint32 converts v to an unsigned 32-bit protocol identifier.
func ToUint32(field string, v int64) (uint32, error) {
	if v < 0 || v > math.MaxUint32 {
		return 0, &RangeError{Field: field, Value: v}
	}
	return uint32(v), nil
}
