package messaging

import (
	"fmt"
	"strings"

	"vda5050-bridge/internal/common/constants"
)

// TopicBuilder builds topics of the form
// <interface>/<version>/<manufacturer>/<serialNumber>/<messageType>.
type TopicBuilder struct {
	InterfaceName string
	Version       string
	Manufacturer  string
	SerialNumber  string
}

// NewTopicBuilder fills empty interface name and version with the defaults.
func NewTopicBuilder(interfaceName, version, manufacturer, serialNumber string) TopicBuilder {
	if interfaceName == "" {
		interfaceName = constants.DefaultInterfaceName
	}
	if version == "" {
		version = constants.DefaultMajorVersion
	}
	return TopicBuilder{
		InterfaceName: interfaceName,
		Version:       version,
		Manufacturer:  manufacturer,
		SerialNumber:  serialNumber,
	}
}

// Topic returns the topic of the given message type.
func (b TopicBuilder) Topic(messageType string) string {
	return strings.Join([]string{b.InterfaceName, b.Version, b.Manufacturer, b.SerialNumber, messageType}, "/")
}

// Topic is a parsed topic.
type Topic struct {
	InterfaceName string
	Version       string
	Manufacturer  string
	SerialNumber  string
	MessageType   string
}

// ParseTopic splits a topic into its five levels.
func ParseTopic(topic string) (Topic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 {
		return Topic{}, fmt.Errorf("invalid topic %q: expected 5 levels, got %d", topic, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return Topic{}, fmt.Errorf("invalid topic %q: empty level", topic)
		}
	}
	return Topic{
		InterfaceName: parts[0],
		Version:       parts[1],
		Manufacturer:  parts[2],
		SerialNumber:  parts[3],
		MessageType:   parts[4],
	}, nil
}

// MatchTopic reports whether topic matches filter, honouring the + and #
// wildcards.
func MatchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, level := range f {
		if level == "#" {
			return i == len(f)-1
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
