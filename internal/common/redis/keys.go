// internal/common/redis/keys.go
package redis

import (
	"fmt"
	"strings"
)

// 키 패턴
const (
	VehicleStatePattern      = "vehicle_state:%s:%s"
	VehicleConnectionPattern = "vehicle_connection:%s:%s"
)

// KeyType 키 종류
type KeyType string

const (
	KeyTypeVehicleState      KeyType = "vehicle_state"
	KeyTypeVehicleConnection KeyType = "vehicle_connection"
)

// VehicleState 차량 최신 상태 키
func VehicleState(manufacturer, serialNumber string) string {
	return fmt.Sprintf(VehicleStatePattern, manufacturer, serialNumber)
}

// VehicleConnection 차량 연결 상태 키
func VehicleConnection(manufacturer, serialNumber string) string {
	return fmt.Sprintf(VehicleConnectionPattern, manufacturer, serialNumber)
}

// GetKeyType 키에서 타입 추출
func GetKeyType(key string) KeyType {
	prefix, _, ok := strings.Cut(key, ":")
	if !ok {
		return ""
	}
	switch KeyType(prefix) {
	case KeyTypeVehicleState, KeyTypeVehicleConnection:
		return KeyType(prefix)
	}
	return ""
}
