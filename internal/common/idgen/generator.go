// internal/common/idgen/generator.go
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator 접두사를 붙인 고유 ID 생성기
type Generator struct {
	prefix string
}

// NewGenerator 새 ID 생성기 생성 (첫 번째 접두사만 사용)
func NewGenerator(prefix ...string) *Generator {
	var p string
	if len(prefix) > 0 {
		p = prefix[0]
	}
	return &Generator{prefix: p}
}

// Derived 이름을 앞에 붙인 ID 생성 (예: "beep-action_<uuid>")
func (g *Generator) Derived(name string) string {
	if name == "" {
		return g.next()
	}
	return fmt.Sprintf("%s-%s", name, g.next())
}

func (g *Generator) next() string {
	id := uuid.New().String()
	if g.prefix != "" {
		return fmt.Sprintf("%s_%s", g.prefix, id)
	}
	return id
}

// Action 액션 ID 생성기
var Action = NewGenerator("action")

// IsValid ID 끝부분이 UUID인지 확인
func IsValid(id string) bool {
	if len(id) < 36 {
		return false
	}
	_, err := uuid.Parse(id[len(id)-36:])
	return err == nil
}
