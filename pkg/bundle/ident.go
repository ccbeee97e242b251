package bundle

import "fmt"

// EntityTypeName 标识一个可重建的实体类型，在注册表中作为工厂的查找键。
type EntityTypeName string

// EntityName 标识 bundle 中的一个字段，在同一个 bundle 内唯一。
type EntityName string

// InstanceID 标识一次打包/解包会话中的一个实例。
//
// 0 保留为空引用；Packer 在同一会话内按首次访问顺序依次分配 1, 2, 3, ...
type InstanceID uint64

// NullID 为空引用使用的实例 ID。
const NullID InstanceID = 0

// EntityReference 是指向另一个实体的前向引用。
//
// 它只携带实例 ID 与类型名，不持有对象指针；解析统一推迟到解包第二阶段。
type EntityReference struct {
	ID       InstanceID     `json:"id"`
	TypeName EntityTypeName `json:"type,omitempty"`
}

// NullReference 返回一个空引用。
func NullReference() EntityReference {
	return EntityReference{}
}

func (r EntityReference) IsNull() bool {
	return r.ID == NullID
}

func (r EntityReference) String() string {
	if r.IsNull() {
		return "<null>"
	}
	return fmt.Sprintf("%s#%d", r.TypeName, r.ID)
}
