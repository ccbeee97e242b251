package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameSession   = "session"
	FieldNameTypeName  = "typeName"
	FieldNameInstance  = "instanceID"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldSession 返回一个包含打包/解包会话 ID 的 zap 字段。
func FieldSession(id string) zap.Field {
	return zap.String(FieldNameSession, id)
}

// FieldTypeName 返回一个包含实体类型名的 zap 字段。
func FieldTypeName(typeName string) zap.Field {
	return zap.String(FieldNameTypeName, typeName)
}

// FieldInstance 返回一个包含实例 ID 的 zap 字段。
func FieldInstance(id uint64) zap.Field {
	return zap.Uint64(FieldNameInstance, id)
}
