package bundle

// Record 是 bundle 流中的一项：实例 ID 与其 bundle。
type Record struct {
	ID     InstanceID
	Bundle *Bundle
}

// Stream 是 Packer 产出的有序 bundle 序列，第一项总是根实体。
type Stream []Record

// Root 返回流中的第一项。
func (s Stream) Root() (Record, bool) {
	if len(s) == 0 {
		return Record{}, false
	}
	return s[0], true
}

// TypeCounts 统计每个类型在流中出现的次数。
func (s Stream) TypeCounts() map[EntityTypeName]int {
	counts := make(map[EntityTypeName]int)
	for _, rec := range s {
		if rec.Bundle != nil {
			counts[rec.Bundle.TypeName()]++
		}
	}
	return counts
}

// Equal 判断两个流的记录顺序与内容是否完全一致。
func (s Stream) Equal(o Stream) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i].ID != o[i].ID || !s[i].Bundle.Equal(o[i].Bundle) {
			return false
		}
	}
	return true
}
