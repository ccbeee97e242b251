package bundle

import (
	"fmt"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/typeutil"
)

// Verify 在不依赖注册表的情况下检查 stream 的结构完整性：
// 流非空、实例 ID 非零且唯一、所有引用都能在流内找到。
//
// 所有悬空引用会通过 merr.Combine 一并返回。
func Verify(stream Stream) error {
	if len(stream) == 0 {
		return merr.WrapErrParameterInvalidMsg("bundle: empty stream")
	}

	ids := typeutil.NewSet[InstanceID]()
	types := make(map[InstanceID]EntityTypeName, len(stream))
	for i, rec := range stream {
		if rec.Bundle == nil {
			return merr.WrapErrGraphInconsistent(fmt.Sprintf("record %d has no bundle", i))
		}
		if rec.ID == NullID {
			return merr.WrapErrGraphInconsistent(fmt.Sprintf("record %d uses the null instance id", i))
		}
		if ids.Contain(rec.ID) {
			return merr.WrapErrGraphInconsistent(fmt.Sprintf("instance id %d appears more than once", rec.ID))
		}
		ids.Insert(rec.ID)
		types[rec.ID] = rec.Bundle.TypeName()
	}

	var errs []error
	reported := typeutil.NewSet[InstanceID]()
	for _, rec := range stream {
		for _, ref := range rec.Bundle.References() {
			if !ids.Contain(ref.ID) {
				if !reported.Contain(ref.ID) {
					reported.Insert(ref.ID)
					errs = append(errs, danglingReference(ref))
				}
				continue
			}
			if ref.TypeName != "" && types[ref.ID] != ref.TypeName {
				errs = append(errs, merr.WrapErrGraphInconsistent(
					fmt.Sprintf("reference %s points at an instance of type %s", ref, types[ref.ID])))
			}
		}
	}
	return merr.Combine(errs...)
}
