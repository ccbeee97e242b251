// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// bundleNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	bundleNamespace = "bundle"

	sessionSubsystem = "session"
	streamSubsystem  = "stream"

	// 以下为当前使用的通用标签名。
	opLabelName         = "op"
	typeNameLabelName   = "type_name"
	codeLabelName       = "code"
	serializerLabelName = "serializer"

	PackOpLabel   = "pack"
	UnpackOpLabel = "unpack"
	EncodeOpLabel = "encode"
	DecodeOpLabel = "decode"
)

var (
	// buckets 为会话耗时直方图的桶划分，单位为毫秒。
	// 实际桶分布为：
	// [0.0625 0.125 0.25 0.5 1 2 4 8 16 32 64 128 256 512 1024 2048]
	buckets = prometheus.ExponentialBuckets(0.0625, 2, 16)

	// sizeBuckets 为编码后数据大小的桶划分，单位为字节。
	sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216} // 单位：字节

	PackedBundles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: bundleNamespace,
			Subsystem: sessionSubsystem,
			Name:      "packed_bundles_total",
			Help:      "number of bundles produced by pack sessions",
		}, []string{typeNameLabelName})

	UnpackedBundles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: bundleNamespace,
			Subsystem: sessionSubsystem,
			Name:      "unpacked_bundles_total",
			Help:      "number of bundles instantiated by unpack sessions",
		}, []string{typeNameLabelName})

	SessionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: bundleNamespace,
			Subsystem: sessionSubsystem,
			Name:      "latency_ms",
			Help:      "latency of pack/unpack sessions in milliseconds",
			Buckets:   buckets,
		}, []string{opLabelName})

	SessionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: bundleNamespace,
			Subsystem: sessionSubsystem,
			Name:      "failures_total",
			Help:      "number of failed sessions grouped by error code",
		}, []string{opLabelName, codeLabelName})

	StreamBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: bundleNamespace,
			Subsystem: streamSubsystem,
			Name:      "payload_bytes",
			Help:      "size of encoded bundle stream payloads",
			Buckets:   sizeBuckets,
		}, []string{opLabelName, serializerLabelName})

	metricRegisterer prometheus.Registerer
	registerOnce     sync.Once
)

// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// 通常应在 init 函数中调用，重复调用只有第一次生效。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(PackedBundles)
		r.MustRegister(UnpackedBundles)
		r.MustRegister(SessionLatency)
		r.MustRegister(SessionFailures)
		r.MustRegister(StreamBytes)
		metricRegisterer = r
	})
}
