// Copyright 2025 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metric

import (
	"io"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// prometheusNamespace prefixes every exported metric name.
const prometheusNamespace = "tkernel"

// PrometheusName returns the exposition name of a metric: the namespace
// followed by the path components of name joined with underscores.
func PrometheusName(name string) string {
	return prometheusNamespace + strings.ReplaceAll(name, "/", "_")
}

func (m *customUint64Metric) toFamily() *dto.MetricFamily {
	typ := dto.MetricType_GAUGE
	if m.cumulative {
		typ = dto.MetricType_COUNTER
	}
	mf := &dto.MetricFamily{
		Name: proto.String(PrometheusName(m.name)),
		Help: proto.String(m.description),
		Type: typ.Enum(),
	}
	for key := 0; key < m.fields.numKeys(); key++ {
		vals := m.fields.keyToMultiField(key)
		v := float64(m.value(vals...))
		pm := &dto.Metric{}
		for i, val := range vals {
			pm.Label = append(pm.Label, &dto.LabelPair{
				Name:  proto.String(m.fields.fields[i].name),
				Value: proto.String(val),
			})
		}
		if m.cumulative {
			pm.Counter = &dto.Counter{Value: proto.Float64(v)}
		} else {
			pm.Gauge = &dto.Gauge{Value: proto.Float64(v)}
		}
		mf.Metric = append(mf.Metric, pm)
	}
	return mf
}

// WritePrometheus writes every metric in r to w in the Prometheus text
// exposition format.
func (r *Registry) WritePrometheus(w io.Writer) error {
	for _, m := range r.sorted() {
		if _, err := expfmt.MetricFamilyToText(w, m.toFamily()); err != nil {
			return err
		}
	}
	return nil
}
