// File: internal/render/scale.go
// Brief: CPU/memory request and limit scaling on rendered objects.

package render

import (
	"fmt"
	"regexp"
	"strconv"
)

var quantityRe = regexp.MustCompile(`^(\d+)(\.\d+)?([A-Za-z]+)?$`)

// ScaleResources walks an object looking for `resources` blocks and
// multiplies every request/limit quantity by factor. A factor <= 0 strips
// requests and limits instead.
func ScaleResources(obj any, factor float64) {
	switch v := obj.(type) {
	case []any:
		for _, item := range v {
			ScaleResources(item, factor)
		}
	case map[string]any:
		for key, val := range v {
			if key == "resources" {
				if resources, ok := val.(map[string]any); ok {
					scaleResourceBlock(resources, factor)
				}
			}
			ScaleResources(val, factor)
		}
	}
}

func scaleResourceBlock(resources map[string]any, factor float64) {
	if factor <= 0 {
		delete(resources, "limits")
		delete(resources, "requests")
		return
	}
	for _, section := range []string{"limits", "requests"} {
		block, ok := resources[section].(map[string]any)
		if !ok {
			continue
		}
		for name, val := range block {
			s, ok := val.(string)
			if !ok {
				s = fmt.Sprint(val)
			}
			block[name] = scaleQuantity(s, factor)
		}
	}
}

// scaleQuantity multiplies the numeric part of a quantity string like
// "500Mi", "200m", or "2", rounding to one decimal place. Unparseable values
// are returned unchanged.
func scaleQuantity(val string, factor float64) string {
	m := quantityRe.FindStringSubmatch(val)
	if m == nil {
		return val
	}
	num, err := strconv.ParseFloat(m[1]+m[2], 64)
	if err != nil {
		return val
	}
	scaled := num * factor
	rounded := float64(int64(scaled*10+0.5)) / 10
	return strconv.FormatFloat(rounded, 'f', -1, 64) + m[3]
}
