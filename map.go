package pomelo

// M is the shape of both raw storage payloads and decoded record
// attributes. Typed accessors return the zero value on a miss or a
// type mismatch; use the Has variants to tell the two apart.
type M map[string]interface{}

func (m M) String(k string) string {
	v, ok := m[k].(string)
	if !ok {
		return ""
	}
	return v
}

func (m M) HasString(k string) bool {
	_, ok := m[k].(string)
	return ok
}

func (m M) Int(k string) int {
	switch v := m[k].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		// JSON numbers decode as float64
		return int(v)
	default:
		return 0
	}
}

func (m M) HasInt(k string) bool {
	switch m[k].(type) {
	case int, int64, float64:
		return true
	default:
		return false
	}
}

func (m M) Bool(k string) bool {
	v, ok := m[k].(bool)
	if !ok {
		return false
	}
	return v
}

func (m M) HasBool(k string) bool {
	_, ok := m[k].(bool)
	return ok
}

func (m M) Float(k string) float64 {
	switch v := m[k].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func (m M) HasFloat(k string) bool {
	_, ok := m[k].(float64)
	return ok
}

func (m M) clone() M {
	cp := make(M, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
