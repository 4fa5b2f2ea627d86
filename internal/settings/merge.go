package settings

import "encoding/json"

// Merge applies patch on top of base. Top-level values that are objects on
// both sides are merged key by key; every other top-level value replaces the
// base value wholesale. A secret posted back as Mask keeps the base value.
func Merge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, pv := range patch {
		if pv == nil {
			if _, isSection := out[k].(map[string]any); isSection {
				continue
			}
		}
		bsec, bok := out[k].(map[string]any)
		psec, pok := pv.(map[string]any)
		if !bok || !pok {
			out[k] = pv
			continue
		}
		merged := make(map[string]any, len(bsec)+len(psec))
		for kk, vv := range bsec {
			merged[kk] = vv
		}
		for kk, vv := range psec {
			if s, ok := vv.(string); ok && s == Mask && isSecret(k, kk) {
				continue
			}
			merged[kk] = vv
		}
		out[k] = merged
	}
	return out
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any) (Settings, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
