package storage

import (
	"encoding/json"
	"fmt"
)

// Merge deep-merges a partial JSON document into a stored one and
// returns the merged result. The policy is:
//
//   - objects merge recursively, key by key
//   - arrays in the patch replace the stored array wholesale
//   - an explicit null in the patch overwrites the stored value
//   - scalars in the patch overwrite the stored value
//
// Keys present only in the target are preserved. Neither input is
// mutated.
func Merge(target, patch json.RawMessage) (json.RawMessage, error) {
	var targetVal, patchVal interface{}
	if err := json.Unmarshal(target, &targetVal); err != nil {
		return nil, fmt.Errorf("failed to parse merge target: %w", err)
	}
	if err := json.Unmarshal(patch, &patchVal); err != nil {
		return nil, fmt.Errorf("failed to parse merge patch: %w", err)
	}

	merged := mergeValue(targetVal, patchVal)

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize merged document: %w", err)
	}
	return out, nil
}

func mergeValue(target, patch interface{}) interface{} {
	targetMap, targetIsMap := target.(map[string]interface{})
	patchMap, patchIsMap := patch.(map[string]interface{})

	// Anything but an object-into-object merge is a replacement. This
	// covers arrays, scalars, and explicit nulls.
	if !targetIsMap || !patchIsMap {
		return patch
	}

	merged := make(map[string]interface{}, len(targetMap)+len(patchMap))
	for k, v := range targetMap {
		merged[k] = v
	}
	for k, patchChild := range patchMap {
		if targetChild, ok := merged[k]; ok {
			merged[k] = mergeValue(targetChild, patchChild)
		} else {
			merged[k] = patchChild
		}
	}
	return merged
}
