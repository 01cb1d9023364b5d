package trace

import (
	"encoding/json"
	"fmt"
	"io"
)

// A flowset entry in the experiment params file is a heterogeneous array:
// the CCA name first, the client port list at index 3, and the server
// port at index 4.
const (
	flowsetCCAIdx         = 0
	flowsetClientPortsIdx = 3
	flowsetServerPortIdx  = 4
)

// ParseParams reads an experiment params file and returns the flow-to-CCA
// map, preserving the declaration order of the flows.
func ParseParams(r io.Reader) ([]FlowKey, map[FlowKey]CCA, error) {
	var params struct {
		Flowsets []json.RawMessage `json:"flowsets"`
	}
	if err := json.NewDecoder(r).Decode(&params); err != nil {
		return nil, nil, fmt.Errorf("trace: decoding params: %w", err)
	}

	var keys []FlowKey
	flowCCA := make(map[FlowKey]CCA)
	for i, raw := range params.Flowsets {
		var fields []json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, nil, fmt.Errorf("trace: flowset %d: %w", i, err)
		}
		if len(fields) <= flowsetServerPortIdx {
			return nil, nil, fmt.Errorf("trace: flowset %d: want at least %d fields, got %d",
				i, flowsetServerPortIdx+1, len(fields))
		}
		var cca string
		if err := json.Unmarshal(fields[flowsetCCAIdx], &cca); err != nil {
			return nil, nil, fmt.Errorf("trace: flowset %d cca: %w", i, err)
		}
		var clientPorts []uint16
		if err := json.Unmarshal(fields[flowsetClientPortsIdx], &clientPorts); err != nil {
			return nil, nil, fmt.Errorf("trace: flowset %d client ports: %w", i, err)
		}
		var serverPort uint16
		if err := json.Unmarshal(fields[flowsetServerPortIdx], &serverPort); err != nil {
			return nil, nil, fmt.Errorf("trace: flowset %d server port: %w", i, err)
		}
		for _, cp := range clientPorts {
			key := FlowKey{ClientPort: cp, ServerPort: serverPort}
			keys = append(keys, key)
			flowCCA[key] = CCA(cca)
		}
	}
	return keys, flowCCA, nil
}
