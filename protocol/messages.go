// Package protocol implements the wire protocol spoken with the discovery
// worker: Content-Length framed JSON messages carrying requests, responses
// and notifications over the worker's standard streams.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Request methods understood by the worker.
const (
	MethodConfigure = "configure"
	MethodRefresh   = "refresh"
	MethodResolve   = "resolve"
	MethodCondaInfo = "condaInfo"
)

// Notification methods sent by the worker.
const (
	NotifyEnvironment = "environment"
	NotifyManager     = "manager"
	NotifyLog         = "log"
	NotifyTelemetry   = "telemetry"
)

// requestMessage is an outbound request frame.
type requestMessage struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Message is a decoded inbound frame: a response when ID is set, otherwise a
// notification.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is a worker-reported request failure.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("worker error %d: %s", e.Code, e.Message)
}

// ConfigureParams is the settings snapshot sent with a configure request.
type ConfigureParams struct {
	WorkspaceDirs    []string `json:"workspaceDirectories"`
	EnvironmentDirs  []string `json:"environmentDirectories"`
	CondaExecutable  string   `json:"condaExecutable,omitempty"`
	PoetryExecutable string   `json:"poetryExecutable,omitempty"`
}

// Equal reports full structural equality with o. A configure request is
// skipped when the snapshot has not changed since the last one sent.
func (p ConfigureParams) Equal(o ConfigureParams) bool {
	if p.CondaExecutable != o.CondaExecutable || p.PoetryExecutable != o.PoetryExecutable {
		return false
	}
	return stringSlicesEqual(p.WorkspaceDirs, o.WorkspaceDirs) &&
		stringSlicesEqual(p.EnvironmentDirs, o.EnvironmentDirs)
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RefreshParams scopes a worker-side scan. The zero value requests a scan of
// the default discovery locations; Kinds restricts to specific environment
// kinds; SearchPaths restricts to explicit root locations.
type RefreshParams struct {
	Kinds       []string `json:"kinds,omitempty"`
	SearchPaths []string `json:"searchPaths,omitempty"`
}

// RefreshResult is the response to a refresh request, returned once the
// worker's scan is finished.
type RefreshResult struct {
	// Duration is the scan time in milliseconds, reported by the worker.
	Duration int64 `json:"duration"`
}

// ResolveParams requests full resolution of a single candidate path.
type ResolveParams struct {
	Executable string `json:"executable"`
}

// CondaInfo is a diagnostic snapshot of the worker's conda search state.
type CondaInfo struct {
	CanSpawnConda   bool     `json:"canSpawnConda"`
	CondaRcs        []string `json:"condarcs"`
	EnvDirs         []string `json:"envDirs"`
	EnvironmentsTxt string   `json:"environmentsTxt,omitempty"`
	// EnvironmentsTxtExists reports whether the environments.txt registry was
	// found; EnvironmentsFromTxt holds its entries when it was.
	EnvironmentsTxtExists bool     `json:"environmentsTxtExists"`
	EnvironmentsFromTxt   []string `json:"environmentsFromTxt,omitempty"`
}

// LogParams is the payload of a log notification.
type LogParams struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// EnvironmentRecord is a candidate environment reported by the worker. Any
// field other than Kind may be absent; records lacking version or prefix are
// filled in through a follow-up resolve request.
type EnvironmentRecord struct {
	Executable  string   `json:"executable,omitempty"`
	Prefix      string   `json:"prefix,omitempty"`
	Version     string   `json:"version,omitempty"`
	Arch        string   `json:"arch,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	Name        string   `json:"name,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	Symlinks    []string `json:"symlinks,omitempty"`
}

// ManagerRecord describes an environment manager tool found by the worker.
type ManagerRecord struct {
	Tool       string `json:"tool"`
	Executable string `json:"executable"`
	Version    string `json:"version,omitempty"`
}

// RawRecord is the discriminated union of the two record shapes the worker
// streams during a scan. Exactly one field is non-nil.
type RawRecord struct {
	Environment *EnvironmentRecord
	Manager     *ManagerRecord
}

// DecodeRawRecord decodes a worker record payload, producing the variant tag
// here at the protocol boundary. Worker records are distinguished by the
// presence of a "tool" field.
func DecodeRawRecord(data json.RawMessage) (RawRecord, error) {
	var probe struct {
		Tool *string `json:"tool"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return RawRecord{}, fmt.Errorf("malformed record payload: %w", err)
	}

	if probe.Tool != nil {
		var mgr ManagerRecord
		if err := json.Unmarshal(data, &mgr); err != nil {
			return RawRecord{}, fmt.Errorf("malformed manager record: %w", err)
		}
		return RawRecord{Manager: &mgr}, nil
	}

	var env EnvironmentRecord
	if err := json.Unmarshal(data, &env); err != nil {
		return RawRecord{}, fmt.Errorf("malformed environment record: %w", err)
	}
	return RawRecord{Environment: &env}, nil
}
