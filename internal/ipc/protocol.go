package ipc

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"snapqr/internal/userutil"
)

const (
	// PipeEnvVar overrides the activation endpoint when it passes validation.
	PipeEnvVar = "SNAPQR_IPC_PIPE"

	instancePrefix = "snapqr"
)

const (
	// CommandActivate asks the running instance to bring its window forward.
	CommandActivate = "activate"
	// CommandTrigger asks the running instance to start a capture workflow;
	// Args[0] names the workflow (full, region, ocr).
	CommandTrigger = "trigger"
)

// Request is one command sent by a second process to the running instance.
type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Response reports the outcome of a Request.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// CommandExecutor handles a request and returns a response.
type CommandExecutor interface {
	Execute(req Request) Response
}

// ExecutorFunc adapts a function to CommandExecutor.
type ExecutorFunc func(Request) Response

func (f ExecutorFunc) Execute(req Request) Response { return f(req) }

// DefaultPipeName returns the activation endpoint. If SNAPQR_IPC_PIPE is set
// and passes pattern validation, its value is used; otherwise a per-user
// default is constructed from the current username.
func DefaultPipeName() string {
	if v, ok := trustedPipeNameFromEnv(); ok {
		return v
	}
	return endpointForInstance(userutil.InstanceName(instancePrefix))
}

func trustedPipeNameFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv(PipeEnvVar))
	if value == "" {
		return "", false
	}
	if !pipeNamePattern.MatchString(value) {
		slog.Warn("[ipc] "+PipeEnvVar+" rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

func decodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	req.Command = strings.TrimSpace(req.Command)
	return req, nil
}

func decodeResponse(raw []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
