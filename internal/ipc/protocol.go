package ipc

import (
	"encoding/json"
	"fmt"
)

// Request is one newline-delimited JSON call. Args holds the command payload.
type Request struct {
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Response answers one Request. Data holds the command result on success.
type Response struct {
	OK      bool            `json:"ok"`
	State   string          `json:"state,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewRequest encodes args into a request for command. Nil args are omitted.
func NewRequest(command string, args any) (Request, error) {
	req := Request{Command: command}
	if args == nil {
		return req, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s args: %w", command, err)
	}
	req.Args = raw
	return req, nil
}

// DecodeArgs unmarshals the request payload into v. Missing args leave v untouched.
func (r Request) DecodeArgs(v any) error {
	if len(r.Args) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Args, v); err != nil {
		return fmt.Errorf("decode %s args: %w", r.Command, err)
	}
	return nil
}

// DecodeData unmarshals the response payload into v.
func (r Response) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}
