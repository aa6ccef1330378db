// Package poolmsg defines the line-delimited JSON wire shapes exchanged
// with a pool (spec.md section 6, External Interfaces) and the
// discriminant-based dispatch that resolves spec.md's open question on
// message routing. Grounded on
// original_source/src/PoolCommunication/PoolCommunication.cpp's request
// literals and original_source/src/Types/PoolMessage.cpp's
// parsePoolMessage, reworked from a try-each-shape cascade (in which the
// login-reply branch is unreachable dead code, since it sits in an
// always-empty try block's catch clause) into an explicit,
// always-terminating field inspection. Login and submit/keepalive-ack
// replies carry their payload inside a top-level "result" object
// (spec.md section 6: `{"result":{"id":...,"job":{...}}}`,
// `{"result":{"status":"OK"}}`); a bare `{"status":"KEEPALIVED"}` and
// job pushes (`{"method":"job","params":{...}}`) are not wrapped.
package poolmsg

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// LoginRequest is sent once per connection to authenticate and receive
// the first job.
type LoginRequest struct {
	ID      int         `json:"id"`
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  LoginParams `json:"params"`
}

// LoginParams carries the miner identity fields, mirroring
// spec.md section 3's Pool fields that travel over the wire.
type LoginParams struct {
	Login string `json:"login"`
	Pass  string `json:"pass"`
	RigID string `json:"rigid,omitempty"`
	Agent string `json:"agent"`
	Algo  string `json:"algo,omitempty"`
}

// SubmitRequest reports a share.
type SubmitRequest struct {
	ID     int          `json:"id"`
	Method string       `json:"method"`
	Params SubmitParams `json:"params"`
}

// SubmitParams is the share payload: worker id (login id echoed back by
// the pool), job id, nonce, and result hash, all hex-encoded per the
// line protocol's textual convention.
type SubmitParams struct {
	ID     string `json:"id"`
	JobID  string `json:"job_id"`
	Nonce  string `json:"nonce"`
	Result string `json:"result"`
	RigID  string `json:"rigid,omitempty"`
	Agent  string `json:"agent,omitempty"`
}

// KeepAliveRequest pings the pool every 120 seconds while connected.
type KeepAliveRequest struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params struct {
		ID    string `json:"id"`
		RigID string `json:"rigid,omitempty"`
		Agent string `json:"agent,omitempty"`
	} `json:"params"`
}

// GetJobRequest is sent after an "Invalid job id" error to fetch a
// fresh job without waiting for the pool's next push.
type GetJobRequest struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params struct {
		ID    string `json:"id"`
		RigID string `json:"rigid,omitempty"`
		Agent string `json:"agent,omitempty"`
	} `json:"params"`
}

// JobPayload is the job description embedded in a login reply or a
// standalone job push, mirroring spec.md section 3's Job fields.
type JobPayload struct {
	JobID  string `json:"job_id" mapstructure:"job_id"`
	Blob   string `json:"blob" mapstructure:"blob"`
	Target string `json:"target" mapstructure:"target"`
	Algo   string `json:"algo" mapstructure:"algo"`
	ID     string `json:"id,omitempty" mapstructure:"id"`
}

// LoginReply is the payload inside a login response's "result" object:
// an assigned worker id plus the first job. It is decoded (with the
// "result" wrapper already stripped) directly by tryLogin, never
// through Classify -- a reconnect never re-sends a LoginRequest
// mid-stream, so the only place a reply shaped like this appears is
// the first line read after sending one.
type LoginReply struct {
	ID     string     `json:"id" mapstructure:"id"`
	Job    JobPayload `json:"job" mapstructure:"job"`
	Status string     `json:"status" mapstructure:"status"`
}

// StatusReply acknowledges a submit ("OK"), a keepalive ("KEEPALIVED"),
// or carries some other async status update.
type StatusReply struct {
	Status string `json:"status" mapstructure:"status"`
}

// ErrorReply carries a pool-side error, unsolicited or in reply to a
// request.
type ErrorReply struct {
	Code    int    `json:"code" mapstructure:"code"`
	Message string `json:"message" mapstructure:"message"`
}

// Kind discriminates a decoded message once its shape is known.
type Kind int

const (
	KindUnknown Kind = iota
	KindJobPush
	KindLoginReply
	KindStatusReply
	KindErrorReply
)

// envelope is the generic outer shape every line is decoded into before
// dispatch decides what's inside it. A job push carries "method"/"params"
// at the top level; a login or submit/keepalive-ack reply carries its
// payload inside "result"; a bare status update or an error is top-level.
type envelope struct {
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params"`
	Result map[string]interface{} `json:"result"`
	Status string                 `json:"status"`
	Error  map[string]interface{} `json:"error"`
}

// Decoded is the outcome of Classify: the message kind plus whichever
// typed payload applies.
type Decoded struct {
	Kind   Kind
	Job    JobPayload
	Status StatusReply
	Err    ErrorReply
}

// Classify inspects a raw pool line and resolves it to one concrete
// message kind. The inspection order is fixed: a job push is
// distinguished by method=="job"; a "result" object carrying a
// "status" key is a submit/keepalive ack (unwrapped per spec.md
// section 6); a bare top-level "status" field is also a status update
// (the keepalive-ack shape is never wrapped); an "error" object is an
// error; anything else is unknown. This order matches
// parsePoolMessage's cascade (job, status, ..., error) with the
// unreachable login branch removed, since a connection only ever
// carries one of these shapes at a time.
func Classify(line []byte) (Decoded, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Decoded{}, fmt.Errorf("poolmsg: malformed line: %w", err)
	}

	switch {
	case env.Method == "job":
		job, err := decodeJob(env.Params)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Kind: KindJobPush, Job: job}, nil

	case env.Result != nil:
		if status, ok := env.Result["status"].(string); ok {
			return Decoded{Kind: KindStatusReply, Status: StatusReply{Status: status}}, nil
		}
		return Decoded{Kind: KindUnknown}, nil

	case env.Status != "":
		return Decoded{Kind: KindStatusReply, Status: StatusReply{Status: env.Status}}, nil

	case len(env.Error) > 0:
		var errReply ErrorReply
		if err := mapstructure.Decode(env.Error, &errReply); err != nil {
			return Decoded{}, fmt.Errorf("poolmsg: decoding error reply: %w", err)
		}
		return Decoded{Kind: KindErrorReply, Err: errReply}, nil

	default:
		return Decoded{Kind: KindUnknown}, nil
	}
}

// ParseLoginReply decodes a raw login-reply line, unwrapping its
// top-level "result" object to reach "id"/"job", grounded on spec.md
// section 6's literal `{"result":{"id":<loginID>,"job":<Job>}}` shape
// (PoolCommunication::tryLogin's direct `nlohmann::json::parse(*res)`
// mirrors the unwrap, since the original's LoginMessage type embeds
// the same fields nlohmann pulls out of the parsed object).
func ParseLoginReply(line []byte) (LoginReply, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return LoginReply{}, fmt.Errorf("poolmsg: decoding login reply: %w", err)
	}
	if env.Result == nil {
		return LoginReply{}, fmt.Errorf("poolmsg: login reply has no result object")
	}
	var login LoginReply
	if err := mapstructure.Decode(env.Result, &login); err != nil {
		return LoginReply{}, fmt.Errorf("poolmsg: decoding login reply: %w", err)
	}
	return login, nil
}

// ParseErrorReply decodes a raw line as an error reply, used by
// tryLogin when the login reply fails to parse as a LoginReply.
func ParseErrorReply(line []byte) (ErrorReply, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return ErrorReply{}, fmt.Errorf("poolmsg: malformed line: %w", err)
	}
	if len(env.Error) == 0 {
		return ErrorReply{}, fmt.Errorf("poolmsg: no error object present")
	}
	var errReply ErrorReply
	if err := mapstructure.Decode(env.Error, &errReply); err != nil {
		return ErrorReply{}, fmt.Errorf("poolmsg: decoding error reply: %w", err)
	}
	return errReply, nil
}

func decodeJob(src map[string]interface{}) (JobPayload, error) {
	var job JobPayload
	if err := mapstructure.Decode(src, &job); err != nil {
		return JobPayload{}, fmt.Errorf("poolmsg: decoding job: %w", err)
	}
	return job, nil
}

// IsInvalidJobID reports whether an error reply is the pool's
// "invalid job id" rejection, the trigger for a getjob retry rather
// than a fatal disconnect.
func (e ErrorReply) IsInvalidJobID() bool {
	return e.Message == "Invalid job id"
}
