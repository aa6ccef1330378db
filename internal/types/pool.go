// Package types holds the small data model shared across the pool client,
// the miner manager, and the hashing backends: pools, jobs, nonce
// partition results and share submissions.
package types

import "fmt"

// Pool describes one mining pool entry, loaded from config and never
// mutated except for the fields the login handshake and nicehash
// auto-detection fill in (LoginID, NiceHash).
type Pool struct {
	Host     string `json:"host"`
	Port     uint16 `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	RigID    string `json:"rigID"`

	// Algorithm is the pool's configured algorithm name. A job whose own
	// algorithm field is empty (or whose pool has DisableAutoAlgoSelect
	// set) inherits this value.
	Algorithm string `json:"algorithm"`

	Agent string `json:"agent"`

	// LoginID is the server-assigned identifier used on every subsequent
	// submit/keepalive/getjob call. Set iff we are logged in to this pool.
	LoginID string `json:"-"`

	NiceHash bool `json:"niceHash"`

	// Priority orders pool preference; lower is more preferred.
	Priority int `json:"priority"`

	SSL                    bool `json:"ssl"`
	DisableAutoAlgoSelect  bool `json:"disableAutoAlgoSelect"`
}

const defaultAgentPrefix = "argonminer/"

// Version is substituted into the default user agent string.
var Version = "0.1.0"

// GetAgent returns the configured agent, or a default derived from Version.
func (p Pool) GetAgent() string {
	if p.Agent != "" {
		return p.Agent
	}
	return defaultAgentPrefix + Version
}

// Equal reports pool identity, deliberately excluding NiceHash and
// Priority: those are inferred/config-tunable and do not change which
// physical pool endpoint this is, per spec.md section 3.
func (p Pool) Equal(other Pool) bool {
	return p.Host == other.Host &&
		p.Port == other.Port &&
		p.Username == other.Username &&
		p.Password == other.Password &&
		p.RigID == other.RigID &&
		p.Algorithm == other.Algorithm &&
		p.Agent == other.Agent &&
		p.LoginID == other.LoginID &&
		p.SSL == other.SSL
}

// String renders "[host:port] " the way the teacher's formatPool does,
// used as a log-line prefix.
func (p Pool) String() string {
	return fmt.Sprintf("[%s:%d] ", p.Host, p.Port)
}
