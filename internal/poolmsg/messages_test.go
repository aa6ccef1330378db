package poolmsg

import "testing"

func TestClassifyJobPush(t *testing.T) {
	line := []byte(`{"method":"job","params":{"job_id":"abc","blob":"deadbeef","target":"ffffffff","algo":"chukwa"}}`)

	decoded, err := Classify(line)
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if decoded.Kind != KindJobPush {
		t.Fatalf("Kind = %v, want KindJobPush", decoded.Kind)
	}
	if decoded.Job.JobID != "abc" || decoded.Job.Blob != "deadbeef" {
		t.Fatalf("decoded job = %+v, unexpected fields", decoded.Job)
	}
}

func TestClassifyWrappedStatusReply(t *testing.T) {
	// Submit-ack shape: {"result":{"status":"OK"},"id":1}.
	line := []byte(`{"result":{"status":"OK"},"id":1}`)

	decoded, err := Classify(line)
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if decoded.Kind != KindStatusReply {
		t.Fatalf("Kind = %v, want KindStatusReply", decoded.Kind)
	}
	if decoded.Status.Status != "OK" {
		t.Fatalf("Status.Status = %q, want OK", decoded.Status.Status)
	}
}

func TestClassifyBareStatusReply(t *testing.T) {
	// Keepalive-ack shape is never wrapped in "result".
	line := []byte(`{"status":"KEEPALIVED"}`)

	decoded, err := Classify(line)
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if decoded.Kind != KindStatusReply {
		t.Fatalf("Kind = %v, want KindStatusReply", decoded.Kind)
	}
	if decoded.Status.Status != "KEEPALIVED" {
		t.Fatalf("Status.Status = %q, want KEEPALIVED", decoded.Status.Status)
	}
}

func TestClassifyErrorReply(t *testing.T) {
	line := []byte(`{"error":{"code":-1,"message":"Invalid job id"}}`)

	decoded, err := Classify(line)
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if decoded.Kind != KindErrorReply {
		t.Fatalf("Kind = %v, want KindErrorReply", decoded.Kind)
	}
	if !decoded.Err.IsInvalidJobID() {
		t.Fatalf("IsInvalidJobID() = false for message %q", decoded.Err.Message)
	}
}

func TestClassifyUnknown(t *testing.T) {
	line := []byte(`{"foo":"bar"}`)

	decoded, err := Classify(line)
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if decoded.Kind != KindUnknown {
		t.Fatalf("Kind = %v, want KindUnknown", decoded.Kind)
	}
}

func TestClassifyMalformed(t *testing.T) {
	if _, err := Classify([]byte(`not json`)); err == nil {
		t.Fatalf("expected an error for malformed input")
	}
}

func TestParseLoginReplyUnwrapsResult(t *testing.T) {
	line := []byte(`{"result":{"id":"worker-123","job":{"job_id":"j1","blob":"ab","target":"ffff","algo":"chukwav2"}}}`)

	login, err := ParseLoginReply(line)
	if err != nil {
		t.Fatalf("ParseLoginReply() error: %v", err)
	}
	if login.ID != "worker-123" {
		t.Fatalf("login.ID = %q, want worker-123", login.ID)
	}
	if login.Job.JobID != "j1" {
		t.Fatalf("login.Job.JobID = %q, want j1", login.Job.JobID)
	}
}

func TestParseLoginReplyMissingResultObject(t *testing.T) {
	if _, err := ParseLoginReply([]byte(`{"id":"worker-123","job":{}}`)); err == nil {
		t.Fatalf("expected an error when no result object is present")
	}
}

func TestParseErrorReply(t *testing.T) {
	line := []byte(`{"error":{"code":1,"message":"boom"}}`)

	errReply, err := ParseErrorReply(line)
	if err != nil {
		t.Fatalf("ParseErrorReply() error: %v", err)
	}
	if errReply.Message != "boom" {
		t.Fatalf("Message = %q, want boom", errReply.Message)
	}
}

func TestParseErrorReplyMissingErrorObject(t *testing.T) {
	if _, err := ParseErrorReply([]byte(`{"status":"OK"}`)); err == nil {
		t.Fatalf("expected an error when no error object is present")
	}
}
