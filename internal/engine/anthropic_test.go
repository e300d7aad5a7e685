package engine

import (
	"errors"
	"testing"
)

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("429 too many requests"), true},
		{errors.New("rate_limit_error: slow down"), true},
		{errors.New("503 service unavailable"), true},
		{errors.New("overloaded_error"), true},
		{errors.New("context deadline exceeded (timeout)"), true},
		{errors.New("read: connection reset by peer"), true},
		{errors.New("401 unauthorized"), false},
		{errors.New("invalid_request_error: max_tokens too large"), false},
	}
	for _, tc := range cases {
		if got := isRetryableError(tc.err); got != tc.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestDecodeCodeResult(t *testing.T) {
	raw := `{
		"type": "code_execution_tool_result",
		"tool_use_id": "srvtoolu_1",
		"content": {
			"type": "code_execution_result",
			"stdout": "hello\n",
			"stderr": "",
			"return_code": 0,
			"content": [
				{"type": "code_execution_output", "file_id": "file_abc"},
				{"type": "code_execution_output", "file_id": "file_def"}
			]
		}
	}`
	stdout, refs := decodeCodeResult(raw)
	if stdout != "hello\n" {
		t.Errorf("stdout = %q", stdout)
	}
	if len(refs) != 2 || refs[0].FileID != "file_abc" || refs[1].FileID != "file_def" {
		t.Errorf("refs = %v", refs)
	}
}

func TestDecodeCodeResultMalformed(t *testing.T) {
	stdout, refs := decodeCodeResult(`{not json`)
	if stdout != "" || refs != nil {
		t.Errorf("malformed block must decode to nothing, got %q %v", stdout, refs)
	}
}

func TestConvertTurnsSkipsEmpty(t *testing.T) {
	msgs, err := convertTurns([]Turn{
		UserTurn("hello"),
		{Role: RoleAssistant},
		UserTurn("again"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Errorf("messages = %d, want 2 (empty turn dropped)", len(msgs))
	}
}
