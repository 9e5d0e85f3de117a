package homework

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestInterpretKnownStatuses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status  string
		verdict string
	}{
		{status: "rejected", verdict: VerdictRejected},
		{status: "reviewing", verdict: VerdictReviewing},
		{status: "approved", verdict: VerdictApproved},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.status, func(t *testing.T) {
			t.Parallel()
			rec := Record{Name: "proj1", Status: ParseStatus(tt.status), RawStatus: tt.status, Valid: true}
			got := Interpret(rec)
			want := "У вас проверили работу \"proj1\"!\n\n" + tt.verdict
			if got != want {
				t.Fatalf("Interpret = %q, want %q", got, want)
			}
			if again := Interpret(rec); again != got {
				t.Fatalf("Interpret not deterministic: %q vs %q", again, got)
			}
		})
	}
}

func TestInterpretSentinels(t *testing.T) {
	t.Parallel()

	unknown := Interpret(Record{Name: "proj1", Status: ParseStatus("on_hold"), Valid: true})
	if !strings.Contains(unknown, MsgUnknownStatus) || !strings.Contains(unknown, "proj1") {
		t.Fatalf("unknown status text = %q", unknown)
	}

	noStatus := Interpret(Record{Name: "proj1", Valid: true})
	if !strings.Contains(noStatus, MsgUnknownStatus) {
		t.Fatalf("absent status text = %q", noStatus)
	}

	if got := Interpret(Record{Status: StatusApproved}); got != MsgInvalidResponse {
		t.Fatalf("missing name text = %q, want %q", got, MsgInvalidResponse)
	}
	if got := Interpret(Record{}); got != MsgInvalidResponse {
		t.Fatalf("zero record text = %q", got)
	}
}

func TestParseStatusRoundTrip(t *testing.T) {
	t.Parallel()
	for _, s := range []Status{StatusRejected, StatusReviewing, StatusApproved} {
		if got := ParseStatus(s.String()); got != s {
			t.Fatalf("ParseStatus(%q) = %v, want %v", s.String(), got, s)
		}
	}
	if ParseStatus("APPROVED") != StatusUnknown {
		t.Fatal("status match must be exact")
	}
	if StatusUnknown.Verdict() != MsgUnknownStatus {
		t.Fatalf("unknown verdict = %q", StatusUnknown.Verdict())
	}
}

func TestDiagnosticText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "connection", err: &FetchError{Kind: ErrConnection, Err: errors.New("refused")}, want: MsgConnection},
		{name: "timeout", err: &FetchError{Kind: ErrTimeout}, want: MsgTimeout},
		{name: "decode", err: &FetchError{Kind: ErrDecode}, want: MsgDecode},
		{name: "http", err: &FetchError{Kind: ErrHTTPStatus, StatusCode: 503}, want: "Ошибка запроса. Код: 503"},
		{name: "wrapped", err: fmt.Errorf("cycle: %w", &FetchError{Kind: ErrHTTPStatus, StatusCode: 401}), want: "Ошибка запроса. Код: 401"},
		{name: "other", err: errors.New("boom"), want: "Бот столкнулся с ошибкой: boom"},
	}
	for _, tt := range tests {
		if got := DiagnosticText(tt.err); got != tt.want {
			t.Fatalf("%s: DiagnosticText = %q, want %q", tt.name, got, tt.want)
		}
	}
}
