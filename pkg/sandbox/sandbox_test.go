package sandbox

import "testing"

func TestExecution_Text(t *testing.T) {
	tests := []struct {
		name string
		exec *Execution
		want string
	}{
		{name: "nil", exec: nil, want: ""},
		{name: "no results", exec: &Execution{}, want: ""},
		{
			name: "only display results",
			exec: &Execution{Results: []Result{{Text: "<Figure>", PNG: "aGk="}}},
			want: "",
		},
		{
			name: "main result",
			exec: &Execution{Results: []Result{
				{Text: "<Figure>", PNG: "aGk="},
				{Text: "42", IsMainResult: true},
			}},
			want: "42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.exec.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecution_JoinedLogs(t *testing.T) {
	exec := &Execution{Logs: Logs{
		Stdout: []string{"a\n", "b\n"},
		Stderr: []string{"warn\n"},
	}}

	if got := exec.Stdout(); got != "a\nb\n" {
		t.Errorf("Stdout() = %q", got)
	}
	if got := exec.Stderr(); got != "warn\n" {
		t.Errorf("Stderr() = %q", got)
	}
}

func TestResult_HasImage(t *testing.T) {
	if (Result{Text: "x"}).HasImage() {
		t.Error("text-only result reported an image")
	}
	if !(Result{SVG: "<svg/>"}).HasImage() {
		t.Error("svg result not reported as image")
	}
}
