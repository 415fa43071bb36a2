package authz

import (
	"reflect"
	"testing"
)

func TestExtractBaseCommands(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple command with flags",
			input: "ls -la /tmp",
			want:  []string{"ls"},
		},
		{
			name:  "pipeline",
			input: "ls -la | grep foo | wc -l",
			want:  []string{"ls", "grep", "wc"},
		},
		{
			name:  "pipeline without spaces",
			input: "ls|rm -rf /",
			want:  []string{"ls", "rm"},
		},
		{
			name:  "logical and sequential chaining",
			input: "mkdir -p /tmp/a; cd /tmp/a && make || echo failed",
			want:  []string{"mkdir", "cd", "make", "echo"},
		},
		{
			name:  "deduplication keeps first-seen order",
			input: "ls && ls && ls",
			want:  []string{"ls"},
		},
		{
			name:  "dollar substitution executes first",
			input: "echo $(whoami)",
			want:  []string{"whoami", "echo"},
		},
		{
			name:  "nested dollar substitution",
			input: "echo $(echo $(whoami))",
			want:  []string{"whoami", "echo"},
		},
		{
			name:  "backtick substitution",
			input: "echo `whoami`",
			want:  []string{"whoami", "echo"},
		},
		{
			name:  "backtick containing pipeline",
			input: "echo `cat /etc/passwd | head -1`",
			want:  []string{"cat", "head", "echo"},
		},
		{
			name:  "token after substitution placeholder is a command",
			input: "docker exec $(docker ps -q) ls",
			want:  []string{"docker", "ls"},
		},
		{
			name:  "token after double dash is a command",
			input: "sudo -u deploy -- systemctl restart app",
			want:  []string{"sudo", "systemctl"},
		},
		{
			name:  "background operator starts a new command",
			input: "sleep 10 & rm -rf /",
			want:  []string{"sleep", "rm"},
		},
		{
			name:  "quoted name is still a name",
			input: `"ls" -la`,
			want:  []string{"ls"},
		},
		{
			name:  "quoted operator is not an operator",
			input: `echo "a | b"`,
			want:  []string{"echo"},
		},
		{
			name:  "leading flags are skipped until a real word",
			input: "-v --verbose env",
			want:  []string{"env"},
		},
		{
			name:  "malformed quoting falls back to first field",
			input: "echo 'unterminated | rm -rf /",
			want:  []string{"echo"},
		},
		{
			name:  "empty input",
			input: "",
			want:  []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractBaseCommands(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractBaseCommands(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestHasShellMetacharacters(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"ls -la", false},
		{"ls | rm -rf /", true},
		{"ls && rm", true},
		{"ls || rm", true},
		{"ls; rm", true},
		{"sleep 10 &", true},
		{"echo `whoami`", true},
		{"echo 'unterminated", true},
		{`echo "a | b"`, false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := HasShellMetacharacters(tt.input); got != tt.want {
				t.Errorf("HasShellMetacharacters(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsAllowed(t *testing.T) {
	tests := []struct {
		name      string
		command   string
		allowlist []string
		want      bool
	}{
		{"plain allowed", "ls -la", []string{"ls"}, true},
		{"pipeline to forbidden program", "ls | rm -rf /", []string{"ls"}, false},
		{"substitution is not a bypass", "echo $(rm -rf /)", []string{"echo"}, false},
		{"substitution fully allowlisted", "echo $(rm -rf /)", []string{"echo", "rm"}, true},
		{"backtick is not a bypass", "echo `rm -rf /`", []string{"echo"}, false},
		{"empty allowlist denies everything", "ls", nil, false},
		{"empty command is denied", "", []string{"ls"}, false},
		{"malformed quoting still decides", "ls 'oops", []string{"ls"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAllowed(tt.command, tt.allowlist); got != tt.want {
				t.Errorf("IsAllowed(%q, %v) = %v, want %v", tt.command, tt.allowlist, got, tt.want)
			}
		})
	}
}
