package client

import (
	"math/rand"
	"strings"
	"testing"
)

func TestToolNameToMethod(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"github_list_repos", "github.listRepos"},
		{"github_get_user", "github.getUser"},
		{"gmail_send_email", "gmail.sendEmail"},
		{"notion_search", "notion.search"},
		{"google-drive_list_files_v2", "google-drive.listFilesV2"},
		{"github_get_2fa_status", "github.get_2faStatus"},
		{"notion_get_page_1", "notion.getPage_1"},
		{"gmail_list_v2_messages", "gmail.listV2Messages"},
		{"standalone", "standalone"},
		{"trailing_", "trailing_"},
	}
	for _, tt := range tests {
		if got := ToolNameToMethod(tt.name); got != tt.want {
			t.Errorf("ToolNameToMethod(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMethodToToolName(t *testing.T) {
	tests := []struct {
		method   string
		pluginID string
		want     string
	}{
		{"github.listRepos", "github", "github_list_repos"},
		{"listRepos", "github", "github_list_repos"},
		{"github.listRepos", "", "github_list_repos"},
		{"gmail.sendEmail", "gmail", "gmail_send_email"},
		{"search", "", "search"},
		{"github.get_2faStatus", "", "github_get_2fa_status"},
		{"notion.getPage_1", "notion", "notion_get_page_1"},
	}
	for _, tt := range tests {
		if got := MethodToToolName(tt.method, tt.pluginID); got != tt.want {
			t.Errorf("MethodToToolName(%q, %q) = %q, want %q", tt.method, tt.pluginID, got, tt.want)
		}
	}
}

func TestToolNameRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const lower = "abcdefghijklmnopqrstuvwxyz"
	const tail = lower + "0123456789"

	word := func(first string, minLen, maxLen int) string {
		n := minLen + rng.Intn(maxLen-minLen+1)
		var b strings.Builder
		b.WriteByte(first[rng.Intn(len(first))])
		for i := 1; i < n; i++ {
			b.WriteByte(tail[rng.Intn(len(tail))])
		}
		return b.String()
	}

	for i := 0; i < 1000; i++ {
		pluginID := word(lower, 1, 10)
		segments := make([]string, 1+rng.Intn(4))
		for j := range segments {
			segments[j] = word(tail, 1, 8)
		}
		name := pluginID + "_" + strings.Join(segments, "_")

		method := ToolNameToMethod(name)
		if got := MethodToToolName(method, pluginID); got != name {
			t.Fatalf("round trip of %q via %q gave %q", name, method, got)
		}
	}
}
